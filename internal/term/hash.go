package term

import (
	"crypto/sha256"
	"encoding/base64"
)

// Hash is the content hash identifying a term (or a term plus context) for
// journaling. It is the SHA-256 of the canonical serialized form, rendered
// in unpadded URL-safe base64 so it can travel in JSON and file names.
type Hash string

// HashTerm computes the content hash of a term's normalized structure.
func HashTerm(t Term) Hash {
	return HashBytes([]byte(canon(t)))
}

// HashBytes computes a Hash over raw bytes. Callers that hash composite
// state (term + belief snapshot) assemble the canonical bytes themselves.
func HashBytes(b []byte) Hash {
	sum := sha256.Sum256(b)
	return Hash(base64.RawURLEncoding.EncodeToString(sum[:]))
}

func (h Hash) String() string { return string(h) }
