// Command interp evaluates epistemic-logic scripts: it elaborates the
// surface syntax into core terms, reduces them with journaled
// non-deterministic search, and replays recorded journals bit-for-bit.
//
// Exit codes: 0 success, 1 parse error, 2 elaboration error, 3 evaluation
// error (including budget exhaustion), 4 search exhausted, 5 journal
// replay mismatch or corruption.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"episteme/internal/config"
	"episteme/internal/elab"
	"episteme/internal/eval"
	"episteme/internal/journal"
	"episteme/internal/logging"
	"episteme/internal/regression"
	"episteme/internal/runner"
	"episteme/internal/search"
	"episteme/internal/syntax"
	"episteme/internal/term"
)

const (
	exitOK = iota
	exitParse
	exitElaboration
	exitEvaluation
	exitSearch
	exitJournal
)

var (
	verbose     bool
	configPath  string
	journalPath string
	oracleURL   string
	budget      int
	axiomsName  string
	rulesPath   string
	jobs        int

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "interp [script]",
	Short: "interp - epistemic-logic term evaluator with journaled search",
	Long: `interp evaluates scripts of a meta-language whose terms denote
higher-order epistemic-logic propositions. Reduction is deterministic up
to choice points; every non-deterministic decision is journaled so a run
can be replayed exactly, with or without the guidance oracle.`,
	Args: cobra.MaximumNArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		return runScript(cmd.Context(), args[0])
	},
}

var runCmd = &cobra.Command{
	Use:   "run <script>",
	Short: "Evaluate a script, journaling every choice",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScript(cmd.Context(), args[0])
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay <script>",
	Short: "Re-run a script under its recorded journal, without the oracle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return replayScript(cmd.Context(), args[0])
	},
}

var suiteCmd = &cobra.Command{
	Use:   "suite <dir>",
	Short: "Run a regression corpus, flagging spuriously passing cases",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSuite(cmd.Context(), args[0])
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	pf.StringVar(&configPath, "config", "", "YAML config file")
	pf.StringVar(&journalPath, "journal", "", "journal database path (empty: in-memory only)")
	pf.StringVar(&oracleURL, "oracle", "", "oracle endpoint (empty: no oracle)")
	pf.IntVar(&budget, "budget", 0, "max reduction steps per run")
	pf.StringVar(&axiomsName, "axioms", "", "epistemic axiom set (K or KD45)")
	pf.StringVar(&rulesPath, "rules", "", "Mangle heuristic ruleset (.mg)")
	suiteCmd.Flags().IntVar(&jobs, "jobs", 4, "parallel cases")

	rootCmd.AddCommand(runCmd, replayCmd, suiteCmd)
}

// loadConfig resolves config file, environment, and flag overrides, in
// that order.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if budget > 0 {
		cfg.Evaluation.Budget = budget
	}
	if journalPath != "" {
		cfg.Journal.Path = journalPath
	}
	if oracleURL != "" {
		cfg.Oracle.Endpoint = oracleURL
	}
	if axiomsName != "" {
		cfg.Search.Axioms = axiomsName
	}
	if rulesPath != "" {
		cfg.Search.RulesPath = rulesPath
	}
	return cfg, nil
}

func buildRunner(persist bool) (*runner.Runner, *journal.SQLiteStore, config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, cfg, err
	}
	var store *journal.SQLiteStore
	var opts []runner.Option
	if persist && cfg.Journal.Path != "" {
		store, err = journal.OpenSQLiteStore(cfg.Journal.Path)
		if err != nil {
			return nil, nil, cfg, &journal.Error{Kind: journal.IOFailure, Msg: err.Error()}
		}
		opts = append(opts, runner.WithJournalStore(store))
	}
	r, err := runner.New(cfg, logger, opts...)
	if err != nil {
		return nil, nil, cfg, err
	}
	return r, store, cfg, nil
}

func runScript(ctx context.Context, path string) error {
	r, store, _, err := buildRunner(true)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	script, err := r.ParseAndElaborate(string(src))
	if err != nil {
		return err
	}
	res, err := r.Run(ctx, script)
	if err != nil {
		return err
	}
	fmt.Println(term.Canonical(res.Value))
	return nil
}

func replayScript(ctx context.Context, path string) error {
	r, _, cfg, err := buildRunner(false)
	if err != nil {
		return err
	}
	if cfg.Journal.Path == "" {
		return fmt.Errorf("replay needs --journal")
	}
	store, err := journal.OpenSQLiteStore(cfg.Journal.Path)
	if err != nil {
		return &journal.Error{Kind: journal.IOFailure, Msg: err.Error()}
	}
	defer store.Close()

	recorded, err := store.LoadLatest()
	if err != nil {
		return err
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	script, err := r.ParseAndElaborate(string(src))
	if err != nil {
		return err
	}
	res, err := r.Replay(ctx, script, recorded)
	if err != nil {
		return err
	}
	fmt.Println(term.Canonical(res.Value))
	return nil
}

func runSuite(ctx context.Context, dir string) error {
	r, store, _, err := buildRunner(true)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	suite := regression.NewSuite(r, logger, jobs)
	results, err := suite.RunDir(ctx, dir)
	if err != nil {
		return err
	}

	counts := regression.Summary(results)
	for _, res := range results {
		switch res.Status {
		case regression.StatusPass:
			fmt.Printf("PASS     %s  %s\n", res.Name, res.Value)
		case regression.StatusMismatch:
			fmt.Printf("MISMATCH %s  %v\n", res.Name, res.Err)
		default:
			fmt.Printf("FAIL     %s  %v\n", res.Name, res.Err)
		}
	}
	fmt.Printf("%d pass, %d fail, %d mismatch\n",
		counts[regression.StatusPass], counts[regression.StatusFail], counts[regression.StatusMismatch])

	if counts[regression.StatusMismatch] > 0 {
		return &journal.Error{Kind: journal.ReplayMismatch, Msg: "corpus has spuriously passing cases"}
	}
	if counts[regression.StatusFail] > 0 {
		return fmt.Errorf("%d corpus cases failed", counts[regression.StatusFail])
	}
	return nil
}

// exitCode maps an error to the documented CLI exit codes.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var lexErr *syntax.LexError
	var parseErr *syntax.ParseError
	if errors.As(err, &lexErr) || errors.As(err, &parseErr) {
		return exitParse
	}
	var elabErr *elab.Error
	if errors.As(err, &elabErr) {
		return exitElaboration
	}
	var evalErr *eval.Error
	if errors.As(err, &evalErr) {
		return exitEvaluation
	}
	var searchErr *search.Error
	if errors.As(err, &searchErr) {
		return exitSearch
	}
	var journalErr *journal.Error
	if errors.As(err, &journalErr) {
		return exitJournal
	}
	return exitEvaluation
}

func main() {
	rootCmd.SilenceUsage = true
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	os.Exit(exitCode(err))
}
