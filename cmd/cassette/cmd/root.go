// Package cmd wires the cobra CLI for cassette: --data-dir, --embedder,
// --mode, --approximate, --rerank, --limit, and the exit-code contract
// (0 success, 2 unrecoverable input error, 3 degraded, 1 other).
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/cassette-engine/cassette/internal/casserrors"
	"github.com/cassette-engine/cassette/internal/logging"
	"github.com/cassette-engine/cassette/pkg/version"
)

// Flags shared by every subcommand.
var (
	dataDir     string
	embedder    string
	mode        string
	approximate bool
	rerank      bool
	limit       int
	debug       bool
)

var logCleanup func()

// degradedError marks a run that completed but could not honor a required
// capability (e.g. --rerank with no daemon available); it maps to exit
// code 3 rather than 1.
type degradedError struct{ msg string }

func (e *degradedError) Error() string { return e.msg }

func newDegraded(msg string) error { return &degradedError{msg: msg} }

// ExitCodeFor maps a returned error to the process exit code: 0 success, 2
// unrecoverable input error, 3 degraded, 1 other.
func ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	if _, ok := err.(*degradedError); ok {
		return 3
	}
	switch casserrors.KindOf(err) {
	case casserrors.KindInvalidInput:
		return 2
	default:
		return 1
	}
}

// NewRootCmd builds the root cassette command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "cassette",
		Short:        "Hybrid retrieval engine over AI coding-agent session transcripts",
		Version:      version.Short(),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !debug {
				return nil
			}
			cleanup, err := logging.SetupDefault()
			if err != nil {
				return casserrors.Wrap(casserrors.KindFailed, "setup debug logging", err)
			}
			logCleanup = cleanup
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if logCleanup != nil {
				logCleanup()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&dataDir, "data-dir", defaultDataDir(), "directory holding vector_index/, models/")
	root.PersistentFlags().StringVar(&embedder, "embedder", "", "explicit embedder name or id (default: best-available)")
	root.PersistentFlags().StringVar(&mode, "mode", "hybrid", "search mode: lexical|semantic|hybrid")
	root.PersistentFlags().BoolVar(&approximate, "approximate", false, "prefer the HNSW (CHSW) index over exact CVVI scan")
	root.PersistentFlags().BoolVar(&rerank, "rerank", false, "enable the quality-tier rerank pass (requires the warm daemon)")
	root.PersistentFlags().IntVar(&limit, "limit", 20, "top-k result cap")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "write comprehensive debug logs to ~/.cassette/logs/")

	root.AddCommand(newSearchCmd())
	root.AddCommand(newIndexInfoCmd())
	root.AddCommand(newLogsCmd())

	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
