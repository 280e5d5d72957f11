package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/cassette-engine/cassette/internal/logging"
)

// newLogsCmd tails the engine's own debug log via internal/logging.Viewer,
// folded into the main CLI rather than shipped as a separate binary.
func newLogsCmd() *cobra.Command {
	var n int
	var level string
	var noColor bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the last lines of the engine's debug log",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := logging.FindLogFile("")
			if err != nil {
				return err
			}
			v := logging.NewViewer(logging.ViewerConfig{Level: level, NoColor: noColor}, os.Stdout)
			entries, err := v.Tail(path, n)
			if err != nil {
				return err
			}
			v.Print(entries)
			return nil
		},
	}
	cmd.Flags().IntVar(&n, "lines", 100, "number of log lines to show")
	cmd.Flags().StringVar(&level, "level", "", "filter by level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")
	return cmd
}
