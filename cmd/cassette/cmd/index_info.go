package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cassette-engine/cassette/internal/config"
	"github.com/cassette-engine/cassette/internal/embedregistry"
	"github.com/cassette-engine/cassette/internal/vectorindex"
)

// newIndexInfoCmd reports CVVI header stats for every embedder the registry
// knows about with a file present under data_dir/vector_index.
func newIndexInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index-info",
		Short: "Show CVVI file stats (embedder, dimension, quantization, row count) per index",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndexInfo()
		},
	}
	return cmd
}

func runIndexInfo() error {
	opts := config.Default()
	opts.DataDir = dataDir
	if err := opts.Validate(); err != nil {
		return err
	}

	reg := embedregistry.NewRegistry(opts.ModelsDir())
	found := false
	for _, d := range reg.All() {
		path := filepath.Join(opts.VectorIndexDir(), "index-"+d.ID+".cvvi")
		if !fileExists(path) {
			continue
		}
		found = true
		idx, err := vectorindex.Load(path, false)
		if err != nil {
			fmt.Printf("%-24s corrupt: %v\n", d.ID, err)
			continue
		}
		fmt.Printf("%-24s dim=%-4d quant=%-4s rows=%d\n", idx.EmbedderID, idx.Dimension, quantName(idx.Quantization), idx.Count())
	}
	if !found {
		fmt.Println("no CVVI files found under", opts.VectorIndexDir())
	}
	return nil
}

func quantName(q vectorindex.Quantization) string {
	if q == vectorindex.QuantF16 {
		return "f16"
	}
	return "f32"
}
