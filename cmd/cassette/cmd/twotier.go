package cmd

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/cassette-engine/cassette/internal/casserrors"
	"github.com/cassette-engine/cassette/internal/config"
	"github.com/cassette-engine/cassette/internal/daemon"
	"github.com/cassette-engine/cassette/internal/embedregistry"
	"github.com/cassette-engine/cassette/internal/twotier"
	"github.com/cassette-engine/cassette/internal/vectorindex"
)

// newTwoTierCmd exercises the two-tier searcher directly: it builds a
// twotier.Index by joining the always-available hash CVVI file (fast tier)
// with the best-available semantic CVVI file (quality tier) on
// (message_id, chunk_idx), then streams Initial/Refined/RefinementFailed
// phases to stdout as they arrive.
func newTwoTierCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "twotier <query>",
		Short: "Run the two-tier progressive searcher (fast pass, then quality refinement)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rawQuery := args[0]
			for _, a := range args[1:] {
				rawQuery += " " + a
			}
			return runTwoTier(cmd, rawQuery)
		},
	}
	return cmd
}

func runTwoTier(cmd *cobra.Command, query string) error {
	opts := config.Default()
	opts.DataDir = dataDir
	if err := opts.Validate(); err != nil {
		return casserrors.Wrap(casserrors.KindInvalidInput, "invalid engine options", err)
	}

	reg := embedregistry.NewRegistry(opts.ModelsDir())
	fastDesc, err := reg.Get(embedregistry.HashDescriptorID)
	if err != nil {
		return err
	}
	fastPath := filepath.Join(opts.VectorIndexDir(), "index-"+fastDesc.ID+".cvvi")
	if !fileExists(fastPath) {
		return casserrors.New(casserrors.KindUnavailable, "no fast-tier CVVI file at "+fastPath)
	}
	fastCVVI, err := vectorindex.Load(fastPath, true)
	if err != nil {
		return err
	}
	fastEmbedder, err := embedregistry.Load(fastDesc, opts.ModelsDir(), fastDesc.Dimension)
	if err != nil {
		return err
	}

	qualityDesc := reg.BestAvailable()
	var qualityCVVI *vectorindex.VectorIndex
	if qualityDesc.ID != fastDesc.ID {
		qualityPath := filepath.Join(opts.VectorIndexDir(), "index-"+qualityDesc.ID+".cvvi")
		if fileExists(qualityPath) {
			qualityCVVI, _ = vectorindex.Load(qualityPath, true)
		}
	}

	rows := make([]twotier.Row, 0, fastCVVI.Count())
	qualityByKey := make(map[string][]float32)
	if qualityCVVI != nil {
		for i, row := range qualityCVVI.Rows {
			qualityByKey[turnKey(row.MessageID, row.ChunkIdx)] = qualityCVVI.VectorAt(i)
		}
	}
	for i, row := range fastCVVI.Rows {
		rows = append(rows, twotier.Row{
			ID:            twotier.Turn(strconv.FormatUint(row.MessageID, 10), int(row.ChunkIdx)),
			FastVector:    fastCVVI.VectorAt(i),
			QualityVector: qualityByKey[turnKey(row.MessageID, row.ChunkIdx)],
		})
	}

	cfg := twotier.Config{
		FastDimension:     fastCVVI.Dimension,
		MaxRefinementDocs: limit * 4,
	}
	var daemonClient *daemon.Client
	if qualityCVVI != nil {
		cfg.QualityDimension = qualityCVVI.Dimension
		cfg.QualityEmbedderID = qualityDesc.ID

		daemonCfg := daemon.DefaultConfig()
		daemonCfg.SocketPath = opts.DaemonSocket
		daemonCfg.ConnectTimeout = opts.DaemonConnectTimeout
		daemonCfg.RequestTimeout = opts.DaemonRequestTimeout
		daemonCfg.AutoSpawn = opts.DaemonAutoSpawn
		daemonClient = daemon.NewClient(daemonCfg)
	} else {
		cfg.FastOnly = true
	}

	idx, err := twotier.New(cfg, rows)
	if err != nil {
		return err
	}

	searcher := &twotier.Searcher{Index: idx, Fast: fastEmbedder, K: limit}
	if daemonClient != nil {
		if health, healthErr := daemonClient.Health(cmd.Context()); healthErr == nil && health.Ready {
			searcher.Quality = daemonClient
		}
	}

	degraded := false
	for phase := range searcher.Run(cmd.Context(), query) {
		switch phase.Kind {
		case twotier.PhaseInitial:
			if phase.Err != nil {
				return phase.Err
			}
			fmt.Printf("-- initial (%dms) --\n", phase.LatencyMs)
			printTwoTierResults(phase.Results)
		case twotier.PhaseRefined:
			fmt.Printf("-- refined (%dms) --\n", phase.LatencyMs)
			printTwoTierResults(phase.Results)
		case twotier.PhaseRefinementFailed:
			fmt.Printf("-- refinement failed: %v (keeping initial results) --\n", phase.Err)
			degraded = true
		}
	}

	if degraded {
		return newDegraded("two-tier refinement unavailable; returned fast-tier results only")
	}
	return nil
}

func turnKey(messageID uint64, chunkIdx uint8) string {
	return strconv.FormatUint(messageID, 10) + ":" + strconv.Itoa(int(chunkIdx))
}

func printTwoTierResults(results []twotier.Result) {
	for i, r := range results {
		fmt.Printf("%d. %s score=%.4f (fast=%.4f quality=%.4f)\n", i+1, r.ID, r.Score, r.FastScore, r.QualityScore)
	}
}
