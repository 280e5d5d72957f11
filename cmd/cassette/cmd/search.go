package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cassette-engine/cassette/internal/ann"
	"github.com/cassette-engine/cassette/internal/casserrors"
	"github.com/cassette-engine/cassette/internal/config"
	"github.com/cassette-engine/cassette/internal/daemon"
	"github.com/cassette-engine/cassette/internal/embedregistry"
	"github.com/cassette-engine/cassette/internal/lexical"
	"github.com/cassette-engine/cassette/internal/query"
	"github.com/cassette-engine/cassette/internal/telemetry"
	"github.com/cassette-engine/cassette/internal/vectorindex"
)

func defaultDataDir() string {
	return config.Default().DataDir
}

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a query through the planner (lexical, semantic, or hybrid)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rawQuery := args[0]
			for _, a := range args[1:] {
				rawQuery += " " + a
			}
			return runSearch(cmd.Context(), rawQuery)
		},
	}
	return cmd
}

func parseMode(s string) (query.Mode, error) {
	switch s {
	case "lexical":
		return query.ModeLexical, nil
	case "semantic":
		return query.ModeVector, nil
	case "hybrid", "":
		return query.ModeHybrid, nil
	default:
		return "", casserrors.New(casserrors.KindInvalidInput, "unknown mode "+s+"; want lexical|semantic|hybrid")
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// buildPlanner wires the embedder registry, vector/ANN/lexical indexes, and
// daemon client into one query.Planner rooted at opts.DataDir,
// degrading every optional leg independently: a missing CVVI file leaves
// VectorExact nil (vector leg yields no hits rather than failing), a
// missing lexical index leaves Lexical nil, and an unhealthy daemon leaves
// Daemon set but RerankWithContent simply returns candidates unchanged.
func buildPlanner(opts config.EngineOptions, embedderName string, logger *slog.Logger) (*query.Planner, embedregistry.Descriptor, error) {
	reg := embedregistry.NewRegistry(opts.ModelsDir())

	var desc embedregistry.Descriptor
	var err error
	if embedderName != "" {
		desc, err = reg.Get(embedderName)
		if err != nil {
			return nil, embedregistry.Descriptor{}, err
		}
	} else {
		desc = reg.BestAvailable()
	}

	emb, err := embedregistry.Load(desc, opts.ModelsDir(), 1024)
	if err != nil {
		logger.Warn("embedder unavailable, falling back to hash", slog.String("embedder", desc.ID), slog.String("error", err.Error()))
		emb = embedregistry.NewHashEmbedder()
		desc, _ = reg.Get(embedregistry.HashDescriptorID)
	}

	var vecIdx *vectorindex.VectorIndex
	cvviPath := filepath.Join(opts.VectorIndexDir(), "index-"+desc.ID+".cvvi")
	if fileExists(cvviPath) {
		if v, loadErr := vectorindex.Load(cvviPath, opts.F16Preconvert); loadErr == nil {
			vecIdx = v
		} else {
			logger.Warn("cvvi load failed", slog.String("path", cvviPath), slog.String("error", loadErr.Error()))
		}
	}

	var annIdx *ann.Index
	if approximate {
		chswPath := filepath.Join(opts.VectorIndexDir(), "hnsw-"+desc.ID+".chsw")
		if fileExists(chswPath) {
			annIdx = ann.LoadOrRebuild(chswPath, desc.Dimension, desc.ID, ann.DefaultParams(), logger)
		}
	}

	var lexIdx *lexical.Index
	lexPath := filepath.Join(opts.DataDir, "lexical", desc.ID+".bleve")
	if fileExists(lexPath) {
		if l, openErr := lexical.Open(lexPath); openErr == nil {
			lexIdx = l
		} else {
			logger.Warn("lexical index open failed", slog.String("path", lexPath), slog.String("error", openErr.Error()))
		}
	}

	daemonCfg := daemon.DefaultConfig()
	daemonCfg.SocketPath = opts.DaemonSocket
	daemonCfg.ConnectTimeout = opts.DaemonConnectTimeout
	daemonCfg.RequestTimeout = opts.DaemonRequestTimeout
	daemonCfg.AutoSpawn = opts.DaemonAutoSpawn
	daemonClient := daemon.NewClient(daemonCfg)

	cache, err := query.NewCache(256)
	if err != nil {
		return nil, embedregistry.Descriptor{}, casserrors.Wrap(casserrors.KindFailed, "build query cache", err)
	}

	planner := &query.Planner{
		Lexical:     lexIdx,
		VectorExact: vecIdx,
		VectorANN:   annIdx,
		Embedder:    emb,
		Daemon:      daemonClient,
		Cache:       cache,
		Metrics:     telemetry.NewQueryMetrics(nil),
	}
	return planner, desc, nil
}

// hydrateFromLexical looks up each candidate's stored content via the
// lexical index so the rerank pass has text to send to the daemon (the
// planner has no access to row content itself).
func hydrateFromLexical(ctx context.Context, lex *lexical.Index, candidates []query.Blended) []string {
	content := make([]string, len(candidates))
	if lex == nil {
		return content
	}
	for i, c := range candidates {
		if text, ok, err := lex.Content(ctx, c.MessageID, c.ChunkIdx); err == nil && ok {
			content[i] = text
		}
	}
	return content
}

func runSearch(ctx context.Context, rawQuery string) error {
	opts := config.Default()
	opts.DataDir = dataDir
	if err := opts.Validate(); err != nil {
		return casserrors.Wrap(casserrors.KindInvalidInput, "invalid engine options", err)
	}

	m, err := parseMode(mode)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	planner, _, err := buildPlanner(opts, embedder, logger)
	if err != nil {
		return err
	}

	results, err := planner.Search(ctx, rawQuery, query.Options{
		Mode:        m,
		Limit:       limit,
		Approximate: approximate,
		Rerank:      rerank,
	})
	if err != nil {
		return err
	}

	degraded := false
	if rerank {
		if planner.Daemon == nil {
			degraded = true
		} else if health, healthErr := planner.Daemon.Health(ctx); healthErr != nil || !health.Ready {
			degraded = true
		} else {
			content := hydrateFromLexical(ctx, planner.Lexical, results)
			if reranked, rerankErr := planner.RerankWithContent(ctx, rawQuery, results, content); rerankErr == nil {
				results = reranked
			} else {
				logger.Warn("rerank pass failed, keeping blended order", slog.String("error", rerankErr.Error()))
				degraded = true
			}
		}
	}

	for i, r := range results {
		fmt.Printf("%d. message=%d chunk=%d score=%.4f (lex=%.4f vec=%.4f)\n",
			i+1, r.MessageID, r.ChunkIdx, r.Score, r.LexScore, r.VecScore)
	}

	if degraded {
		return newDegraded("rerank requested but the warm daemon is unavailable; returned unreranked results")
	}
	return nil
}
