// Command cassette-daemon hosts the long-lived embedder/reranker process
// the warm daemon client (internal/daemon) connects to over a Unix domain
// socket, implementing internal/daemon.Handler around an in-process
// embedding and rerank service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassette-engine/cassette/internal/casserrors"
	"github.com/cassette-engine/cassette/internal/config"
	"github.com/cassette-engine/cassette/internal/daemon"
	"github.com/cassette-engine/cassette/internal/embedregistry"
)

// handler implements daemon.Handler by delegating to an embedregistry
// embedder for Embed and, for Rerank, scoring each candidate by the dot
// product between its embedding and the query's embedding -- a
// cross-encoder stand-in (see internal/embedregistry/semantic.go); swapping
// in a real cross-encoder means implementing a new
// embedregistry.InferenceBackend and does not change this wiring.
type handler struct {
	registry  *embedregistry.Registry
	modelsDir string
	logger    *slog.Logger
}

func (h *handler) resolveEmbedder(id string) (embedregistry.Embedder, error) {
	var desc embedregistry.Descriptor
	var err error
	if id != "" {
		desc, err = h.registry.Get(id)
	} else {
		desc = h.registry.BestAvailable()
	}
	if err != nil {
		return nil, err
	}
	return embedregistry.Load(desc, h.modelsDir, 0)
}

func (h *handler) HandleHealth(ctx context.Context) daemon.HealthResult {
	desc := h.registry.BestAvailable()
	return daemon.HealthResult{Ready: true, EmbedderID: desc.ID}
}

func (h *handler) HandleEmbed(ctx context.Context, params daemon.EmbedParams) (daemon.EmbedResult, error) {
	if len(params.Texts) == 0 {
		return daemon.EmbedResult{}, casserrors.New(casserrors.KindInvalidInput, "embed: empty texts")
	}
	emb, err := h.resolveEmbedder(params.EmbedderID)
	if err != nil {
		return daemon.EmbedResult{}, err
	}
	vecs, err := emb.EmbedBatch(ctx, params.Texts)
	if err != nil {
		return daemon.EmbedResult{}, err
	}
	return daemon.EmbedResult{Vectors: vecs}, nil
}

func (h *handler) HandleRerank(ctx context.Context, params daemon.RerankParams) (daemon.RerankResult, error) {
	if len(params.Candidates) == 0 {
		return daemon.RerankResult{}, casserrors.New(casserrors.KindInvalidInput, "rerank: empty candidates")
	}
	emb, err := h.resolveEmbedder("")
	if err != nil {
		return daemon.RerankResult{}, err
	}
	queryVec, err := emb.Embed(ctx, params.Query)
	if err != nil {
		return daemon.RerankResult{}, err
	}
	candVecs, err := emb.EmbedBatch(ctx, params.Candidates)
	if err != nil {
		return daemon.RerankResult{}, err
	}

	scores := make([]float64, len(candVecs))
	for i, v := range candVecs {
		scores[i] = dot(queryVec, v)
	}
	return daemon.RerankResult{Scores: scores}, nil
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	opts := config.Default()
	h := &handler{registry: embedregistry.NewRegistry(opts.ModelsDir()), modelsDir: opts.ModelsDir(), logger: logger}

	daemonCfg := daemon.DefaultConfig()
	daemonCfg.SocketPath = opts.DaemonSocket

	pidFile := daemon.NewPIDFile(daemonCfg.PIDPath)
	if err := pidFile.Write(); err != nil {
		logger.Error("write pid file failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pidFile.Remove()

	srv := daemon.NewServer(daemonCfg.SocketPath, h)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("cassette-daemon listening", slog.String("socket", daemonCfg.SocketPath))
	if err := srv.ListenAndServe(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
