package daemon

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeHandler struct {
	dim int
}

func (f *fakeHandler) HandleHealth(ctx context.Context) HealthResult {
	return HealthResult{Ready: true, EmbedderID: "hash-fnv1a-384"}
}

func (f *fakeHandler) HandleEmbed(ctx context.Context, params EmbedParams) (EmbedResult, error) {
	vectors := make([][]float32, len(params.Texts))
	for i := range params.Texts {
		vectors[i] = make([]float32, f.dim)
	}
	return EmbedResult{Vectors: vectors}, nil
}

func (f *fakeHandler) HandleRerank(ctx context.Context, params RerankParams) (RerankResult, error) {
	scores := make([]float64, len(params.Candidates))
	for i := range params.Candidates {
		scores[i] = 1.0 / float64(i+1)
	}
	return RerankResult{Scores: scores}, nil
}

func startTestServer(t *testing.T, socketPath string, handler Handler) (*Server, context.CancelFunc) {
	t.Helper()
	srv := NewServer(socketPath, handler)
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	go func() {
		close(ready)
		_ = srv.ListenAndServe(ctx)
	}()
	<-ready
	time.Sleep(50 * time.Millisecond)
	return srv, cancel
}

func testClient(socketPath string) *Client {
	cfg := DefaultConfig()
	cfg.SocketPath = socketPath
	cfg.AutoSpawn = false
	cfg.ConnectTimeout = time.Second
	cfg.RequestTimeout = 2 * time.Second
	return NewClient(cfg)
}

func TestClientServerHealthRoundTrip(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "daemon.sock")
	_, cancel := startTestServer(t, socketPath, &fakeHandler{dim: 8})
	defer cancel()

	client := testClient(socketPath)
	result, err := client.Health(context.Background())
	require.NoError(t, err)
	require.True(t, result.Ready)
	require.Equal(t, "hash-fnv1a-384", result.EmbedderID)
}

func TestClientServerEmbedRoundTrip(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "daemon.sock")
	_, cancel := startTestServer(t, socketPath, &fakeHandler{dim: 16})
	defer cancel()

	client := testClient(socketPath)
	vectors, err := client.Embed(context.Background(), []string{"a", "b"}, "")
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	require.Len(t, vectors[0], 16)
}

func TestClientServerRerankRoundTrip(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "daemon.sock")
	_, cancel := startTestServer(t, socketPath, &fakeHandler{dim: 8})
	defer cancel()

	client := testClient(socketPath)
	scores, err := client.Rerank(context.Background(), "query", []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, scores, 3)
}

func TestClientHealthFailsFastWhenNoDaemon(t *testing.T) {
	client := testClient(filepath.Join(t.TempDir(), "missing.sock"))
	_, err := client.Health(context.Background())
	require.Error(t, err)
}

func TestCircuitBreakerOpensAfterRepeatedFailures(t *testing.T) {
	client := testClient(filepath.Join(t.TempDir(), "missing.sock"))
	for i := 0; i < 5; i++ {
		_, _ = client.Health(context.Background())
	}
	_, err := client.Embed(context.Background(), []string{"x"}, "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "circuit breaker open")
}
