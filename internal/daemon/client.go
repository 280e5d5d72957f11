package daemon

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cassette-engine/cassette/internal/casserrors"
)

// State is the client's view of daemon availability.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	default:
		return "disconnected"
	}
}

// Client talks to the warm daemon over a length-prefixed protocol on a Unix
// domain socket, caching health status and tripping a circuit breaker on
// repeated failure so callers degrade to a fast-path-only search instead of
// blocking on a dead daemon.
type Client struct {
	cfg       Config
	requestID atomic.Uint64
	breaker   *casserrors.CircuitBreaker

	mu           sync.Mutex
	state        State
	lastHealth   *HealthResult
	lastHealthAt time.Time
}

// NewClient creates a client for cfg.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg:     cfg,
		breaker: casserrors.NewCircuitBreaker("daemon", casserrors.WithMaxFailures(3), casserrors.WithResetTimeout(15*time.Second)),
		state:   StateDisconnected,
	}
}

// State returns the client's current view of daemon availability.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// clearHealth invalidates the cached health result so the next Health call
// redials instead of serving a stale ready:true. Called on any I/O error or
// timeout: a daemon that just failed to answer should not keep reporting
// itself healthy for up to HealthCacheTTL.
func (c *Client) clearHealth() {
	c.mu.Lock()
	c.lastHealth = nil
	c.mu.Unlock()
}

func (c *Client) connect(ctx context.Context) (net.Conn, error) {
	c.setState(StateConnecting)
	d := net.Dialer{Timeout: c.cfg.ConnectTimeout}
	conn, err := d.DialContext(ctx, "unix", c.cfg.SocketPath)
	if err != nil {
		c.setState(StateDisconnected)
		return nil, casserrors.Wrap(casserrors.KindUnavailable, "connect to daemon", err)
	}
	c.setState(StateReady)
	return conn, nil
}

func (c *Client) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(c.cfg.RequestTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(d) {
		d = dl
	}
	return d
}

func (c *Client) nextID() string {
	return fmt.Sprintf("req-%d", c.requestID.Add(1))
}

// roundTrip opens a connection, writes req, reads one response, and closes
// the connection. Failures are recorded on the circuit breaker; repeated
// failures trip it and future calls fail fast with KindUnavailable without
// attempting to dial.
func (c *Client) roundTrip(ctx context.Context, method string, params any) (*Response, error) {
	if !c.breaker.Allow() {
		return nil, casserrors.New(casserrors.KindUnavailable, "daemon circuit breaker open")
	}

	conn, err := c.connect(ctx)
	if err != nil {
		c.breaker.RecordFailure()
		c.clearHealth()
		return nil, err
	}
	defer conn.Close()

	if err := conn.SetDeadline(c.deadline(ctx)); err != nil {
		c.breaker.RecordFailure()
		c.clearHealth()
		return nil, casserrors.Wrap(casserrors.KindFailed, "set connection deadline", err)
	}

	req := Request{JSONRPC: "2.0", Method: method, Params: params, ID: c.nextID()}
	if err := writeFrame(conn, req); err != nil {
		c.breaker.RecordFailure()
		c.clearHealth()
		c.setState(StateDisconnected)
		return nil, err
	}

	var resp Response
	if err := readFrame(conn, &resp); err != nil {
		c.breaker.RecordFailure()
		c.clearHealth()
		c.setState(StateDisconnected)
		return nil, err
	}

	if resp.Error != nil {
		if resp.Error.Code == ErrCodeTimeout || resp.Error.Code == ErrCodeOverloaded {
			c.breaker.RecordFailure()
		}
		if resp.Error.Code == ErrCodeTimeout {
			c.clearHealth()
		}
		return &resp, nil
	}

	c.breaker.RecordSuccess()
	return &resp, nil
}

// Health returns daemon readiness, using a cached result for up to
// cfg.HealthCacheTTL instead of dialing on every call.
func (c *Client) Health(ctx context.Context) (HealthResult, error) {
	c.mu.Lock()
	if c.lastHealth != nil && time.Since(c.lastHealthAt) < c.cfg.HealthCacheTTL {
		cached := *c.lastHealth
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	resp, err := c.roundTrip(ctx, MethodHealth, HealthParams{})
	if err != nil {
		return HealthResult{}, err
	}
	if resp.Error != nil {
		return HealthResult{}, casserrors.New(casserrors.KindFailed, resp.Error.Message)
	}

	result, err := decodeResult[HealthResult](resp.Result)
	if err != nil {
		return HealthResult{}, err
	}

	c.mu.Lock()
	c.lastHealth = &result
	c.lastHealthAt = time.Now()
	c.mu.Unlock()

	if result.Ready {
		c.breaker.RecordSuccess()
	}
	return result, nil
}

// Embed requests embeddings for texts.
func (c *Client) Embed(ctx context.Context, texts []string, embedderID string) ([][]float32, error) {
	resp, err := c.roundTrip(ctx, MethodEmbed, EmbedParams{Texts: texts, EmbedderID: embedderID})
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, casserrors.New(errKindForCode(resp.Error.Code), resp.Error.Message)
	}
	result, err := decodeResult[EmbedResult](resp.Result)
	if err != nil {
		return nil, err
	}
	return result.Vectors, nil
}

// Rerank requests cross-encoder scores for (query, candidate) pairs.
func (c *Client) Rerank(ctx context.Context, query string, candidates []string) ([]float64, error) {
	resp, err := c.roundTrip(ctx, MethodRerank, RerankParams{Query: query, Candidates: candidates})
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, casserrors.New(errKindForCode(resp.Error.Code), resp.Error.Message)
	}
	result, err := decodeResult[RerankResult](resp.Result)
	if err != nil {
		return nil, err
	}
	return result.Scores, nil
}

// Shutdown asks the daemon to exit gracefully.
func (c *Client) Shutdown(ctx context.Context) error {
	resp, err := c.roundTrip(ctx, MethodShutdown, ShutdownParams{})
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return casserrors.New(casserrors.KindFailed, resp.Error.Message)
	}
	return nil
}

func errKindForCode(code int) casserrors.Kind {
	switch code {
	case ErrCodeOverloaded:
		return casserrors.KindOverloaded
	case ErrCodeTimeout:
		return casserrors.KindTimeout
	case ErrCodeInvalidParams:
		return casserrors.KindInvalidInput
	default:
		return casserrors.KindFailed
	}
}

// EnsureRunning dials the daemon; if unreachable and cfg.AutoSpawn is set,
// it spawns the daemon binary and retries with exponential backoff capped
// at 10 attempts.
func (c *Client) EnsureRunning(ctx context.Context, daemonBinary string) error {
	if _, err := c.Health(ctx); err == nil {
		return nil
	}
	if !c.cfg.AutoSpawn {
		return casserrors.New(casserrors.KindUnavailable, "daemon not running and auto-spawn disabled")
	}

	if err := c.cfg.EnsureDir(); err != nil {
		return casserrors.Wrap(casserrors.KindFailed, "prepare daemon directories", err)
	}
	_ = os.Remove(c.cfg.SocketPath) // clear a stale socket left by a crashed daemon

	cmd := exec.CommandContext(context.Background(), daemonBinary, "--socket", c.cfg.SocketPath, "--pid-file", c.cfg.PIDPath)
	if err := cmd.Start(); err != nil {
		return casserrors.Wrap(casserrors.KindFailed, "spawn daemon process", err)
	}

	backoff := 50 * time.Millisecond
	for attempt := 0; attempt < 10; attempt++ {
		select {
		case <-ctx.Done():
			return casserrors.Wrap(casserrors.KindCancelled, "wait for daemon startup", ctx.Err())
		case <-time.After(backoff):
		}
		if _, err := c.Health(ctx); err == nil {
			return nil
		}
		backoff *= 2
	}
	return casserrors.New(casserrors.KindUnavailable, "daemon did not become healthy after auto-spawn")
}
