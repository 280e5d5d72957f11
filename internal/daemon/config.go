package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds configuration for the warm daemon process and its clients.
type Config struct {
	// SocketPath is the Unix domain socket path for IPC.
	SocketPath string

	// PIDPath is the file path for storing the daemon's process ID.
	PIDPath string

	// ConnectTimeout bounds dialing the socket.
	ConnectTimeout time.Duration

	// RequestTimeout bounds a single request/response round trip.
	RequestTimeout time.Duration

	// ShutdownGracePeriod is the time to wait for graceful shutdown.
	ShutdownGracePeriod time.Duration

	// AutoSpawn enables the client auto-starting the daemon if not running.
	AutoSpawn bool

	// HealthCacheTTL is how long a cached Health result is treated as
	// authoritative before the client re-probes (default 30s).
	HealthCacheTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults rooted under
// ~/.cassette/.
func DefaultConfig() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "/tmp"
	}
	dir := filepath.Join(home, ".cassette")

	return Config{
		SocketPath:          filepath.Join(dir, "daemon.sock"),
		PIDPath:             filepath.Join(dir, "daemon.pid"),
		ConnectTimeout:      2 * time.Second,
		RequestTimeout:      10 * time.Second,
		ShutdownGracePeriod: 10 * time.Second,
		AutoSpawn:           true,
		HealthCacheTTL:      30 * time.Second,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.SocketPath == "" {
		return fmt.Errorf("socket path cannot be empty")
	}
	if c.PIDPath == "" {
		return fmt.Errorf("PID path cannot be empty")
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if c.ShutdownGracePeriod <= 0 {
		return fmt.Errorf("shutdown grace period must be positive")
	}
	return nil
}

// EnsureDir creates the directories for the socket and PID files.
func (c Config) EnsureDir() error {
	socketDir := filepath.Dir(c.SocketPath)
	if err := os.MkdirAll(socketDir, 0o755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}
	pidDir := filepath.Dir(c.PIDPath)
	if pidDir != socketDir {
		if err := os.MkdirAll(pidDir, 0o755); err != nil {
			return fmt.Errorf("failed to create PID directory: %w", err)
		}
	}
	return nil
}
