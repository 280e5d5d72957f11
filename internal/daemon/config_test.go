package daemon

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsEmptySocketPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SocketPath = ""
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequestTimeout = 0
	require.Error(t, cfg.Validate())
}
