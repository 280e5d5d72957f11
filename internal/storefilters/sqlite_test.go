package storefilters

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSQLiteStoreFilterMapsAndHydrate(t *testing.T) {
	s, err := OpenSQLiteStore("")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	_, err = s.db.ExecContext(ctx, `INSERT INTO agents (id, slug) VALUES (1, 'claude')`)
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, `INSERT INTO workspaces (id, path) VALUES (1, '/repo')`)
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, `INSERT INTO sources (id, name) VALUES (1, 'cli')`)
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, `INSERT INTO messages (message_id, agent_id, workspace_id, source_id, role, created_at_ms, content)
		VALUES (42, 1, 1, 1, 'assistant', 1000, 'hello world')`)
	require.NoError(t, err)

	id, ok := s.AgentID(ctx, "claude")
	require.True(t, ok)
	require.Equal(t, uint32(1), id)

	_, ok = s.AgentID(ctx, "nonexistent")
	require.False(t, ok)

	rows, err := s.Hydrate(ctx, []uint64{42, 999})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, uint64(42), rows[0].MessageID)
	require.Equal(t, "claude", rows[0].AgentSlug)
	require.Equal(t, "hello world", rows[0].Content)
}
