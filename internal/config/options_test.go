package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultOptionsValid(t *testing.T) {
	opts := Default()
	require.NoError(t, opts.Validate())
	require.True(t, opts.SimdDot)
	require.True(t, opts.F16Preconvert)
	require.True(t, opts.ParallelSearch)
	require.True(t, opts.DaemonAutoSpawn)
}

func TestBoolEnvParsing(t *testing.T) {
	cases := []struct {
		name string
		val  string
		def  bool
		want bool
	}{
		{"zero disables", "0", true, false},
		{"false disables", "false", true, false},
		{"one enables", "1", false, true},
		{"garbage falls back to default", "bogus", true, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("CASS_TEST_BOOL", tc.val)
			require.Equal(t, tc.want, boolEnv("CASS_TEST_BOOL", tc.def))
		})
	}
}

func TestValidateRejectsEmptyDataDir(t *testing.T) {
	opts := Default()
	opts.DataDir = ""
	require.Error(t, opts.Validate())
}
