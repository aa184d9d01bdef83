package config_test

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfg "github.com/NamanBalaji/tbs/internal/config"
	tbserrors "github.com/NamanBalaji/tbs/internal/errors"
)

func loadWithArgs(t *testing.T, args ...string) (*cfg.Options, error) {
	t.Helper()

	def := cfg.DefaultConfig()
	cmd := &cobra.Command{Use: "tbs"}
	cfg.SetupFlags(cmd, &def)
	require.NoError(t, cmd.ParseFlags(args))

	v := viper.New()
	require.NoError(t, cfg.BindFlags(cmd, v))

	return cfg.Load(v)
}

func TestLoad_Flags(t *testing.T) {
	opts, err := loadWithArgs(t,
		"--torrents", "a.torrent,b.torrent",
		"--scan", "/data/one",
		"--scan", "/data/two",
		"--export", "/export",
		"--threads", "3",
		"--resize",
		"--dry-run",
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.torrent", "b.torrent"}, opts.Torrents)
	assert.Equal(t, []string{"/data/one", "/data/two"}, opts.ScanRoots)
	assert.Equal(t, "/export", opts.ExportRoot)
	assert.Equal(t, 3, opts.Threads)
	assert.True(t, opts.Resize)
	assert.True(t, opts.DryRun)
	assert.False(t, opts.Verify)
	assert.True(t, opts.CacheEnabled)
	assert.Equal(t, 4, opts.MaxBoundaryCandidates)
	assert.Equal(t, 64, opts.MaxBoundaryCombinations)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("TBS_THREADS", "7")
	t.Setenv("TBS_NO_CACHE", "true")
	t.Setenv("TBS_EXPORT", "/from/env")

	opts, err := loadWithArgs(t, "--torrents", "a.torrent")
	require.NoError(t, err)

	assert.Equal(t, 7, opts.Threads)
	assert.False(t, opts.CacheEnabled)
	assert.Equal(t, "/from/env", opts.ExportRoot)
}

func TestLoad_EmptyCachePathDisablesCache(t *testing.T) {
	opts, err := loadWithArgs(t, "--torrents", "a.torrent", "--export", "/export", "--cache", "")
	require.NoError(t, err)
	assert.False(t, opts.CacheEnabled)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "no_torrents", args: []string{"--export", "/export"}},
		{name: "no_export", args: []string{"--torrents", "a.torrent"}},
		{name: "zero_threads", args: []string{"--torrents", "a.torrent", "--export", "/export", "--threads", "0"}},
		{name: "zero_combinations", args: []string{"--torrents", "a.torrent", "--export", "/export", "--max-boundary-combinations", "0"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loadWithArgs(t, tc.args...)
			require.Error(t, err)
			assert.ErrorIs(t, err, tbserrors.ErrInvalidOptions)
		})
	}
}
