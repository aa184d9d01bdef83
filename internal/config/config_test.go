package config_test

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/adrg/xdg"

	cfg "github.com/NamanBalaji/tbs/internal/config"
)

func withTempConfigHome(t *testing.T) (restore func(), dir string, file string) {
	t.Helper()
	orig := xdg.ConfigHome
	dir = t.TempDir()
	xdg.ConfigHome = dir
	restore = func() { xdg.ConfigHome = orig }
	file = filepath.Join(dir, "tbs", "config.yaml")
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		t.Fatalf("create config dir: %v", err)
	}
	return
}

func TestGetConfig_Table(t *testing.T) {
	restore, _, cfgFile := withTempConfigHome(t)
	defer restore()

	def := cfg.DefaultConfig()

	tests := []struct {
		name      string
		preWrite  bool
		contents  string
		expectErr bool
		check     func(t *testing.T, got *cfg.Config, def cfg.Config)
	}{
		{
			name:     "missing_file_returns_defaults",
			preWrite: false,
			check: func(t *testing.T, got *cfg.Config, def cfg.Config) {
				if !reflect.DeepEqual(*got, def) {
					t.Fatalf("expected defaults\nwant: %#v\ngot:  %#v", def, *got)
				}
			},
		},
		{
			name:     "empty_file_returns_defaults",
			preWrite: true,
			contents: "",
			check: func(t *testing.T, got *cfg.Config, def cfg.Config) {
				if !reflect.DeepEqual(*got, def) {
					t.Fatalf("expected defaults\nwant: %#v\ngot:  %#v", def, *got)
				}
			},
		},
		{
			name:      "invalid_yaml_returns_error",
			preWrite:  true,
			contents:  ": not yaml",
			expectErr: true,
			check:     func(t *testing.T, _ *cfg.Config, _ cfg.Config) {},
		},
		{
			name:     "no_cache_section_uses_defaults",
			preWrite: true,
			contents: "threads: 3\n",
			check: func(t *testing.T, got *cfg.Config, def cfg.Config) {
				if got.Threads != 3 {
					t.Fatalf("threads not applied, got %d", got.Threads)
				}
				if !reflect.DeepEqual(*got.Cache, *def.Cache) {
					t.Fatalf("cache defaults not applied\nwant: %#v\ngot:  %#v", *def.Cache, *got.Cache)
				}
			},
		},
		{
			name:     "partial_override_and_fallback",
			preWrite: true,
			contents: `
resize: true
maxBoundaryCombinations: 16
metricsFile: /var/lib/node_exporter/tbs.prom
cache:
  path: /tmp/tbs-cache.db
`,
			check: func(t *testing.T, got *cfg.Config, def cfg.Config) {
				if !got.Resize {
					t.Fatalf("want resize=true")
				}
				if got.MaxBoundaryCombinations != 16 {
					t.Fatalf("want maxBoundaryCombinations=16 got %d", got.MaxBoundaryCombinations)
				}
				if got.MetricsFile != "/var/lib/node_exporter/tbs.prom" {
					t.Fatalf("want metricsFile override got %q", got.MetricsFile)
				}
				if got.Cache.Path != "/tmp/tbs-cache.db" {
					t.Fatalf("want cache.path override got %q", got.Cache.Path)
				}
				if !got.Cache.IsEnabled() {
					t.Fatalf("cache.enabled should fall back to the default")
				}
				if got.Threads != def.Threads {
					t.Fatalf("want threads default %d got %d", def.Threads, got.Threads)
				}
				if got.MaxBoundaryCandidates != def.MaxBoundaryCandidates {
					t.Fatalf("want maxBoundaryCandidates default %d got %d", def.MaxBoundaryCandidates, got.MaxBoundaryCandidates)
				}
			},
		},
		{
			name:     "explicit_cache_disable_is_kept",
			preWrite: true,
			contents: "cache:\n  enabled: false\n",
			check: func(t *testing.T, got *cfg.Config, def cfg.Config) {
				if got.Cache.IsEnabled() {
					t.Fatalf("cache.enabled=false should not fall back to the default")
				}
				if got.Cache.Path != def.Cache.Path {
					t.Fatalf("want cache.path default %q got %q", def.Cache.Path, got.Cache.Path)
				}
			},
		},
		{
			name:     "explicit_zero_values_fall_back_to_defaults",
			preWrite: true,
			contents: `
threads: 0
maxBoundaryCandidates: 0
maxBoundaryCombinations: 0
cache:
  path: ""
`,
			check: func(t *testing.T, got *cfg.Config, def cfg.Config) {
				if got.Threads != def.Threads {
					t.Fatalf("threads zero should fallback. want %d got %d", def.Threads, got.Threads)
				}
				if got.MaxBoundaryCandidates != def.MaxBoundaryCandidates {
					t.Fatalf("maxBoundaryCandidates zero should fallback. want %d got %d", def.MaxBoundaryCandidates, got.MaxBoundaryCandidates)
				}
				if got.MaxBoundaryCombinations != def.MaxBoundaryCombinations {
					t.Fatalf("maxBoundaryCombinations zero should fallback. want %d got %d", def.MaxBoundaryCombinations, got.MaxBoundaryCombinations)
				}
				if got.Cache.Path != def.Cache.Path {
					t.Fatalf("cache.path zero should fallback. want %q got %q", def.Cache.Path, got.Cache.Path)
				}
			},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_ = os.Remove(cfgFile)
			if tc.preWrite {
				if err := os.WriteFile(cfgFile, []byte(tc.contents), 0o600); err != nil {
					t.Fatalf("write test config: %v", err)
				}
			}
			got, err := cfg.GetConfig()
			if tc.expectErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("GetConfig error: %v", err)
			}
			tc.check(t, got, def)
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	d := cfg.DefaultConfig()
	if d.Cache == nil {
		t.Fatalf("DefaultConfig.Cache is nil")
	}
	if !d.Cache.IsEnabled() {
		t.Fatalf("cache should be enabled by default")
	}
	if d.Threads < 1 {
		t.Fatalf("default threads must be positive, got %d", d.Threads)
	}
	if d.MaxBoundaryCandidates != 4 || d.MaxBoundaryCombinations != 64 {
		t.Fatalf("unexpected boundary limits %d/%d", d.MaxBoundaryCandidates, d.MaxBoundaryCombinations)
	}
}

func TestCacheConfig_IsEnabled_Nil(t *testing.T) {
	var c *cfg.CacheConfig
	if c.IsEnabled() {
		t.Fatalf("nil cache config must report disabled")
	}
}
