package config

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	tbserrors "github.com/NamanBalaji/tbs/internal/errors"
)

const envPrefix = "TBS"

var flagNames = []string{
	"torrents", "scan", "export", "threads", "resize", "verify", "dry-run",
	"no-cache", "cache", "max-boundary-candidates", "max-boundary-combinations",
	"metrics-file", "log-file", "verbose", "debug",
}

// Options is the fully resolved configuration of one run.
type Options struct {
	Torrents   []string
	ScanRoots  []string
	ExportRoot string

	Threads int
	Resize  bool
	Verify  bool
	DryRun  bool

	CacheEnabled bool
	CachePath    string

	MaxBoundaryCandidates   int
	MaxBoundaryCombinations int

	MetricsFile string
	LogFile     string
	Verbose     bool
	Debug       bool
}

// Validate checks the options a run cannot start without.
func (o *Options) Validate() error {
	if len(o.Torrents) == 0 {
		return fmt.Errorf("%w: at least one torrent is required", tbserrors.ErrInvalidOptions)
	}
	if o.ExportRoot == "" {
		return fmt.Errorf("%w: export path is required", tbserrors.ErrInvalidOptions)
	}
	if o.Threads < 1 {
		return fmt.Errorf("%w: threads must be at least 1, got %d", tbserrors.ErrInvalidOptions, o.Threads)
	}
	if o.MaxBoundaryCandidates < 1 {
		return fmt.Errorf("%w: max boundary candidates must be at least 1", tbserrors.ErrInvalidOptions)
	}
	if o.MaxBoundaryCombinations < 1 {
		return fmt.Errorf("%w: max boundary combinations must be at least 1", tbserrors.ErrInvalidOptions)
	}
	return nil
}

// SetupFlags registers the run flags on cmd, taking defaults from the configuration file.
func SetupFlags(cmd *cobra.Command, cfg *Config) {
	flags := cmd.Flags()

	flags.StringSliceP("torrents", "t", nil, "Torrent files to reconcile")
	flags.StringSliceP("scan", "s", nil, "Directories to search for existing content")
	flags.StringP("export", "e", "", "Directory the completed files are written to")
	flags.IntP("threads", "j", cfg.Threads, "Number of files scanned and written in parallel")
	flags.Bool("resize", cfg.Resize, "Grow export files to their declared length")
	flags.Bool("verify", cfg.Verify, "Re-hash every piece of the export files after writing")
	flags.Bool("dry-run", false, "Plan the copies without writing anything")
	flags.Bool("no-cache", !cfg.Cache.IsEnabled(), "Do not read or store scan results in the cache")
	flags.String("cache", cfg.Cache.Path, "Scan cache database path")
	flags.Int("max-boundary-candidates", cfg.MaxBoundaryCandidates, "Candidates tried per file when verifying pieces that span files")
	flags.Int("max-boundary-combinations", cfg.MaxBoundaryCombinations, "Candidate combinations tried per piece that spans files")
	flags.String("metrics-file", cfg.MetricsFile, "Write Prometheus metrics to this textfile after the run")
	flags.String("log-file", cfg.LogFile, "Append log lines to this file")
	flags.BoolP("verbose", "v", false, "Mirror log lines to stderr")
	flags.Bool("debug", false, "Include debug log lines")
}

// BindFlags binds the run flags and TBS_* environment variables to viper.
func BindFlags(cmd *cobra.Command, v *viper.Viper) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for _, flag := range flagNames {
		if err := v.BindPFlag(flag, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("binding flag %s: %w", flag, err)
		}
	}

	return nil
}

// Load resolves the run options from viper and validates them.
func Load(v *viper.Viper) (*Options, error) {
	opts := &Options{
		Torrents:                v.GetStringSlice("torrents"),
		ScanRoots:               v.GetStringSlice("scan"),
		ExportRoot:              v.GetString("export"),
		Threads:                 v.GetInt("threads"),
		Resize:                  v.GetBool("resize"),
		Verify:                  v.GetBool("verify"),
		DryRun:                  v.GetBool("dry-run"),
		CacheEnabled:            !v.GetBool("no-cache"),
		CachePath:               v.GetString("cache"),
		MaxBoundaryCandidates:   v.GetInt("max-boundary-candidates"),
		MaxBoundaryCombinations: v.GetInt("max-boundary-combinations"),
		MetricsFile:             v.GetString("metrics-file"),
		LogFile:                 v.GetString("log-file"),
		Verbose:                 v.GetBool("verbose"),
		Debug:                   v.GetBool("debug"),
	}

	if opts.CachePath == "" {
		opts.CacheEnabled = false
	}

	if err := opts.Validate(); err != nil {
		return nil, err
	}

	return opts, nil
}
