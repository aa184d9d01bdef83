package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/NamanBalaji/tbs/internal/config"
	"github.com/NamanBalaji/tbs/internal/engine"
	tbserrors "github.com/NamanBalaji/tbs/internal/errors"
	"github.com/NamanBalaji/tbs/internal/logger"
	"github.com/NamanBalaji/tbs/internal/metrics"
	"github.com/NamanBalaji/tbs/internal/progress"
	"github.com/NamanBalaji/tbs/internal/repository"
)

// Exit codes.
const (
	exitOK         = 0
	exitFailure    = 1 // nothing could be reconciled
	exitIncomplete = 2 // the run finished but some export files could not be written
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	err := run()
	if err == nil {
		os.Exit(exitOK)
	}

	fmt.Fprintf(os.Stderr, "error: %v\n", err)

	var ee *exitError
	if tbserrors.As(err, &ee) {
		os.Exit(ee.code)
	}
	os.Exit(exitFailure)
}

func run() error {
	fileCfg, err := config.GetConfig()
	if err != nil {
		return fmt.Errorf("reading %s: %w", config.Path(), err)
	}

	rootCmd := &cobra.Command{
		Use:   "tbs",
		Short: "Complete torrent downloads from data already on disk",
		Long: `tbs reconstructs the files of one or more torrents at an export directory.

Every file below the scan directories, and whatever already exists at the
export directory, is hashed against the pieces the torrents declare. Pieces
found anywhere are copied into place; bytes that are already correct are
never rewritten and nothing is ever downloaded.`,
		Example:       "  tbs --torrents a.torrent,b.torrent --scan ~/Downloads --export ~/Media --resize",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runReconcile,
	}

	config.SetupFlags(rootCmd, fileCfg)

	return rootCmd.Execute()
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	v := viper.New()
	if err := config.BindFlags(cmd, v); err != nil {
		return err
	}

	opts, err := config.Load(v)
	if err != nil {
		return err
	}

	runID := uuid.New()
	err = logger.InitLogging(logger.Options{
		Debug:   opts.Debug,
		Verbose: opts.Verbose,
		LogPath: opts.LogFile,
		Prefix:  runID.String()[:8],
	})
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	defer logger.Close()

	logger.Infof("Starting run %s: %d torrents, %d scan roots, export %s, threads %d, resize %v, dry run %v",
		runID, len(opts.Torrents), len(opts.ScanRoots), opts.ExportRoot, opts.Threads, opts.Resize, opts.DryRun)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			logger.Warnf("Received %s, stopping", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	engOpts := engine.Options{
		RunID:                   runID,
		Torrents:                opts.Torrents,
		ScanRoots:               opts.ScanRoots,
		ExportRoot:              opts.ExportRoot,
		Threads:                 opts.Threads,
		Resize:                  opts.Resize,
		Verify:                  opts.Verify,
		DryRun:                  opts.DryRun,
		MaxBoundaryCandidates:   opts.MaxBoundaryCandidates,
		MaxBoundaryCombinations: opts.MaxBoundaryCombinations,
	}

	if opts.CacheEnabled {
		cache, err := repository.NewBboltRepository(opts.CachePath)
		if err != nil {
			logger.Warnf("Scan cache %s unavailable, scanning without it: %v", opts.CachePath, err)
		} else {
			defer func() {
				if err := cache.Close(); err != nil {
					logger.Errorf("Closing scan cache: %v", err)
				}
			}()
			engOpts.Cache = cache
		}
	}

	var observer *barObserver
	if !opts.Verbose {
		observer = newBarObserver(os.Stderr)
		engOpts.Observer = observer
	} else {
		engOpts.Observer = progress.Nop{}
	}

	eng, err := engine.New(engOpts)
	if err != nil {
		return err
	}

	report, runErr := eng.Run(ctx)
	if observer != nil {
		observer.Close()
	}

	if opts.MetricsFile != "" {
		if err := metrics.WriteTextfile(opts.MetricsFile); err != nil {
			logger.Errorf("Writing metrics: %v", err)
		}
	}

	printSummary(cmd.OutOrStdout(), report)

	if runErr != nil {
		return &exitError{code: exitFailure, err: runErr}
	}
	if failed := report.IssuesOf(tbserrors.KindWriteFailure); len(failed) > 0 {
		return &exitError{
			code: exitIncomplete,
			err:  fmt.Errorf("%d export files could not be written", len(failed)),
		}
	}

	return nil
}
