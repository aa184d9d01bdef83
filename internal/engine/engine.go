// Package engine runs one reconcile pass: load torrents, index their pieces,
// scan for existing content, plan the copies, write them and optionally
// verify the result.
package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	tbserrors "github.com/NamanBalaji/tbs/internal/errors"
	"github.com/NamanBalaji/tbs/internal/filesystem"
	"github.com/NamanBalaji/tbs/internal/index"
	"github.com/NamanBalaji/tbs/internal/logger"
	"github.com/NamanBalaji/tbs/internal/metrics"
	"github.com/NamanBalaji/tbs/internal/progress"
	"github.com/NamanBalaji/tbs/internal/reconcile"
	"github.com/NamanBalaji/tbs/internal/scan"
	"github.com/NamanBalaji/tbs/internal/writer"
	"github.com/NamanBalaji/tbs/pkg/torrent/metainfo"
)

// Engine runs reconcile passes with fixed options.
type Engine struct {
	opts     Options
	fs       *filesystem.OSFileSystem
	observer progress.Observer
}

// New validates opts and creates an Engine.
func New(opts Options) (*Engine, error) {
	if len(opts.Torrents) == 0 {
		return nil, fmt.Errorf("%w: no torrent files given", tbserrors.ErrInvalidOptions)
	}
	if opts.ExportRoot == "" {
		return nil, fmt.Errorf("%w: export root is required", tbserrors.ErrInvalidOptions)
	}
	if opts.Threads < 1 {
		return nil, fmt.Errorf("%w: threads must be at least 1", tbserrors.ErrInvalidOptions)
	}

	root, err := filepath.Abs(opts.ExportRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: export root: %w", tbserrors.ErrInvalidOptions, err)
	}
	opts.ExportRoot = root

	if opts.RunID == uuid.Nil {
		opts.RunID = uuid.New()
	}

	return &Engine{
		opts:     opts,
		fs:       filesystem.NewOSFileSystem(),
		observer: progress.OrNop(opts.Observer),
	}, nil
}

// RunID returns the identifier every report of this engine carries.
func (e *Engine) RunID() uuid.UUID {
	return e.opts.RunID
}

// Run performs one pass. Per-torrent and per-file failures are recorded in
// the report and never abort the run. The returned error is non-nil only
// when no torrent could be loaded or ctx was canceled; the report is
// returned in every case.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:     e.opts.RunID,
		StartedAt: time.Now(),
		DryRun:    e.opts.DryRun,
	}

	err := e.run(ctx, report)

	report.FinishedAt = time.Now()
	e.recordMetrics(report, err)

	if err != nil {
		logger.Errorf("Run %s stopped: %v", report.RunID, err)
	} else {
		correct, filled, missing := report.Totals()
		logger.Infof("Run %s finished in %s: %d correct, %d filled, %d missing pieces, %d issues",
			report.RunID, report.Duration().Round(time.Millisecond), correct, filled, missing, len(report.Issues))
	}

	return report, err
}

func (e *Engine) run(ctx context.Context, report *Report) error {
	torrents, reports := e.loadTorrents(report)
	if len(torrents) == 0 {
		return tbserrors.ErrNoTorrents
	}

	idx := index.New(torrents)
	logger.Infof("Indexed %d distinct piece hashes from %d torrents", idx.Len(), len(torrents))

	scanned := e.enumerate(report)
	if err := ctx.Err(); err != nil {
		return e.canceled(report, err)
	}

	stageStart := time.Now()
	cands := scan.Resolve(torrents, e.opts.ExportRoot, scanned)
	scanner := scan.New(idx, scan.Options{
		Threads:                 e.opts.Threads,
		MaxBoundaryCandidates:   e.opts.MaxBoundaryCandidates,
		MaxBoundaryCombinations: e.opts.MaxBoundaryCombinations,
		Cache:                   e.opts.Cache,
		Observer:                e.observer,
	})

	res, err := scanner.Scan(ctx, cands)
	metrics.StageDuration.WithLabelValues(string(progress.StageScan)).Observe(time.Since(stageStart).Seconds())
	if err != nil {
		return e.canceled(report, err)
	}

	report.Candidates = len(cands.List)
	report.BytesHashed = res.BytesHashed
	report.CacheHits = res.CacheHits
	report.Issues = append(report.Issues, res.Issues...)
	logger.Infof("Scanned %d candidates: %d availability entries, %d cache hits",
		len(cands.List), res.Availability.Len(), res.CacheHits)

	plans := reconcile.Plan(torrents, e.opts.ExportRoot, res, reconcile.Options{Resize: e.opts.Resize})

	files := make([]*FileReport, len(plans))
	for i, p := range plans {
		files[i] = &FileReport{
			File:           p.File,
			ExportPath:     p.ExportPath,
			DeclaredLength: p.DeclaredLength,
			Correct:        p.Correct,
			Filled:         p.Filled,
			Missing:        p.Missing,
			Segments:       len(p.Segments),
			BytesPlanned:   p.Bytes(),
		}
		reports[p.Torrent].Files = append(reports[p.Torrent].Files, files[i])
		report.Issues = append(report.Issues, p.Issues...)
	}

	if !e.opts.DryRun {
		if err := e.write(ctx, report, plans, files); err != nil {
			return err
		}
	}

	if e.opts.Verify {
		if err := e.verify(ctx, report, torrents, reports); err != nil {
			return e.canceled(report, err)
		}
	}

	return nil
}

// loadTorrents loads every metadata file in order. Failures and duplicates
// are reported and skipped. The returned reports are aligned with the
// returned torrents.
func (e *Engine) loadTorrents(report *Report) ([]*metainfo.Torrent, []*TorrentReport) {
	var torrents []*metainfo.Torrent
	var loaded []*TorrentReport
	seen := make(map[metainfo.Hash]string)

	for _, path := range e.opts.Torrents {
		tr := &TorrentReport{Source: path}
		report.Torrents = append(report.Torrents, tr)

		t, err := metainfo.Load(path)
		if err != nil {
			tr.Err = loadError(err, path)
			report.Issues = append(report.Issues, tr.Err)
			logger.Warnf("Skipping torrent %s: %v", path, err)
			continue
		}

		tr.Name = t.Name
		tr.InfoHash = t.InfoHash.String()

		if first, ok := seen[t.InfoHash]; ok {
			tr.Err = tbserrors.NewDuplicateTorrent(path, tr.InfoHash)
			report.Issues = append(report.Issues, tr.Err)
			logger.Warnf("Skipping torrent %s: same info hash as %s", path, first)
			continue
		}
		seen[t.InfoHash] = path

		tr.Loaded = true
		tr.Pieces = t.NumPieces()
		torrents = append(torrents, t)
		loaded = append(loaded, tr)
		logger.Debugf("Loaded %s (%s): %d files, %d pieces of %d bytes",
			path, tr.InfoHash, len(t.Files), t.NumPieces(), t.PieceLength)
	}

	return torrents, loaded
}

// enumerate lists the files below every scan root. A root that cannot be
// walked is reported as a scan error and skipped.
func (e *Engine) enumerate(report *Report) []string {
	var scanned []string
	for _, root := range e.opts.ScanRoots {
		paths, err := e.fs.Enumerate([]string{root})
		if err != nil {
			report.Issues = append(report.Issues, tbserrors.NewScanError(err, root))
			logger.Warnf("Skipping scan root %s: %v", root, err)
			continue
		}
		scanned = append(scanned, paths...)
	}
	return scanned
}

func (e *Engine) write(ctx context.Context, report *Report, plans []*reconcile.CopyPlan, files []*FileReport) error {
	stageStart := time.Now()
	w := writer.New(writer.Options{Threads: e.opts.Threads, Observer: e.observer})

	results, err := w.Apply(ctx, plans)
	metrics.StageDuration.WithLabelValues(string(progress.StageWrite)).Observe(time.Since(stageStart).Seconds())

	for i, r := range results {
		if r == nil {
			continue
		}
		files[i].BytesWritten = r.BytesWritten
		files[i].Resized = r.Resized
		files[i].Failed = r.Failed
		report.BytesWritten += r.BytesWritten
		report.Issues = append(report.Issues, r.Issues...)

		metrics.SegmentsTotal.WithLabelValues("applied").Add(float64(r.SegmentsApplied))
		metrics.SegmentsTotal.WithLabelValues("skipped").Add(float64(r.SegmentsSkipped))
	}

	if err != nil {
		return e.canceled(report, err)
	}

	return nil
}

func (e *Engine) canceled(report *Report, err error) error {
	err = runError(err, e.opts.ExportRoot)
	report.Issues = append(report.Issues, err)
	return err
}

func (e *Engine) recordMetrics(report *Report, runErr error) {
	for _, t := range report.Torrents {
		result := "loaded"
		if !t.Loaded {
			result = "skipped"
		}
		metrics.TorrentsTotal.WithLabelValues(result).Inc()
	}

	correct, filled, missing := report.Totals()
	metrics.PiecesTotal.WithLabelValues("correct").Add(float64(correct))
	metrics.PiecesTotal.WithLabelValues("filled").Add(float64(filled))
	metrics.PiecesTotal.WithLabelValues("missing").Add(float64(missing))

	metrics.CandidatesScannedTotal.Add(float64(report.Candidates))
	metrics.BytesHashedTotal.Add(float64(report.BytesHashed))
	metrics.CacheHitsTotal.Add(float64(report.CacheHits))
	metrics.BytesWrittenTotal.Add(float64(report.BytesWritten))

	for _, err := range report.Issues {
		metrics.IssuesTotal.WithLabelValues(string(tbserrors.KindOf(err))).Inc()
	}

	metrics.LastRunTimestamp.Set(float64(report.FinishedAt.Unix()))
	if runErr != nil {
		metrics.LastRunSuccess.Set(0)
	} else {
		metrics.LastRunSuccess.Set(1)
	}
}
