// Package writer applies copy plans to export files.
package writer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	tbserrors "github.com/NamanBalaji/tbs/internal/errors"
	"github.com/NamanBalaji/tbs/internal/filesystem"
	"github.com/NamanBalaji/tbs/internal/logger"
	"github.com/NamanBalaji/tbs/internal/progress"
	"github.com/NamanBalaji/tbs/internal/reconcile"
)

const copyBufferSize = 32 * 1024

// Options configures a Writer.
type Options struct {
	Threads  int
	Observer progress.Observer
}

// Writer is the only component that mutates export files.
type Writer struct {
	opts     Options
	fs       *filesystem.OSFileSystem
	observer progress.Observer
}

// Result is the outcome of applying one plan.
type Result struct {
	Plan            *reconcile.CopyPlan
	Resized         bool
	BytesWritten    int64
	SegmentsApplied int
	SegmentsSkipped int
	Failed          bool // a WriteFailure abandoned the file
	Issues          []error
}

// New creates a writer.
func New(opts Options) *Writer {
	if opts.Threads < 1 {
		opts.Threads = 1
	}

	return &Writer{
		opts:     opts,
		fs:       filesystem.NewOSFileSystem(),
		observer: progress.OrNop(opts.Observer),
	}
}

// Apply applies every plan. Plans for different export paths run
// concurrently; plans sharing a path run in order. Results are returned in
// plan order. Only cancellation of ctx is returned as an error.
func (w *Writer) Apply(ctx context.Context, plans []*reconcile.CopyPlan) ([]*Result, error) {
	var total int64
	for _, p := range plans {
		total += p.Bytes()
	}
	w.observer.Start(progress.StageWrite, total)
	defer w.observer.Finish(progress.StageWrite)

	var order []string
	groups := make(map[string][]int)
	for i, p := range plans {
		if _, ok := groups[p.ExportPath]; !ok {
			order = append(order, p.ExportPath)
		}
		groups[p.ExportPath] = append(groups[p.ExportPath], i)
	}

	results := make([]*Result, len(plans))

	g, groupCtx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, w.opts.Threads)

	for _, path := range order {
		members := groups[path]

		g.Go(func() error {
			select {
			case <-groupCtx.Done():
				return groupCtx.Err()
			case sem <- struct{}{}:
				defer func() { <-sem }()
			}

			for _, i := range members {
				if err := groupCtx.Err(); err != nil {
					return err
				}
				results[i] = w.ApplyPlan(groupCtx, plans[i])
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}

	return results, nil
}

// ApplyPlan grows the export file if the plan asks for it, then copies
// every segment. A missing or shrunken source skips only its segment; a
// destination error abandons the rest of the file.
func (w *Writer) ApplyPlan(ctx context.Context, plan *reconcile.CopyPlan) *Result {
	res := &Result{Plan: plan}
	if plan.Empty() {
		return res
	}

	fail := func(err error) *Result {
		werr := tbserrors.NewWriteFailure(err, plan.ExportPath)
		logger.Errorf("Abandoning %s: %v", plan.ExportPath, err)
		res.Failed = true
		res.Issues = append(res.Issues, werr)
		return res
	}

	if err := w.fs.EnsureDirectory(filepath.Dir(plan.ExportPath)); err != nil {
		return fail(err)
	}

	dst, err := os.OpenFile(plan.ExportPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fail(err)
	}

	info, err := dst.Stat()
	if err != nil {
		dst.Close()
		return fail(err)
	}

	// never shrink
	if plan.TargetLength > info.Size() {
		if err := dst.Truncate(plan.TargetLength); err != nil {
			dst.Close()
			return fail(fmt.Errorf("resizing to %d: %w", plan.TargetLength, err))
		}
		res.Resized = true
		logger.Debugf("Resized %s from %d to %d bytes", plan.ExportPath, info.Size(), plan.TargetLength)
	}

	var mu sync.Mutex
	g, segCtx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.Threads)

	for _, seg := range plan.Segments {
		g.Go(func() error {
			if err := segCtx.Err(); err != nil {
				return err
			}

			n, err := copySegment(segCtx, dst, seg)

			mu.Lock()
			res.BytesWritten += n
			mu.Unlock()

			switch {
			case err == nil:
				mu.Lock()
				res.SegmentsApplied++
				mu.Unlock()
				w.observer.Advance(progress.Event{
					Stage:     progress.StageWrite,
					Path:      plan.ExportPath,
					Bytes:     seg.Length,
					Timestamp: time.Now(),
				})
				return nil
			case tbserrors.IsKind(err, tbserrors.KindStaleSource):
				err = tbserrors.WithDetails(err, map[string]interface{}{
					"exportPath": plan.ExportPath,
					"destOffset": seg.DestOffset,
					"length":     seg.Length,
				})
				logger.Warnf("Skipping segment at %d of %s: %v", seg.DestOffset, plan.ExportPath, err)
				mu.Lock()
				res.SegmentsSkipped++
				res.Issues = append(res.Issues, err)
				mu.Unlock()
				return nil
			default:
				return err
			}
		})
	}

	segErr := g.Wait()
	closeErr := dst.Close()

	switch {
	case segErr != nil && ctx.Err() != nil:
		res.Issues = append(res.Issues, tbserrors.NewContextError(ctx.Err(), plan.ExportPath))
	case segErr != nil:
		return fail(segErr)
	case closeErr != nil:
		return fail(closeErr)
	}

	return res
}

// copySegment copies one segment and returns the number of bytes written.
func copySegment(ctx context.Context, dst io.WriterAt, seg reconcile.CopySegment) (int64, error) {
	src, err := os.Open(seg.Source)
	if err != nil {
		return 0, tbserrors.NewStaleSource(fmt.Errorf("%w: %w", tbserrors.ErrSourceChanged, err), seg.Source)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return 0, tbserrors.NewStaleSource(err, seg.Source)
	}
	if info.Size() < seg.SourceOffset+seg.Length {
		return 0, tbserrors.NewStaleSource(
			fmt.Errorf("%w: need %d bytes, file has %d", tbserrors.ErrSourceChanged, seg.SourceOffset+seg.Length, info.Size()),
			seg.Source)
	}

	r := io.NewSectionReader(src, seg.SourceOffset, seg.Length)
	out := io.NewOffsetWriter(dst, seg.DestOffset)
	buf := make([]byte, min(copyBufferSize, seg.Length))

	var written int64
	for written < seg.Length {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n := min(int64(len(buf)), seg.Length-written)
		if _, err := io.ReadFull(r, buf[:n]); err != nil {
			return written, tbserrors.NewStaleSource(fmt.Errorf("%w: %w", tbserrors.ErrSourceChanged, err), seg.Source)
		}
		if _, err := out.Write(buf[:n]); err != nil {
			return written, err
		}
		written += n
	}

	return written, nil
}
