// Package reconcile turns scan availability into per-file copy plans.
package reconcile

import (
	"sort"

	tbserrors "github.com/NamanBalaji/tbs/internal/errors"
	"github.com/NamanBalaji/tbs/internal/logger"
	"github.com/NamanBalaji/tbs/internal/scan"
	"github.com/NamanBalaji/tbs/pkg/torrent/metainfo"
)

// Options configures planning.
type Options struct {
	Resize bool
}

// CopySegment copies Length bytes from SourceOffset in Source to
// DestOffset in the export file.
type CopySegment struct {
	Source       string
	SourceOffset int64
	DestOffset   int64
	Length       int64
}

// CopyPlan is everything the writer needs for one declared file. Piece
// counts cover the pieces whose bytes intersect the file.
type CopyPlan struct {
	Torrent        int
	File           int
	ExportPath     string
	DeclaredLength int64
	CurrentLength  int64
	Exists         bool

	// TargetLength is non-zero when the file must first grow to it.
	TargetLength int64
	// Create is set when the file does not exist. Without resizing it is
	// created empty.
	Create   bool
	Segments []CopySegment
	Verified []Range // already correct, never written

	Correct int
	Filled  int
	Missing int
	Issues  []error
}

// Empty reports whether the plan requires no writer action.
func (p *CopyPlan) Empty() bool {
	return len(p.Segments) == 0 && p.TargetLength == 0 && !p.Create
}

// Bytes returns the number of bytes the plan copies.
func (p *CopyPlan) Bytes() int64 {
	var n int64
	for _, s := range p.Segments {
		n += s.Length
	}
	return n
}

// claim tracks which ranges of an export path are already correct or
// planned, so declared files sharing a path never write the same bytes.
type claim struct {
	length int64
	ranges rangeSet
}

type planner struct {
	torrents   []*metainfo.Torrent
	exportRoot string
	cands      *scan.Candidates
	avail      *scan.Availability
	opts       Options

	verified map[string]rangeSet
	claims   map[string]*claim
}

// Plan builds one CopyPlan per non-padding declared file, in torrent then
// file order. The result depends only on its inputs.
func Plan(torrents []*metainfo.Torrent, exportRoot string, res *scan.Result, opts Options) []*CopyPlan {
	p := &planner{
		torrents:   torrents,
		exportRoot: exportRoot,
		cands:      res.Candidates,
		avail:      res.Availability,
		opts:       opts,
		verified:   make(map[string]rangeSet),
		claims:     make(map[string]*claim),
	}

	p.collectVerified()

	var plans []*CopyPlan
	for tid, t := range torrents {
		l := p.buildLedger(tid)
		for fid, f := range t.Files {
			if f.Padding {
				continue
			}
			plans = append(plans, p.planFile(tid, fid, l))
		}
	}

	return plans
}

// collectVerified records, per export path, every range whose bytes an
// entry proved correct at their own destination position.
func (p *planner) collectVerified() {
	for tid, t := range p.torrents {
		for piece := 0; piece < t.NumPieces(); piece++ {
			entries := p.avail.For(tid, piece)
			if len(entries) == 0 {
				continue
			}

			for _, sp := range t.PieceSpans(piece) {
				f := t.Files[sp.File]
				if f.Padding {
					continue
				}
				path := scan.ExportPath(p.exportRoot, f)
				if _, ok := selfEntry(entries, sp, path); ok {
					set := p.verified[path]
					set.add(Range{Start: sp.FileOffset, End: sp.FileOffset + sp.Length})
					p.verified[path] = set
				}
			}
		}
	}
}

// covers reports whether e supplies every byte of part sp.
func covers(e scan.Entry, sp metainfo.Span) bool {
	return e.PieceOffset <= sp.PieceOffset && e.PieceOffset+e.Length >= sp.PieceOffset+sp.Length
}

// sourceRange returns the range in e.Source holding part sp.
func sourceRange(e scan.Entry, sp metainfo.Span) Range {
	start := e.SourceOffset + sp.PieceOffset - e.PieceOffset
	return Range{Start: start, End: start + sp.Length}
}

// selfEntry finds an entry proving part sp already sits at its destination
// in the export file at path.
func selfEntry(entries []scan.Entry, sp metainfo.Span, path string) (scan.Entry, bool) {
	for _, e := range entries {
		if e.Source == path && covers(e, sp) && sourceRange(e, sp).Start == sp.FileOffset {
			return e, true
		}
	}
	return scan.Entry{}, false
}

// usable reports whether e may supply part sp. A source inside an export
// file may only be read from that file's verified ranges, which no plan
// writes to.
func (p *planner) usable(e scan.Entry, sp metainfo.Span) bool {
	if !covers(e, sp) {
		return false
	}
	if !p.cands.IsExport(e.Source) {
		return true
	}
	return p.verified[e.Source].covers(sourceRange(e, sp))
}

// selectSource picks the entry for a part that is not yet correct: whole
// piece matches before partial ones, then earliest discovery.
func (p *planner) selectSource(t *metainfo.Torrent, entries []scan.Entry, sp metainfo.Span) (scan.Entry, bool) {
	for _, full := range []bool{true, false} {
		for _, e := range entries {
			if e.Full(t) == full && p.usable(e, sp) {
				return e, true
			}
		}
	}
	return scan.Entry{}, false
}

func (p *planner) planFile(tid, fid int, l ledger) *CopyPlan {
	t := p.torrents[tid]
	f := t.Files[fid]
	path := scan.ExportPath(p.exportRoot, f)

	plan := &CopyPlan{
		Torrent:        tid,
		File:           fid,
		ExportPath:     path,
		DeclaredLength: f.Length,
	}
	if cand, ok := p.cands.Lookup(path); ok {
		plan.CurrentLength = cand.Size
		plan.Exists = cand.Exists
	}

	c, ok := p.claims[path]
	if !ok {
		c = &claim{length: f.Length, ranges: p.verified[path].clone()}
		p.claims[path] = c
	} else if c.length != f.Length {
		err := tbserrors.NewExportConflict(path, c.length, f.Length)
		logger.Warnf("Skipping %s of %s: %v", f.RelativePath(), t.Name, err)
		plan.Issues = append(plan.Issues, err)
		return plan
	}

	first, end := t.FilePieces(fid)
	for piece := first; piece < end; piece++ {
		part, ok := l.part(piece, fid)
		if !ok {
			continue
		}

		switch part.state {
		case partCorrect:
			plan.Correct++
			plan.Verified = append(plan.Verified, part.dest())
		case partMissing:
			plan.Missing++
		case partAvailable:
			dest := part.dest()
			if !p.opts.Resize && dest.End > plan.CurrentLength {
				err := tbserrors.NewTruncatedDestination(path, dest.Start, dest.Len(), plan.CurrentLength)
				logger.Debugf("Dropping segment: %v", err)
				plan.Issues = append(plan.Issues, err)
				plan.Missing++
				continue
			}

			plan.Filled++
			src := sourceRange(part.entry, part.span)
			for _, r := range c.ranges.subtract(dest) {
				plan.Segments = append(plan.Segments, CopySegment{
					Source:       part.entry.Source,
					SourceOffset: src.Start + r.Start - dest.Start,
					DestOffset:   r.Start,
					Length:       r.Len(),
				})
			}
			c.ranges.add(dest)
		}
	}

	if p.opts.Resize && plan.CurrentLength < f.Length {
		plan.TargetLength = f.Length
	}
	plan.Create = !plan.Exists

	plan.Segments = coalesce(plan.Segments)
	return plan
}

// coalesce sorts segments by destination and merges neighbours that are
// contiguous in both the same source and the destination.
func coalesce(segments []CopySegment) []CopySegment {
	if len(segments) < 2 {
		return segments
	}

	sort.Slice(segments, func(i, j int) bool {
		return segments[i].DestOffset < segments[j].DestOffset
	})

	out := segments[:1]
	for _, s := range segments[1:] {
		last := &out[len(out)-1]
		if last.Source == s.Source &&
			last.DestOffset+last.Length == s.DestOffset &&
			last.SourceOffset+last.Length == s.SourceOffset {
			last.Length += s.Length
			continue
		}
		out = append(out, s)
	}

	return out
}
