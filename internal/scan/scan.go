// Package scan locates torrent pieces inside candidate files on disk.
package scan

import (
	"context"
	"crypto/sha1"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	tbserrors "github.com/NamanBalaji/tbs/internal/errors"
	"github.com/NamanBalaji/tbs/internal/index"
	"github.com/NamanBalaji/tbs/internal/logger"
	"github.com/NamanBalaji/tbs/internal/progress"
	"github.com/NamanBalaji/tbs/internal/repository"
	"github.com/NamanBalaji/tbs/pkg/torrent/metainfo"
)

const (
	DefaultMaxBoundaryCandidates   = 4
	DefaultMaxBoundaryCombinations = 64
)

// Options configures a Scanner.
type Options struct {
	Threads                 int
	MaxBoundaryCandidates   int
	MaxBoundaryCombinations int
	Cache                   repository.Repository // nil disables caching
	Observer                progress.Observer
}

// Scanner hashes candidate files against a piece index.
type Scanner struct {
	idx      *index.Index
	opts     Options
	observer progress.Observer
}

// Result is the outcome of a completed scan.
type Result struct {
	Candidates   *Candidates
	Availability *Availability
	Issues       []error         // one ScanError per unreadable candidate, in candidate order
	Failed       map[string]bool // candidates excluded from reconciliation
	BytesHashed  int64
	CacheHits    int
}

// windowSet is one sequence of windows over a file: length PieceLength,
// starting at Phase.
type windowSet struct {
	PieceLength int64
	Phase       int64
}

type taskResult struct {
	entries   []Entry
	err       error
	hashed    int64
	cacheHits int
}

// New creates a scanner over idx.
func New(idx *index.Index, opts Options) *Scanner {
	if opts.Threads < 1 {
		opts.Threads = 1
	}
	if opts.MaxBoundaryCandidates < 1 {
		opts.MaxBoundaryCandidates = DefaultMaxBoundaryCandidates
	}
	if opts.MaxBoundaryCombinations < 1 {
		opts.MaxBoundaryCombinations = DefaultMaxBoundaryCombinations
	}

	return &Scanner{
		idx:      idx,
		opts:     opts,
		observer: progress.OrNop(opts.Observer),
	}
}

// Scan hashes every candidate, then verifies cross-file pieces. It returns
// an error only when ctx is canceled; unreadable candidates are reported in
// Result.Issues and the scan continues without them.
func (s *Scanner) Scan(ctx context.Context, cands *Candidates) (*Result, error) {
	var total int64
	for _, c := range cands.List {
		total += c.Size
	}
	s.observer.Start(progress.StageScan, total)
	defer s.observer.Finish(progress.StageScan)

	results := make([]taskResult, len(cands.List))

	g, groupCtx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, s.opts.Threads)

	for i := range cands.List {
		cand := cands.List[i]
		sets := s.windowSets(cands, cand)

		g.Go(func() error {
			select {
			case <-groupCtx.Done():
				return groupCtx.Err()
			case sem <- struct{}{}:
				defer func() { <-sem }()
			}

			res := s.scanCandidate(groupCtx, cand, sets)
			if res.err != nil && groupCtx.Err() != nil {
				return groupCtx.Err()
			}
			results[cand.Ordinal] = res

			s.observer.Advance(progress.Event{
				Stage:     progress.StageScan,
				Path:      cand.Path,
				Bytes:     cand.Size,
				Err:       res.err,
				Timestamp: time.Now(),
			})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{
		Candidates: cands,
		Failed:     make(map[string]bool),
	}

	var entries []Entry
	for i, r := range results {
		res.BytesHashed += r.hashed
		res.CacheHits += r.cacheHits
		if r.err != nil {
			logger.Warnf("Excluding %s: %v", cands.List[i].Path, r.err)
			res.Failed[cands.List[i].Path] = true
			res.Issues = append(res.Issues, r.err)
			continue
		}
		entries = append(entries, r.entries...)
	}

	boundary, err := s.boundaryPass(ctx, cands, entries, res.Failed)
	if err != nil {
		return nil, err
	}
	entries = append(entries, boundary...)

	res.Availability = NewAvailability(entries)
	logger.Debugf("Scan found %d entries for %d pieces across %d candidates",
		res.Availability.Len(), res.Availability.Pieces(), len(cands.List))

	return res, nil
}

// windowSets returns the aligned window sets for every distinct piece
// length, plus a phase-shifted set for every declared file this candidate
// may be a copy of whose start is not piece aligned.
func (s *Scanner) windowSets(cands *Candidates, cand Candidate) []windowSet {
	torrents := s.idx.Torrents()

	seen := make(map[windowSet]bool)
	var sets []windowSet
	add := func(ws windowSet) {
		if !seen[ws] {
			seen[ws] = true
			sets = append(sets, ws)
		}
	}

	for _, pl := range metainfo.PieceLengths(torrents) {
		add(windowSet{PieceLength: pl})
	}

	for _, ref := range cands.Assigned(cand.Ordinal) {
		t := torrents[ref.Torrent]
		pl := t.PieceLength
		if phase := (pl - t.Files[ref.File].Offset%pl) % pl; phase != 0 {
			add(windowSet{PieceLength: pl, Phase: phase})
		}
	}

	sort.Slice(sets, func(i, j int) bool {
		if sets[i].PieceLength != sets[j].PieceLength {
			return sets[i].PieceLength < sets[j].PieceLength
		}
		return sets[i].Phase < sets[j].Phase
	})

	return sets
}

// scanCandidate hashes every window set of one candidate sequentially.
func (s *Scanner) scanCandidate(ctx context.Context, cand Candidate, sets []windowSet) taskResult {
	info, err := os.Stat(cand.Path)
	if err != nil {
		if os.IsNotExist(err) && cand.Export {
			// nothing exported yet
			return taskResult{}
		}
		return taskResult{err: tbserrors.NewScanError(err, cand.Path)}
	}
	if !info.Mode().IsRegular() {
		return taskResult{err: tbserrors.NewScanError(tbserrors.New("not a regular file"), cand.Path)}
	}

	size := info.Size()
	if size == 0 {
		return taskResult{}
	}

	f, err := os.Open(cand.Path)
	if err != nil {
		return taskResult{err: tbserrors.NewScanError(err, cand.Path)}
	}
	defer f.Close()

	var res taskResult
	for _, ws := range sets {
		if ws.Phase >= size {
			continue
		}

		key := repository.WindowKey{
			Path:        cand.Path,
			Size:        size,
			ModTime:     info.ModTime().UnixNano(),
			PieceLength: ws.PieceLength,
			Phase:       ws.Phase,
		}

		hashes, hit := s.cached(key)
		if hit {
			res.cacheHits++
		} else {
			hashes, err = hashWindows(ctx, f, size, ws)
			if err != nil {
				if ctx.Err() != nil {
					return taskResult{err: ctx.Err()}
				}
				return taskResult{err: tbserrors.NewScanError(err, cand.Path)}
			}
			res.hashed += size - ws.Phase
			s.store(key, hashes)
		}

		res.entries = append(res.entries, s.match(cand, size, ws, hashes)...)
	}

	return res
}

func (s *Scanner) cached(key repository.WindowKey) ([]metainfo.Hash, bool) {
	if s.opts.Cache == nil {
		return nil, false
	}

	hashes, ok, err := s.opts.Cache.Find(key)
	if err != nil {
		logger.Warnf("Window cache lookup for %s failed: %v", key.Path, err)
		return nil, false
	}
	if ok && len(hashes) != windowCount(key.Size, windowSet{PieceLength: key.PieceLength, Phase: key.Phase}) {
		return nil, false
	}

	return hashes, ok
}

func (s *Scanner) store(key repository.WindowKey, hashes []metainfo.Hash) {
	if s.opts.Cache == nil {
		return
	}

	if err := s.opts.Cache.Save(key, hashes); err != nil {
		logger.Warnf("Window cache update for %s failed: %v", key.Path, err)
	}
}

// match looks every window hash up in the index. A window shorter than
// the piece length only matches the final piece of a torrent.
func (s *Scanner) match(cand Candidate, size int64, ws windowSet, hashes []metainfo.Hash) []Entry {
	torrents := s.idx.Torrents()

	var entries []Entry
	for k, h := range hashes {
		start := ws.Phase + int64(k)*ws.PieceLength
		length := min(ws.PieceLength, size-start)

		for _, loc := range s.idx.LookupLength(h, length) {
			if length < ws.PieceLength && loc.Piece != torrents[loc.Torrent].NumPieces()-1 {
				continue
			}

			entries = append(entries, Entry{
				Torrent:      loc.Torrent,
				Piece:        loc.Piece,
				Length:       length,
				Source:       cand.Path,
				SourceOffset: start,
				Order:        Order{Candidate: cand.Ordinal, Offset: start},
			})
		}
	}

	return entries
}

func windowCount(size int64, ws windowSet) int {
	if ws.Phase >= size {
		return 0
	}
	rem := size - ws.Phase
	n := rem / ws.PieceLength
	if rem%ws.PieceLength != 0 {
		n++
	}
	return int(n)
}

// hashWindows reads the windows of ws in order and returns their SHA-1
// digests. A file that shrinks mid-read is an error.
func hashWindows(ctx context.Context, r io.ReaderAt, size int64, ws windowSet) ([]metainfo.Hash, error) {
	n := windowCount(size, ws)
	hashes := make([]metainfo.Hash, 0, n)
	buf := make([]byte, min(ws.PieceLength, size-ws.Phase))
	section := io.NewSectionReader(r, ws.Phase, size-ws.Phase)

	for k := 0; k < n; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := ws.Phase + int64(k)*ws.PieceLength
		want := min(ws.PieceLength, size-start)

		got, err := io.ReadFull(section, buf[:want])
		if err != nil {
			return nil, fmt.Errorf("reading window at %d: read %d of %d bytes: %w", start, got, want, err)
		}

		hashes = append(hashes, sha1.Sum(buf[:want]))
	}

	return hashes, nil
}
