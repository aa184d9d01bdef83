package scan

import (
	"bytes"
	"context"
	"crypto/sha1"
	"fmt"
	"io"
	"os"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/NamanBalaji/tbs/internal/logger"
	"github.com/NamanBalaji/tbs/pkg/torrent/metainfo"
)

// boundaryPart is one file's share of a cross-file piece and the
// candidates that may supply it.
type boundaryPart struct {
	span    metainfo.Span
	padding bool
	options []Candidate
	data    [][]byte
	failed  []bool
}

// boundaryPass verifies pieces that span two or more declared files by
// hashing combinations of ranked candidates for each part. For pieces
// already supplied whole by a non-export candidate only the export files
// themselves are checked, so correct exports are still recognized.
func (s *Scanner) boundaryPass(ctx context.Context, cands *Candidates, entries []Entry, failed map[string]bool) ([]Entry, error) {
	torrents := s.idx.Torrents()

	covered := make(map[PieceRef]bool)
	for _, e := range entries {
		if !cands.IsExport(e.Source) && e.Full(torrents[e.Torrent]) {
			covered[PieceRef{Torrent: e.Torrent, Piece: e.Piece}] = true
		}
	}

	var tasks []PieceRef
	for tid, t := range torrents {
		for _, p := range crossFilePieces(t) {
			tasks = append(tasks, PieceRef{Torrent: tid, Piece: p})
		}
	}

	if len(tasks) == 0 {
		return nil, nil
	}
	logger.Debugf("Verifying %d cross-file pieces", len(tasks))

	results := make([][]Entry, len(tasks))

	g, groupCtx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, s.opts.Threads)

	for i, ref := range tasks {
		g.Go(func() error {
			select {
			case <-groupCtx.Done():
				return groupCtx.Err()
			case sem <- struct{}{}:
				defer func() { <-sem }()
			}

			found, err := s.verifyPiece(groupCtx, cands, failed, ref, covered[ref])
			if err != nil {
				return err
			}
			results[i] = found
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Entry
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

// crossFilePieces returns, in order, the pieces of t in which a file
// boundary falls strictly inside the piece.
func crossFilePieces(t *metainfo.Torrent) []int {
	seen := make(map[int]bool)
	var pieces []int

	for _, f := range t.Files[1:] {
		if f.Offset%t.PieceLength == 0 || f.Offset >= t.TotalLength {
			continue
		}
		p := int(f.Offset / t.PieceLength)
		if !seen[p] {
			seen[p] = true
			pieces = append(pieces, p)
		}
	}

	sort.Ints(pieces)
	return pieces
}

// verifyPiece tries candidate combinations in lexicographic order, at most
// MaxBoundaryCombinations of them, and returns one entry per non-padding
// part for the first combination whose hash matches. With exportOnly set
// each part may only come from its own export file.
func (s *Scanner) verifyPiece(ctx context.Context, cands *Candidates, failed map[string]bool, ref PieceRef, exportOnly bool) ([]Entry, error) {
	t := s.idx.Torrents()[ref.Torrent]
	spans := t.PieceSpans(ref.Piece)

	parts := make([]*boundaryPart, 0, len(spans))
	exported := 0
	for _, sp := range spans {
		part := &boundaryPart{span: sp, padding: t.Files[sp.File].Padding}
		parts = append(parts, part)
		if part.padding {
			continue
		}

		exported++
		for rank, ord := range cands.Ranked(FileRef{Torrent: ref.Torrent, File: sp.File}) {
			if exportOnly && rank > 0 {
				break
			}
			c := cands.List[ord]
			if failed[c.Path] || !c.Exists || c.Size < sp.FileOffset+sp.Length {
				continue
			}
			part.options = append(part.options, c)
			if len(part.options) == s.opts.MaxBoundaryCandidates {
				break
			}
		}
		if len(part.options) == 0 {
			return nil, nil
		}
		part.data = make([][]byte, len(part.options))
		part.failed = make([]bool, len(part.options))
	}
	if exported == 0 {
		return nil, nil
	}

	want := t.Pieces[ref.Piece]
	zeros := make([]byte, min(t.PieceSize(ref.Piece), zeroChunk))
	choice := make([]int, len(parts))

	for tried := 0; tried < s.opts.MaxBoundaryCombinations; tried++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if s.combinationMatches(parts, choice, zeros, want) {
			var entries []Entry
			for i, part := range parts {
				if part.padding {
					continue
				}
				c := part.options[choice[i]]
				entries = append(entries, Entry{
					Torrent:      ref.Torrent,
					Piece:        ref.Piece,
					PieceOffset:  part.span.PieceOffset,
					Length:       part.span.Length,
					Source:       c.Path,
					SourceOffset: part.span.FileOffset,
					Order:        Order{Candidate: c.Ordinal, Offset: part.span.FileOffset},
				})
			}
			return entries, nil
		}

		if !advance(parts, choice) {
			break
		}
	}

	return nil, nil
}

// advance moves choice to the next combination, last part fastest. It
// returns false once every combination has been visited.
func advance(parts []*boundaryPart, choice []int) bool {
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i].padding {
			continue
		}
		choice[i]++
		if choice[i] < len(parts[i].options) {
			return true
		}
		choice[i] = 0
	}
	return false
}

// zeroChunk caps the zero buffer hashed for padding parts.
const zeroChunk = 64 << 10

func (s *Scanner) combinationMatches(parts []*boundaryPart, choice []int, zeros []byte, want metainfo.Hash) bool {
	h := sha1.New()

	for i, part := range parts {
		if part.padding {
			for left := part.span.Length; left > 0; {
				k := min(left, int64(len(zeros)))
				h.Write(zeros[:k])
				left -= k
			}
			continue
		}

		data, ok := part.load(choice[i])
		if !ok {
			return false
		}
		h.Write(data)
	}

	return bytes.Equal(h.Sum(nil), want[:])
}

// load reads and memoizes the bytes of option j for this part.
func (p *boundaryPart) load(j int) ([]byte, bool) {
	if p.failed[j] {
		return nil, false
	}
	if p.data[j] != nil {
		return p.data[j], true
	}

	data, err := readRange(p.options[j].Path, p.span.FileOffset, p.span.Length)
	if err != nil {
		logger.Debugf("Boundary read from %s failed: %v", p.options[j].Path, err)
		p.failed[j] = true
		return nil, false
	}

	p.data[j] = data
	return data, true
}

func readRange(path string, off, length int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, length)
	n, err := f.ReadAt(buf, off)
	if int64(n) == length {
		return buf, nil
	}
	if err == nil || err == io.EOF {
		err = fmt.Errorf("short read: %d of %d bytes", n, length)
	}
	return nil, err
}
