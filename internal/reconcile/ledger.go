package reconcile

import (
	"github.com/NamanBalaji/tbs/internal/scan"
	"github.com/NamanBalaji/tbs/pkg/torrent/metainfo"
)

type partState int

const (
	partMissing partState = iota
	partCorrect
	partAvailable
)

// ledgerPart is the decision for one file's share of one piece.
type ledgerPart struct {
	span  metainfo.Span
	state partState
	entry scan.Entry
}

func (lp ledgerPart) dest() Range {
	return Range{Start: lp.span.FileOffset, End: lp.span.FileOffset + lp.span.Length}
}

// ledger holds the decision for every part of every piece of one torrent,
// keyed by piece index. Both files sharing a cross-file piece read their
// part from the same ledger entry.
type ledger map[int][]ledgerPart

func (l ledger) part(piece, file int) (ledgerPart, bool) {
	for _, lp := range l[piece] {
		if lp.span.File == file {
			return lp, true
		}
	}
	return ledgerPart{}, false
}

func (p *planner) buildLedger(tid int) ledger {
	t := p.torrents[tid]
	l := make(ledger, t.NumPieces())

	for piece := 0; piece < t.NumPieces(); piece++ {
		entries := p.avail.For(tid, piece)

		var parts []ledgerPart
		for _, sp := range t.PieceSpans(piece) {
			f := t.Files[sp.File]
			if f.Padding {
				continue
			}

			lp := ledgerPart{span: sp}
			if _, ok := selfEntry(entries, sp, scan.ExportPath(p.exportRoot, f)); ok {
				lp.state = partCorrect
			} else if e, ok := p.selectSource(t, entries, sp); ok {
				lp.state = partAvailable
				lp.entry = e
			}
			parts = append(parts, lp)
		}
		l[piece] = parts
	}

	return l
}
