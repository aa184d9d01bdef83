package scan

import (
	"sort"

	"github.com/NamanBalaji/tbs/pkg/torrent/metainfo"
)

// Order is the stable discovery order of an entry: the candidate it was
// found in, then its offset inside that candidate.
type Order struct {
	Candidate int
	Offset    int64
}

// Less reports whether o was discovered before p.
func (o Order) Less(p Order) bool {
	if o.Candidate != p.Candidate {
		return o.Candidate < p.Candidate
	}
	return o.Offset < p.Offset
}

// Entry records that Length bytes of a piece, starting PieceOffset bytes
// into it, are present byte-identical at SourceOffset in Source. Entries
// found by an aligned window cover the whole piece; entries found by the
// boundary pass cover the part of a cross-file piece inside one file.
type Entry struct {
	Torrent      int
	Piece        int
	PieceOffset  int64
	Length       int64
	Source       string
	SourceOffset int64
	Order        Order
}

// Full reports whether e covers the whole of its piece.
func (e Entry) Full(t *metainfo.Torrent) bool {
	return e.PieceOffset == 0 && e.Length == t.PieceSize(e.Piece)
}

// PieceRef addresses one piece of one loaded torrent.
type PieceRef struct {
	Torrent int
	Piece   int
}

// Availability is the merged, read-only result of scanning. Entries for
// a piece are kept in discovery order regardless of which scan task
// finished first.
type Availability struct {
	entries map[PieceRef][]Entry
	count   int
}

// NewAvailability merges entries into an Availability.
func NewAvailability(entries []Entry) *Availability {
	a := &Availability{entries: make(map[PieceRef][]Entry)}

	for _, e := range entries {
		ref := PieceRef{Torrent: e.Torrent, Piece: e.Piece}
		a.entries[ref] = append(a.entries[ref], e)
	}

	for ref, list := range a.entries {
		sort.SliceStable(list, func(i, j int) bool {
			a, b := list[i], list[j]
			if a.Order != b.Order {
				return a.Order.Less(b.Order)
			}
			if a.PieceOffset != b.PieceOffset {
				return a.PieceOffset < b.PieceOffset
			}
			if a.Source != b.Source {
				return a.Source < b.Source
			}
			return a.SourceOffset < b.SourceOffset
		})
		a.entries[ref] = list
	}
	a.count = len(entries)

	return a
}

// For returns the entries for one piece, in discovery order. The returned
// slice is shared and must not be modified.
func (a *Availability) For(torrent, piece int) []Entry {
	return a.entries[PieceRef{Torrent: torrent, Piece: piece}]
}

// Len returns the total number of entries.
func (a *Availability) Len() int {
	return a.count
}

// Pieces returns the number of distinct pieces with at least one entry.
func (a *Availability) Pieces() int {
	return len(a.entries)
}
