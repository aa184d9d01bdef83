// Package index maps piece hashes to every torrent position expecting them.
package index

import (
	"github.com/NamanBalaji/tbs/pkg/torrent/metainfo"
)

// Location is one (torrent, piece) pair that expects a hash. Length is the
// expected byte length of that piece, which only differs from the torrent's
// piece length for the final piece.
type Location struct {
	Torrent int
	Piece   int
	Length  int64
}

// Index is an immutable mapping from piece hash to expecting locations. It
// is built before any scanning starts and is safe for concurrent reads.
type Index struct {
	locations map[metainfo.Hash][]Location
	torrents  []*metainfo.Torrent
}

// New builds the index. Torrent IDs are positions in torrents.
func New(torrents []*metainfo.Torrent) *Index {
	total := 0
	for _, t := range torrents {
		total += t.NumPieces()
	}

	idx := &Index{
		locations: make(map[metainfo.Hash][]Location, total),
		torrents:  torrents,
	}

	for tid, t := range torrents {
		for p, h := range t.Pieces {
			idx.locations[h] = append(idx.locations[h], Location{
				Torrent: tid,
				Piece:   p,
				Length:  t.PieceSize(p),
			})
		}
	}

	return idx
}

// LookupLength returns the locations expecting h whose piece is exactly
// length bytes long.
func (idx *Index) LookupLength(h metainfo.Hash, length int64) []Location {
	var out []Location
	for _, loc := range idx.locations[h] {
		if loc.Length == length {
			out = append(out, loc)
		}
	}
	return out
}

// Torrents returns the indexed torrents, positioned by torrent ID.
func (idx *Index) Torrents() []*metainfo.Torrent {
	return idx.torrents
}

// Len returns the number of distinct hashes.
func (idx *Index) Len() int {
	return len(idx.locations)
}
