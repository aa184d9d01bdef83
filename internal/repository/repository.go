package repository

import "github.com/NamanBalaji/tbs/pkg/torrent/metainfo"

// WindowKey identifies one sequence of window hashes: the windows of length
// PieceLength starting at Phase in the file at Path. Size and ModTime pin
// the file content the hashes were computed from.
type WindowKey struct {
	Path        string
	Size        int64
	ModTime     int64 // unix nanoseconds
	PieceLength int64
	Phase       int64
}

// Repository stores window hashes between runs so unchanged files are not
// re-read.
type Repository interface {
	Find(key WindowKey) ([]metainfo.Hash, bool, error)
	Save(key WindowKey, hashes []metainfo.Hash) error
	Close() error
}
