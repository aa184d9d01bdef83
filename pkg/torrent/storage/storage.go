package storage

// Storage is a read-only view of a torrent's virtual byte stream backed by
// the exported files. It is goroutine safe.
//
// ReadBlock operates on absolute offsets within the torrent's overall byte
// stream and transparently reads across file boundaries. Padding files read
// as zeros.
//
// HashPiece reports whether the SHA-1 of a piece, as currently on disk,
// matches the torrent's piece list.
type Storage interface {
	ReadBlock(b []byte, off int64) (n int, err error)
	HashPiece(pieceIndex int) (correct bool)
	Close() error
}
