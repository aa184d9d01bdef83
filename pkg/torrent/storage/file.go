package storage

// This file contains the file backed Storage used to verify export trees
// after they have been written.

import (
	"bytes"
	"crypto/sha1"
	"io"
	"os"
	"path/filepath"

	"github.com/NamanBalaji/tbs/pkg/torrent/metainfo"
)

// hashBufferSize defines the buffer size used when hashing a piece. A larger
// buffer improves hashing throughput by reducing the number of read calls.
const hashBufferSize = 32 * 1024 // 32 KiB

// fileStorage implements Storage over the export files of one torrent.
// Files that do not exist have a nil handle and read as absent.
type fileStorage struct {
	files    []*os.File
	fileLens []int64 // on-disk length, capped at the declared length
	t        *metainfo.Torrent
}

// OpenFileStorage opens every non-padding file of t below baseDir for
// reading. Missing files are not an error; their bytes are simply absent
// and any piece touching them fails verification.
func OpenFileStorage(t *metainfo.Torrent, baseDir string) (Storage, error) {
	fs := &fileStorage{
		files:    make([]*os.File, len(t.Files)),
		fileLens: make([]int64, len(t.Files)),
		t:        t,
	}

	for i, fi := range t.Files {
		if fi.Padding {
			fs.fileLens[i] = fi.Length
			continue
		}

		f, err := os.Open(filepath.Join(baseDir, fi.RelativePath()))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			fs.Close()
			return nil, err
		}

		stat, err := f.Stat()
		if err != nil {
			f.Close()
			fs.Close()
			return nil, err
		}

		fs.files[i] = f
		fs.fileLens[i] = min(stat.Size(), fi.Length)
	}

	return fs, nil
}

// ReadBlock reads data starting at an absolute offset across potentially
// multiple files. It fills the supplied buffer and returns the number of
// bytes read. A short count means a file was missing or shorter than
// declared at the point the read stopped.
func (fs *fileStorage) ReadBlock(b []byte, off int64) (int, error) {
	totalRead := 0

	for totalRead < len(b) {
		fileIdx, relativeOffset, ok := fs.t.Locate(off + int64(totalRead))
		if !ok {
			break // offset beyond end of torrent
		}

		// Determine how many bytes can be read from this file
		bytesAvailableInFile := fs.fileLens[fileIdx] - relativeOffset
		if bytesAvailableInFile <= 0 {
			break
		}

		bytesToRead := min(int64(len(b)-totalRead), bytesAvailableInFile)
		chunk := b[totalRead : totalRead+int(bytesToRead)]

		if fs.t.Files[fileIdx].Padding {
			clear(chunk)
			totalRead += len(chunk)
			continue
		}

		if fs.files[fileIdx] == nil {
			break
		}

		n, err := fs.files[fileIdx].ReadAt(chunk, relativeOffset)
		totalRead += n

		if err != nil && err != io.EOF {
			return totalRead, err
		}

		if n < len(chunk) {
			break // short read, file shrank
		}
	}

	return totalRead, nil
}

// HashPiece verifies the SHA-1 hash for a given piece index matches the
// expected value in the torrent's piece list. It streams data from the
// underlying files into the hash to avoid loading the entire piece into
// memory at once.
func (fs *fileStorage) HashPiece(pieceIndex int) bool {
	if pieceIndex < 0 || pieceIndex >= fs.t.NumPieces() {
		return false
	}

	h := sha1.New()
	start, end := fs.t.PieceRange(pieceIndex)
	buf := make([]byte, hashBufferSize)

	for off := start; off < end; {
		readSize := min(int64(hashBufferSize), end-off)

		n, err := fs.ReadBlock(buf[:readSize], off)
		if err != nil || int64(n) < readSize {
			return false
		}

		h.Write(buf[:n])
		off += int64(n)
	}

	expected := fs.t.Pieces[pieceIndex]
	return bytes.Equal(h.Sum(nil), expected[:])
}

// Close closes all underlying file descriptors. The last encountered error
// (if any) is returned.
func (fs *fileStorage) Close() error {
	var lastErr error

	for _, f := range fs.files {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil {
			lastErr = err
		}
	}

	return lastErr
}
