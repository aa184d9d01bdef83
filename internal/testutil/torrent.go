// Package testutil builds torrent fixtures and on-disk layouts for tests.
package testutil

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // BitTorrent v1 piece hash
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	bencode "github.com/jackpal/bencode-go"
)

// File is one declared file of a fixture torrent.
type File struct {
	Path []string
	Data []byte
	Attr string
}

// Spec describes a fixture torrent. A Spec with Single set must have exactly
// one file, and is encoded with info.length instead of info.files.
type Spec struct {
	Name        string
	PieceLength int64
	Files       []File
	Single      bool
}

// Content returns the torrent's virtual byte stream.
func (s Spec) Content() []byte {
	var buf bytes.Buffer
	for _, f := range s.Files {
		buf.Write(f.Data)
	}
	return buf.Bytes()
}

// Pieces returns the concatenated piece hashes of the virtual stream.
func (s Spec) Pieces() string {
	content := s.Content()

	var buf bytes.Buffer
	for off := int64(0); off < int64(len(content)); off += s.PieceLength {
		end := min(off+s.PieceLength, int64(len(content)))
		sum := sha1.Sum(content[off:end]) //nolint:gosec
		buf.Write(sum[:])
	}
	return buf.String()
}

// PieceHash returns the hash of piece i.
func (s Spec) PieceHash(i int) [20]byte {
	var h [20]byte
	copy(h[:], s.Pieces()[i*20:])
	return h
}

// Info returns the info dictionary with pieces overridden when non-empty.
func (s Spec) Info(pieces string) map[string]interface{} {
	if pieces == "" {
		pieces = s.Pieces()
	}

	info := map[string]interface{}{
		"name":         s.Name,
		"piece length": s.PieceLength,
		"pieces":       pieces,
	}

	if s.Single {
		info["length"] = int64(len(s.Files[0].Data))
		return info
	}

	files := make([]interface{}, 0, len(s.Files))
	for _, f := range s.Files {
		path := make([]interface{}, len(f.Path))
		for i, c := range f.Path {
			path[i] = c
		}
		entry := map[string]interface{}{
			"length": int64(len(f.Data)),
			"path":   path,
		}
		if f.Attr != "" {
			entry["attr"] = f.Attr
		}
		files = append(files, entry)
	}
	info["files"] = files

	return info
}

// Bytes encodes the spec as a torrent file.
func (s Spec) Bytes(t testing.TB) []byte {
	t.Helper()
	return Encode(t, map[string]interface{}{
		"announce": "http://tracker.invalid/announce",
		"info":     s.Info(""),
	})
}

// WriteTorrent writes the encoded spec to dir/<name>.torrent.
func (s Spec) WriteTorrent(t testing.TB, dir string) string {
	t.Helper()
	path := filepath.Join(dir, s.Name+".torrent")
	WriteFile(t, path, s.Bytes(t))
	return path
}

// WriteContent writes every declared file below root using its relative path.
func (s Spec) WriteContent(t testing.TB, root string) {
	t.Helper()
	for _, f := range s.Files {
		WriteFile(t, filepath.Join(root, s.RelativePath(f)), f.Data)
	}
}

// RelativePath returns the export-relative path of f.
func (s Spec) RelativePath(f File) string {
	if s.Single {
		return s.Name
	}
	return filepath.Join(append([]string{s.Name}, f.Path...)...)
}

// Encode bencodes v.
func Encode(t testing.TB, v interface{}) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := bencode.Marshal(&buf, v); err != nil {
		t.Fatalf("failed to encode torrent: %v", err)
	}
	return buf.Bytes()
}

// WriteFile creates parent directories and writes data to path.
func WriteFile(t testing.TB, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// ReadFile reads path or fails the test.
func ReadFile(t testing.TB, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return data
}

// RandomBytes returns n deterministic pseudo-random bytes for seed.
func RandomBytes(seed int64, n int) []byte {
	b := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(b)
	return b
}

// Fill returns n copies of c.
func Fill(c byte, n int) []byte {
	return bytes.Repeat([]byte{c}, n)
}
