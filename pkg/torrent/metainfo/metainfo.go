package metainfo

import (
	"crypto/sha1" //nolint:gosec // SHA-1 is the BitTorrent v1 piece and info hash
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/NamanBalaji/tbs/pkg/torrent/bencode"
)

// HashSize is the length of a SHA-1 piece hash.
const HashSize = sha1.Size

var (
	// ErrMalformedMetadata is returned when the torrent cannot be decoded or a
	// required key is missing or has the wrong kind.
	ErrMalformedMetadata = errors.New("malformed metadata")
	// ErrInconsistentLayout is returned when the declared file lengths do not
	// add up to the piece list.
	ErrInconsistentLayout = errors.New("inconsistent layout")
)

// Hash is a 20-byte SHA-1 digest.
type Hash [HashSize]byte

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// FileEntry is one file of the torrent's virtual byte stream. Path holds the
// components relative to the export root: the torrent name for single-file
// torrents, name followed by the declared path for multi-file torrents.
type FileEntry struct {
	Path    []string
	Length  int64
	Offset  int64 // start of the file in the virtual stream
	Padding bool  // BEP 47 padding file, never exported
}

// RelativePath returns the OS path of the file below the export root.
func (f FileEntry) RelativePath() string {
	return filepath.Join(f.Path...)
}

// End returns the virtual offset one past the file's last byte.
func (f FileEntry) End() int64 {
	return f.Offset + f.Length
}

// Torrent is the piece-addressable model of a torrent description. A Torrent
// is never mutated after Parse returns it.
type Torrent struct {
	Source      string // metadata file path, empty when parsed from memory
	Name        string
	InfoHash    Hash
	PieceLength int64
	Pieces      []Hash
	Files       []FileEntry
	TotalLength int64
}

// Span is the part of a piece that falls inside one file.
type Span struct {
	File        int
	FileOffset  int64
	PieceOffset int64
	Length      int64
}

// Load reads and parses the torrent file at path.
func Load(path string) (*Torrent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrMalformedMetadata, path, err)
	}

	t, err := Parse(data)
	if err != nil {
		return nil, err
	}

	t.Source = path
	return t, nil
}

// Parse decodes a bencoded torrent description. The info hash is computed
// over the exact bytes of the info dictionary as they appear in data.
func Parse(data []byte) (*Torrent, error) {
	root, err := bencode.Decode(data)
	if err != nil {
		return nil, malformed("decoding: %v", err)
	}

	if root.Kind != bencode.KindDict {
		return nil, malformed("root is a %s, expected dictionary", root.Kind)
	}

	info, err := field(root, "info", bencode.KindDict)
	if err != nil {
		return nil, err
	}

	t := &Torrent{InfoHash: sha1.Sum(info.Raw(data))} //nolint:gosec

	name, err := field(info, "name", bencode.KindBytes)
	if err != nil {
		return nil, err
	}
	t.Name = string(name.Bytes)
	if err := validComponent(t.Name); err != nil {
		return nil, err
	}

	pieceLen, err := field(info, "piece length", bencode.KindInt)
	if err != nil {
		return nil, err
	}
	if pieceLen.Int <= 0 {
		return nil, malformed("piece length %d must be positive", pieceLen.Int)
	}
	t.PieceLength = pieceLen.Int

	pieces, err := field(info, "pieces", bencode.KindBytes)
	if err != nil {
		return nil, err
	}
	if len(pieces.Bytes)%HashSize != 0 {
		return nil, malformed("pieces length %d is not a multiple of %d", len(pieces.Bytes), HashSize)
	}
	t.Pieces = make([]Hash, len(pieces.Bytes)/HashSize)
	for i := range t.Pieces {
		copy(t.Pieces[i][:], pieces.Bytes[i*HashSize:])
	}

	length, files := info.Get("length"), info.Get("files")
	switch {
	case length != nil && files != nil:
		return nil, malformed("info contains both length and files")
	case length != nil:
		if length.Kind != bencode.KindInt {
			return nil, malformed("info.length is a %s, expected integer", length.Kind)
		}
		if length.Int < 0 {
			return nil, malformed("info.length %d is negative", length.Int)
		}
		t.Files = []FileEntry{{Path: []string{t.Name}, Length: length.Int}}
	case files != nil:
		if t.Files, err = parseFiles(t.Name, files); err != nil {
			return nil, err
		}
	default:
		return nil, malformed("info contains neither length nor files")
	}

	for i := range t.Files {
		if t.Files[i].Length > math.MaxInt64-t.TotalLength {
			return nil, fmt.Errorf("%w: file lengths overflow at %q", ErrInconsistentLayout, t.Files[i].RelativePath())
		}
		t.Files[i].Offset = t.TotalLength
		t.TotalLength += t.Files[i].Length
	}

	if err := t.validateLayout(); err != nil {
		return nil, err
	}

	return t, nil
}

func parseFiles(name string, files *bencode.Value) ([]FileEntry, error) {
	if files.Kind != bencode.KindList {
		return nil, malformed("info.files is a %s, expected list", files.Kind)
	}
	if len(files.List) == 0 {
		return nil, malformed("info.files is empty")
	}

	entries := make([]FileEntry, 0, len(files.List))
	for i, f := range files.List {
		if f.Kind != bencode.KindDict {
			return nil, malformed("info.files[%d] is a %s, expected dictionary", i, f.Kind)
		}

		length, err := field(f, "length", bencode.KindInt)
		if err != nil {
			return nil, fmt.Errorf("info.files[%d]: %w", i, err)
		}
		if length.Int < 0 {
			return nil, malformed("info.files[%d].length %d is negative", i, length.Int)
		}

		path, err := field(f, "path", bencode.KindList)
		if err != nil {
			return nil, fmt.Errorf("info.files[%d]: %w", i, err)
		}
		if len(path.List) == 0 {
			return nil, malformed("info.files[%d].path is empty", i)
		}

		components := make([]string, 0, len(path.List)+1)
		components = append(components, name)
		for _, c := range path.List {
			if c.Kind != bencode.KindBytes {
				return nil, malformed("info.files[%d].path contains a %s", i, c.Kind)
			}
			if err := validComponent(string(c.Bytes)); err != nil {
				return nil, err
			}
			components = append(components, string(c.Bytes))
		}

		entry := FileEntry{Path: components, Length: length.Int}
		if attr := f.Get("attr"); attr != nil && attr.Kind == bencode.KindBytes {
			entry.Padding = strings.ContainsRune(string(attr.Bytes), 'p')
		}
		if components[1] == ".pad" {
			entry.Padding = true
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

func (t *Torrent) validateLayout() error {
	if t.TotalLength == 0 {
		return fmt.Errorf("%w: torrent declares no content", ErrInconsistentLayout)
	}

	want := ceilDiv(t.TotalLength, t.PieceLength)
	if int64(len(t.Pieces)) != want {
		return fmt.Errorf("%w: %d pieces declared, %d bytes at piece length %d need %d",
			ErrInconsistentLayout, len(t.Pieces), t.TotalLength, t.PieceLength, want)
	}

	return nil
}

// ceilDiv divides rounding up without overflowing on large operands.
func ceilDiv(n, d int64) int64 {
	q := n / d
	if n%d != 0 {
		q++
	}
	return q
}

// NumPieces returns the number of pieces.
func (t *Torrent) NumPieces() int {
	return len(t.Pieces)
}

// PieceRange returns the virtual stream range [start, end) of piece i.
func (t *Torrent) PieceRange(i int) (start, end int64) {
	start = int64(i) * t.PieceLength
	return start, start + min(t.PieceLength, t.TotalLength-start)
}

// PieceSize returns the length of piece i. Only the last piece may be
// shorter than PieceLength.
func (t *Torrent) PieceSize(i int) int64 {
	start, end := t.PieceRange(i)
	return end - start
}

// Locate maps a virtual stream offset to the file containing it and the
// offset within that file. Zero-length files never contain an offset.
func (t *Torrent) Locate(off int64) (file int, local int64, ok bool) {
	if off < 0 || off >= t.TotalLength {
		return -1, 0, false
	}

	file = sort.Search(len(t.Files), func(i int) bool {
		return t.Files[i].End() > off
	})

	return file, off - t.Files[file].Offset, true
}

// PieceSpans returns the per-file parts of piece i in stream order.
func (t *Torrent) PieceSpans(i int) []Span {
	start, end := t.PieceRange(i)

	file, local, ok := t.Locate(start)
	if !ok {
		return nil
	}

	var spans []Span
	for pos := start; pos < end; file++ {
		f := t.Files[file]
		if f.Length == 0 {
			continue
		}

		n := min(f.Length-local, end-pos)
		spans = append(spans, Span{
			File:        file,
			FileOffset:  local,
			PieceOffset: pos - start,
			Length:      n,
		})

		pos += n
		local = 0
	}

	return spans
}

// FilePieces returns the half-open range of piece indices whose bytes
// intersect file f.
func (t *Torrent) FilePieces(f int) (first, end int) {
	entry := t.Files[f]
	if entry.Length == 0 {
		return 0, 0
	}

	first = int(entry.Offset / t.PieceLength)
	end = int(ceilDiv(entry.End(), t.PieceLength))

	return first, end
}

// PieceLengths returns the distinct piece lengths across torrents in
// ascending order.
func PieceLengths(torrents []*Torrent) []int64 {
	seen := make(map[int64]struct{})
	var out []int64

	for _, t := range torrents {
		if _, ok := seen[t.PieceLength]; ok {
			continue
		}
		seen[t.PieceLength] = struct{}{}
		out = append(out, t.PieceLength)
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func field(dict *bencode.Value, key string, kind bencode.Kind) (*bencode.Value, error) {
	v := dict.Get(key)
	if v == nil {
		return nil, malformed("missing required key %q", key)
	}
	if v.Kind != kind {
		return nil, malformed("key %q is a %s, expected %s", key, v.Kind, kind)
	}
	return v, nil
}

func validComponent(c string) error {
	if c == "" || c == "." || c == ".." || strings.ContainsAny(c, "/\\\x00") {
		return malformed("invalid path component %q", c)
	}
	return nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedMetadata, fmt.Sprintf(format, args...))
}
