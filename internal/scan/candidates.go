package scan

import (
	"path/filepath"
	"strings"

	"github.com/NamanBalaji/tbs/internal/filesystem"
	"github.com/NamanBalaji/tbs/pkg/torrent/metainfo"
)

// FileRef addresses one declared file of one loaded torrent.
type FileRef struct {
	Torrent int
	File    int
}

// Candidate is a file that may hold torrent content. Ordinal is its
// position in the fixed discovery order and is the tie-break between
// equally good sources.
type Candidate struct {
	Path    string
	Ordinal int
	Size    int64
	Exists  bool
	Export  bool // the export path of at least one declared file
}

// Candidates is the ordered candidate list plus, for every declared file,
// the candidates believed to be copies of it, best first.
type Candidates struct {
	List     []Candidate
	byPath   map[string]int
	ranked   map[FileRef][]int
	assigned map[int][]FileRef
	fs       *filesystem.OSFileSystem
}

// ExportPath returns where f is written below root.
func ExportPath(root string, f metainfo.FileEntry) string {
	return filepath.Join(root, f.RelativePath())
}

// Resolve builds the candidate list: the export paths of every non-padding
// file first, then the scanned paths in the order given, deduplicated by
// cleaned path. Each declared file ranks its own export path first, then
// paths ending in its relative path, then paths with its base name, then
// paths of its exact length.
func Resolve(torrents []*metainfo.Torrent, exportRoot string, scanned []string) *Candidates {
	c := &Candidates{
		byPath:   make(map[string]int),
		ranked:   make(map[FileRef][]int),
		assigned: make(map[int][]FileRef),
		fs:       filesystem.NewOSFileSystem(),
	}

	for _, t := range torrents {
		for _, f := range t.Files {
			if f.Padding {
				continue
			}
			ord := c.add(ExportPath(exportRoot, f))
			c.List[ord].Export = true
		}
	}
	for _, p := range scanned {
		c.add(p)
	}

	byBase := make(map[string][]int)
	bySize := make(map[int64][]int)
	for _, cand := range c.List {
		byBase[filepath.Base(cand.Path)] = append(byBase[filepath.Base(cand.Path)], cand.Ordinal)
		if cand.Exists {
			bySize[cand.Size] = append(bySize[cand.Size], cand.Ordinal)
		}
	}

	for tid, t := range torrents {
		for fid, f := range t.Files {
			if f.Padding {
				continue
			}
			ref := FileRef{Torrent: tid, File: fid}
			ranked := c.rank(f, c.byPath[filepath.Clean(ExportPath(exportRoot, f))], byBase, bySize)
			c.ranked[ref] = ranked
			for _, ord := range ranked {
				c.assigned[ord] = append(c.assigned[ord], ref)
			}
		}
	}

	return c
}

func (c *Candidates) add(path string) int {
	path = filepath.Clean(path)
	if ord, ok := c.byPath[path]; ok {
		return ord
	}

	cand := Candidate{Path: path, Ordinal: len(c.List)}
	// anything that is not a regular file is treated as absent
	if size, exists, err := c.fs.Size(path); err == nil && exists {
		cand.Size = size
		cand.Exists = true
	}

	c.byPath[path] = cand.Ordinal
	c.List = append(c.List, cand)
	return cand.Ordinal
}

// rank orders the candidates for f by match tier, then ordinal. The export
// path is always first, even when it does not exist yet.
func (c *Candidates) rank(f metainfo.FileEntry, export int, byBase map[string][]int, bySize map[int64][]int) []int {
	rel := "/" + filepath.ToSlash(f.RelativePath())
	base := filepath.Base(f.RelativePath())

	var suffix, named, sized []int
	matched := map[int]bool{export: true}

	for _, ord := range byBase[base] {
		if matched[ord] {
			continue
		}
		matched[ord] = true
		if strings.HasSuffix(filepath.ToSlash(c.List[ord].Path), rel) {
			suffix = append(suffix, ord)
		} else {
			named = append(named, ord)
		}
	}

	if f.Length > 0 {
		for _, ord := range bySize[f.Length] {
			if !matched[ord] {
				sized = append(sized, ord)
			}
		}
	}

	ranked := []int{export}
	ranked = append(ranked, suffix...)
	ranked = append(ranked, named...)
	return append(ranked, sized...)
}

// Ranked returns the ranked candidate ordinals for a declared file.
func (c *Candidates) Ranked(ref FileRef) []int {
	return c.ranked[ref]
}

// Assigned returns the declared files a candidate was ranked for.
func (c *Candidates) Assigned(ordinal int) []FileRef {
	return c.assigned[ordinal]
}

// Lookup returns the candidate for path.
func (c *Candidates) Lookup(path string) (Candidate, bool) {
	ord, ok := c.byPath[filepath.Clean(path)]
	if !ok {
		return Candidate{}, false
	}
	return c.List[ord], true
}

// IsExport reports whether path is the export path of a declared file.
func (c *Candidates) IsExport(path string) bool {
	cand, ok := c.Lookup(path)
	return ok && cand.Export
}
