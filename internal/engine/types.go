package engine

import (
	"runtime"
	"time"

	"github.com/google/uuid"

	tbserrors "github.com/NamanBalaji/tbs/internal/errors"
	"github.com/NamanBalaji/tbs/internal/progress"
	"github.com/NamanBalaji/tbs/internal/repository"
	"github.com/NamanBalaji/tbs/internal/scan"
	"github.com/NamanBalaji/tbs/pkg/torrent/bitfield"
)

// Options contains everything one run needs.
type Options struct {
	RunID      uuid.UUID // generated when zero
	Torrents   []string  // torrent metadata files, loaded in this order
	ScanRoots  []string  // directories or files searched for existing content
	ExportRoot string

	Threads int
	Resize  bool // grow export files to their declared length
	Verify  bool // re-hash the export files after writing
	DryRun  bool // plan only, never write

	MaxBoundaryCandidates   int
	MaxBoundaryCombinations int

	Cache    repository.Repository // nil disables the scan cache
	Observer progress.Observer
}

// DefaultOptions returns options with the default limits and no inputs.
func DefaultOptions() Options {
	return Options{
		Threads:                 runtime.NumCPU(),
		MaxBoundaryCandidates:   scan.DefaultMaxBoundaryCandidates,
		MaxBoundaryCombinations: scan.DefaultMaxBoundaryCombinations,
	}
}

// FileReport describes one declared file after the run.
type FileReport struct {
	File           int // position in the torrent's file list
	ExportPath     string
	DeclaredLength int64

	Correct int // pieces already correct in the export file
	Filled  int // pieces copied from another source
	Missing int // pieces no source could supply

	Segments     int
	BytesPlanned int64
	BytesWritten int64
	Resized      bool
	Failed       bool // a WriteFailure abandoned the file
	Verified     bool // every piece touching the file hashed correctly
}

// TorrentReport describes one torrent metadata file after the run.
type TorrentReport struct {
	Source   string
	Name     string
	InfoHash string
	Loaded   bool
	Err      error // why the torrent was skipped
	Files    []*FileReport

	Pieces         int
	PiecesVerified int                // only set when verification ran
	VerifiedPieces *bitfield.Bitfield // pieces that hashed correctly, nil without verification
}

// Complete reports whether verification ran and every piece hashed correctly.
func (t *TorrentReport) Complete() bool {
	return t.VerifiedPieces != nil && t.VerifiedPieces.IsComplete()
}

// Report is the structured result of one run. Formatting is left to the caller.
type Report struct {
	RunID      uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	DryRun     bool
	Verified   bool

	Torrents []*TorrentReport

	Candidates   int
	BytesHashed  int64
	CacheHits    int
	BytesWritten int64

	// Issues holds every skipped torrent, candidate, segment or file in the
	// order the run met them.
	Issues []error
}

// Totals sums the piece counts over every file.
func (r *Report) Totals() (correct, filled, missing int) {
	for _, t := range r.Torrents {
		for _, f := range t.Files {
			correct += f.Correct
			filled += f.Filled
			missing += f.Missing
		}
	}
	return correct, filled, missing
}

// IssuesOf returns the issues of the given kind.
func (r *Report) IssuesOf(kind tbserrors.Kind) []error {
	var out []error
	for _, err := range r.Issues {
		if tbserrors.IsKind(err, kind) {
			out = append(out, err)
		}
	}
	return out
}

// Loaded returns the number of torrents that were loaded.
func (r *Report) Loaded() int {
	n := 0
	for _, t := range r.Torrents {
		if t.Loaded {
			n++
		}
	}
	return n
}

// Duration returns how long the run took.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
