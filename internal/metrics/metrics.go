// Package metrics provides Prometheus metrics for tbs runs. A run is a batch
// job, so the registry is written to a node-exporter textfile instead of
// being served.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tbs"

// Label constants for consistent labeling across metrics.
const (
	LabelResult = "result" // loaded, skipped, applied, skipped
	LabelState  = "state"  // correct, filled, missing
	LabelKind   = "kind"   // error taxonomy entry
	LabelStage  = "stage"  // scan, write, verify
)

// Registry holds every tbs metric. It is separate from the default registry
// so the textfile contains no Go runtime collectors.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

// Counters track cumulative values that only increase.
var (
	// TorrentsTotal counts torrent files by load result.
	TorrentsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "torrents_total",
			Help:      "Torrent files processed, by load result",
		},
		[]string{LabelResult},
	)

	// CandidatesScannedTotal counts candidate files scanned.
	CandidatesScannedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_scanned_total",
			Help:      "Candidate files scanned for matching pieces",
		},
	)

	// BytesHashedTotal counts bytes read and hashed while scanning.
	BytesHashedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_bytes_hashed_total",
			Help:      "Bytes hashed while scanning candidates",
		},
	)

	// CacheHitsTotal counts window sets served from the scan cache.
	CacheHitsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_cache_hits_total",
			Help:      "Window hash sets served from the scan cache",
		},
	)

	// PiecesTotal counts declared file parts by reconcile outcome.
	PiecesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pieces_total",
			Help:      "Pieces per export file, by state after reconciling",
		},
		[]string{LabelState},
	)

	// SegmentsTotal counts copy segments by write result.
	SegmentsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_total",
			Help:      "Copy segments, by write result",
		},
		[]string{LabelResult},
	)

	// BytesWrittenTotal counts bytes copied into export files.
	BytesWrittenTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_written_total",
			Help:      "Bytes copied into export files",
		},
	)

	// IssuesTotal counts reported issues by kind.
	IssuesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issues_total",
			Help:      "Issues reported during the run, by kind",
		},
		[]string{LabelKind},
	)
)

// Gauges track values that describe the last run.
var (
	// LastRunTimestamp is the unix time the last run finished.
	LastRunTimestamp = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		},
	)

	// LastRunSuccess is 1 when the last run completed without a fatal error.
	LastRunSuccess = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "Whether the last run completed without a fatal error",
		},
	)

	// PiecesVerified is the number of pieces that hashed correctly after writing.
	PiecesVerified = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pieces_verified",
			Help:      "Pieces that hashed correctly over the export files after writing",
		},
	)
)

// Histograms track distributions of values.
var (
	// StageDuration tracks how long each stage of a run took.
	StageDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each stage of a run",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300, 1800, 3600},
		},
		[]string{LabelStage},
	)
)

// WriteTextfile writes the registry to path in the text exposition format,
// creating the parent directory when needed.
func WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}

	if err := prometheus.WriteToTextfile(path, Registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}

	return nil
}
