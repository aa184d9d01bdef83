package errors_test

import (
	stdErrors "errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/NamanBalaji/tbs/internal/errors"
)

func TestReconcileErrorError(t *testing.T) {
	re := &errors.ReconcileError{
		Err:       stdErrors.New("underlying error"),
		Kind:      errors.KindScan,
		Timestamp: time.Now(),
		Resource:  "/data/file.bin",
	}
	expected := "[SCAN] /data/file.bin: underlying error"
	if re.Error() != expected {
		t.Errorf("expected %q, got %q", expected, re.Error())
	}
}

func TestReconcileErrorUnwrap(t *testing.T) {
	re := errors.NewStaleSource(os.ErrNotExist, "/src")
	if !errors.Is(re, os.ErrNotExist) {
		t.Errorf("expected wrapped os.ErrNotExist, got %v", stdErrors.Unwrap(re))
	}
}

func TestConstructors(t *testing.T) {
	base := stdErrors.New("boom")

	tests := []struct {
		name string
		err  *errors.ReconcileError
		kind errors.Kind
	}{
		{"malformed", errors.NewMalformedMetadata(base, "a.torrent"), errors.KindMalformedMetadata},
		{"layout", errors.NewInconsistentLayout(base, "a.torrent"), errors.KindInconsistentLayout},
		{"duplicate", errors.NewDuplicateTorrent("a.torrent", "abcd"), errors.KindDuplicateTorrent},
		{"scan", errors.NewScanError(base, "f"), errors.KindScan},
		{"stale", errors.NewStaleSource(base, "f"), errors.KindStaleSource},
		{"truncated", errors.NewTruncatedDestination("f", 10, 5, 8), errors.KindTruncatedDestination},
		{"write", errors.NewWriteFailure(base, "f"), errors.KindWriteFailure},
		{"conflict", errors.NewExportConflict("f", 10, 12), errors.KindExportConflict},
		{"context", errors.NewContextError(base, "run"), errors.KindContext},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.err.Kind != tc.kind {
				t.Errorf("kind = %s, want %s", tc.err.Kind, tc.kind)
			}
			if tc.err.Timestamp.IsZero() {
				t.Error("Timestamp not set")
			}
			if tc.err.Resource == "" {
				t.Error("Resource not set")
			}
		})
	}
}

func TestKindOfWrapped(t *testing.T) {
	inner := errors.NewWriteFailure(stdErrors.New("disk full"), "/export/a")
	wrapped := fmt.Errorf("writing plan: %w", inner)

	if got := errors.KindOf(wrapped); got != errors.KindWriteFailure {
		t.Errorf("KindOf = %s, want WRITE_FAILURE", got)
	}
	if !errors.IsKind(wrapped, errors.KindWriteFailure) {
		t.Error("IsKind should see through wrapping")
	}
	if errors.IsKind(nil, errors.KindUnknown) {
		t.Error("nil error has no kind")
	}
	if got := errors.KindOf(stdErrors.New("plain")); got != errors.KindUnknown {
		t.Errorf("KindOf(plain) = %s, want UNKNOWN", got)
	}

	res, ok := errors.ResourceOf(wrapped)
	if !ok || res != "/export/a" {
		t.Errorf("ResourceOf = %q, %v", res, ok)
	}
}

func TestTruncatedDestinationDetails(t *testing.T) {
	re := errors.NewTruncatedDestination("/export/a", 100, 16, 64)
	if !errors.Is(re, errors.ErrDestinationShort) {
		t.Error("expected ErrDestinationShort")
	}
	if re.Details["destOffset"] != int64(100) || re.Details["currentLength"] != int64(64) {
		t.Errorf("unexpected details %v", re.Details)
	}
}

func TestWithDetails(t *testing.T) {
	re := errors.NewScanError(stdErrors.New("eperm"), "/x")
	err := errors.WithDetails(re, map[string]interface{}{"pieceLength": int64(16)})

	var got *errors.ReconcileError
	if !errors.As(err, &got) || got.Details["pieceLength"] != int64(16) {
		t.Errorf("details not attached: %v", err)
	}

	plain := stdErrors.New("plain")
	if errors.WithDetails(plain, map[string]interface{}{"k": 1}) != plain {
		t.Error("WithDetails should return non-ReconcileError unchanged")
	}
}
