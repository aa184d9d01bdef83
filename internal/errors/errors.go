package errors

import (
	"errors"
	"fmt"
	"time"
)

var (
	Is     = errors.Is
	As     = errors.As
	New    = errors.New
	Unwrap = errors.Unwrap
	Join   = errors.Join
)

type Kind string

const (
	KindMalformedMetadata    Kind = "MALFORMED_METADATA"    // torrent skipped
	KindInconsistentLayout   Kind = "INCONSISTENT_LAYOUT"   // torrent skipped
	KindDuplicateTorrent     Kind = "DUPLICATE_TORRENT"     // torrent skipped
	KindScan                 Kind = "SCAN"                  // candidate file excluded
	KindStaleSource          Kind = "STALE_SOURCE"          // segment skipped
	KindTruncatedDestination Kind = "TRUNCATED_DESTINATION" // segment dropped
	KindWriteFailure         Kind = "WRITE_FAILURE"         // export file abandoned
	KindExportConflict       Kind = "EXPORT_CONFLICT"       // declared file skipped
	KindContext              Kind = "CONTEXT"               // run canceled
	KindUnknown              Kind = "UNKNOWN"
)

// ReconcileError is an error attributed to one resource (a torrent file, a
// candidate file, or an export file) that does not abort the rest of the run.
type ReconcileError struct {
	Err       error     // Original error
	Kind      Kind      // Taxonomy entry
	Resource  string    // Path the error is attributed to
	Timestamp time.Time // When the error occurred
	Details   map[string]interface{}
}

// Error implements the error interface
func (e *ReconcileError) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Resource, e.Err)
}

// Unwrap provides the underlying cause for error unwrapping (compatible with errors.As)
func (e *ReconcileError) Unwrap() error {
	return e.Err
}

// Common sentinel errors
var (
	ErrNoTorrents        = New("no torrents could be loaded")
	ErrInvalidOptions    = New("invalid options")
	ErrSourceChanged     = New("source shrank or disappeared since scanning")
	ErrDestinationShort  = New("destination shorter than planned segment and resizing is disabled")
	ErrDuplicateInfoHash = New("torrent already loaded with the same info hash")
	ErrLengthConflict    = New("export path already claimed with a different declared length")
)

func newError(kind Kind, err error, resource string) *ReconcileError {
	return &ReconcileError{
		Err:       err,
		Kind:      kind,
		Timestamp: time.Now(),
		Resource:  resource,
	}
}

// NewMalformedMetadata creates an error for a torrent that could not be parsed
func NewMalformedMetadata(err error, resource string) *ReconcileError {
	return newError(KindMalformedMetadata, err, resource)
}

// NewInconsistentLayout creates an error for a torrent whose piece arithmetic does not hold
func NewInconsistentLayout(err error, resource string) *ReconcileError {
	return newError(KindInconsistentLayout, err, resource)
}

func NewDuplicateTorrent(resource string, infoHash string) *ReconcileError {
	e := newError(KindDuplicateTorrent, ErrDuplicateInfoHash, resource)
	e.Details = map[string]interface{}{"infoHash": infoHash}
	return e
}

// NewScanError creates an error for a candidate file that could not be read
func NewScanError(err error, resource string) *ReconcileError {
	return newError(KindScan, err, resource)
}

// NewStaleSource creates an error for a copy segment whose source changed after scanning
func NewStaleSource(err error, resource string) *ReconcileError {
	return newError(KindStaleSource, err, resource)
}

func NewTruncatedDestination(resource string, destOffset, length, currentLength int64) *ReconcileError {
	e := newError(KindTruncatedDestination, ErrDestinationShort, resource)
	e.Details = map[string]interface{}{
		"destOffset":    destOffset,
		"length":        length,
		"currentLength": currentLength,
	}
	return e
}

// NewWriteFailure creates an error for an export file that could not be written
func NewWriteFailure(err error, resource string) *ReconcileError {
	return newError(KindWriteFailure, err, resource)
}

// NewExportConflict creates an error for a declared file whose export path
// was claimed by an earlier torrent with a different length
func NewExportConflict(resource string, claimedLength, declaredLength int64) *ReconcileError {
	e := newError(KindExportConflict, ErrLengthConflict, resource)
	e.Details = map[string]interface{}{
		"claimedLength":  claimedLength,
		"declaredLength": declaredLength,
	}
	return e
}

// NewContextError creates a context cancellation error
func NewContextError(err error, resource string) *ReconcileError {
	return newError(KindContext, err, resource)
}

// KindOf returns the taxonomy entry of err, or KindUnknown.
func KindOf(err error) Kind {
	var reconcileErr *ReconcileError
	if As(err, &reconcileErr) {
		return reconcileErr.Kind
	}
	return KindUnknown
}

// IsKind determines if err carries the given taxonomy entry
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ResourceOf extracts the resource an error is attributed to, if available
func ResourceOf(err error) (string, bool) {
	var reconcileErr *ReconcileError
	if As(err, &reconcileErr) {
		return reconcileErr.Resource, true
	}
	return "", false
}

// WithDetails adds additional context to a ReconcileError
func WithDetails(err error, details map[string]interface{}) error {
	var reconcileErr *ReconcileError
	if !As(err, &reconcileErr) {
		return err
	}

	if reconcileErr.Details == nil {
		reconcileErr.Details = make(map[string]interface{})
	}

	for k, v := range details {
		reconcileErr.Details[k] = v
	}

	return reconcileErr
}
