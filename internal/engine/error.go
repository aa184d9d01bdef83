package engine

import (
	"context"

	tbserrors "github.com/NamanBalaji/tbs/internal/errors"
	"github.com/NamanBalaji/tbs/pkg/torrent/metainfo"
)

// loadError attributes a torrent loading failure to its taxonomy entry.
func loadError(err error, resource string) error {
	if err == nil {
		return nil
	}

	if tbserrors.Is(err, metainfo.ErrInconsistentLayout) {
		return tbserrors.NewInconsistentLayout(err, resource)
	}

	return tbserrors.NewMalformedMetadata(err, resource)
}

// runError wraps err for the report, mapping cancellation to a context error.
func runError(err error, resource string) error {
	if err == nil {
		return nil
	}

	var reconcileErr *tbserrors.ReconcileError
	if tbserrors.As(err, &reconcileErr) {
		return err
	}

	if tbserrors.Is(err, context.Canceled) || tbserrors.Is(err, context.DeadlineExceeded) {
		return tbserrors.NewContextError(err, resource)
	}

	return err
}
