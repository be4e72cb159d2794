package domain

import (
	"context"
	"time"
)

type Service interface {
	// Ingest resolves one raw gateway delivery end to end. The caller must
	// hand over the exact bytes received on the wire; the signature covers
	// them byte for byte.
	Ingest(ctx context.Context, payload []byte, signatureHeader string) (Outcome, error)
	// RedriveUnprocessed replays accepted events whose handler never
	// completed. Returns how many events were re-driven successfully.
	RedriveUnprocessed(ctx context.Context, before time.Time, limit int) (int, error)
}
