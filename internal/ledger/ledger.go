// Package ledger defines the append-only proof sink used to anchor
// integrity events outside local storage.
//
// The ledger is fire-and-record: submissions return an opaque transaction
// reference that callers persist next to their own records, and nothing in
// the core waits for deeper confirmation. Retry policy belongs to the
// client implementation; callers make retries safe by reusing the event's
// idempotency key.
package ledger

import (
	"context"
	"errors"
)

// Event names recorded by the integrity core.
const (
	EventDistributePaper    = "distributePaper"
	EventDetectPaperLeak    = "detectPaperLeak"
	EventDetectMarksAnomaly = "detectMarksAnomaly"
)

// ErrUnavailable indicates a transport or consensus failure. Submissions
// failing with it may be retried with the same idempotency key.
var ErrUnavailable = errors.New("ledger unavailable")

// Event is one named proof submission.
type Event struct {
	// Name identifies the recorded operation, e.g. EventDistributePaper.
	Name string
	// IdempotencyKey correlates retries of the same logical submission so
	// the ledger can deduplicate them.
	IdempotencyKey string
	// Args carry the operation payload in positional order.
	Args []string
}

// Client submits events to the ledger.
type Client interface {
	// Submit records one event and returns its transaction reference.
	Submit(ctx context.Context, event Event) (string, error)
}
