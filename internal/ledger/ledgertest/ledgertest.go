// Package ledgertest provides a deterministic in-memory ledger double.
package ledgertest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/jobchain/integrity/internal/ledger"
)

// Recorder is a ledger.Client that appends events in memory and returns
// deterministic transaction references derived from the event identity.
// The zero value is ready to use.
type Recorder struct {
	mu     sync.Mutex
	events []ledger.Event

	// Err, when set, makes every Submit fail with it.
	Err error
	// FailAfter, when positive, makes Submit fail with ledger.ErrUnavailable
	// once that many events have been recorded.
	FailAfter int
}

// Submit records the event and returns a reference stable across retries
// of the same event.
func (r *Recorder) Submit(_ context.Context, event ledger.Event) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return "", r.Err
	}
	if r.FailAfter > 0 && len(r.events) >= r.FailAfter {
		return "", ledger.ErrUnavailable
	}
	r.events = append(r.events, event)
	return Ref(event), nil
}

// Events returns a copy of all recorded events in submission order.
func (r *Recorder) Events() []ledger.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ledger.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Ref derives the deterministic transaction reference for an event.
func Ref(event ledger.Event) string {
	identity := strings.Join(append([]string{event.Name, event.IdempotencyKey}, event.Args...), "|")
	sum := sha256.Sum256([]byte(identity))
	return "0x" + hex.EncodeToString(sum[:])
}

var _ ledger.Client = (*Recorder)(nil)
