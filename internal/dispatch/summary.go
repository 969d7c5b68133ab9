package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/example/bulksend/internal/contacts"
)

// RecordSource yields contact records in order. contacts.Loader satisfies it;
// tests substitute in-memory sources.
type RecordSource interface {
	Next() (*contacts.Record, error)
}

// Summary aggregates the outcome counts of one run. The authoritative record
// is the send log; the summary exists for the operator's terminal.
type Summary struct {
	Processed int
	Succeeded int
	Failed    int
}

func (s *Summary) record(ok bool) {
	if ok {
		s.Succeeded++
	} else {
		s.Failed++
	}
}

// String renders the end-of-run line shown to the operator.
func (s Summary) String() string {
	return fmt.Sprintf("processed %d records: %d succeeded, %d failed", s.Processed, s.Succeeded, s.Failed)
}

// retryBackoff returns the pause before retry attempt n (1-based), doubling
// from 500ms and capped at 5s.
func retryBackoff(attempt int) time.Duration {
	backoff := 500 * time.Millisecond << (attempt - 1)
	if backoff > 5*time.Second || backoff <= 0 {
		return 5 * time.Second
	}
	return backoff
}

// sleepContext pauses for d unless the context ends first. It is the default
// Sleep dependency; tests swap it for an instant recorder.
func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
