package ingest

import (
	"context"
	"errors"

	"bank-success-rates/internal/storage"
)

// ErrSourceClosed signals that the source delivered everything it ever will.
var ErrSourceClosed = errors.New("ingest: source closed")

// Source abstracts the inbound queue/transport delivering transaction
// outcomes. Implementations block in Next until an outcome is available, the
// stream ends (ErrSourceClosed) or ctx is cancelled. No cross-bank ordering
// is required; aggregation is commutative.
type Source interface {
	Next(ctx context.Context) (storage.Outcome, error)
}

// ChanSource adapts a Go channel into a Source, used by the simulator and in
// tests as a stand-in for the external transport.
type ChanSource struct {
	ch <-chan storage.Outcome
}

// NewChanSource wraps the channel.
func NewChanSource(ch <-chan storage.Outcome) *ChanSource {
	return &ChanSource{ch: ch}
}

// Next returns the next outcome, ctx.Err() on cancellation, or
// ErrSourceClosed once the channel is closed and drained.
func (s *ChanSource) Next(ctx context.Context) (storage.Outcome, error) {
	select {
	case <-ctx.Done():
		return storage.Outcome{}, ctx.Err()
	case outcome, ok := <-s.ch:
		if !ok {
			return storage.Outcome{}, ErrSourceClosed
		}
		return outcome, nil
	}
}

var _ Source = (*ChanSource)(nil)
