// Package persist implements the event persister (spec §4.J): a single
// background worker per session that funnels every append through one
// channel, guaranteeing linear parent chains without callers tracking the
// session head themselves.
package persist

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/driftcode/agentcore/internal/store"
	"github.com/driftcode/agentcore/pkg/models"
)

// ErrWorkerExited is returned when the background worker has already
// stopped (its goroutine returned) rather than merely having a full
// channel; distinguishing the two helps callers decide whether retrying is
// ever going to work.
var ErrWorkerExited = errors.New("persist worker exited")

// ErrChannelClosed is returned when Append is called after Close.
var ErrChannelClosed = errors.New("persist channel closed")

type request struct {
	eventType models.EventType
	payload   []byte
	parentID  string
	flush     bool
	reply     chan result
}

type result struct {
	event *models.Event
	err   error
}

// Persister serialises every event append for one session through a single
// worker goroutine, so the store's head-pointer substitution (parentID
// omitted) is always applied to a consistent, uncontended head.
type Persister struct {
	store     store.Store
	sessionID string

	requests chan request
	done     chan struct{}
	exited   atomic.Bool
	closed   atomic.Bool
}

// New starts a persister worker for sessionID against the given store. The
// worker runs until Close is called.
func New(s store.Store, sessionID string) *Persister {
	p := &Persister{
		store:     s,
		sessionID: sessionID,
		requests:  make(chan request, 256),
		done:      make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *Persister) run() {
	defer p.exited.Store(true)
	defer close(p.done)

	ctx := context.Background()
	for req := range p.requests {
		if req.flush {
			if req.reply != nil {
				req.reply <- result{}
			}
			continue
		}

		evt, err := p.store.Append(ctx, p.sessionID, req.eventType, req.payload, req.parentID)
		if req.reply != nil {
			req.reply <- result{event: evt, err: err}
		}
	}
}

// Append submits an event and blocks until it has been written, returning
// the persisted event. Omitting parentID lets the worker substitute the
// session's current head.
func (p *Persister) Append(ctx context.Context, eventType models.EventType, payload []byte, parentID string) (*models.Event, error) {
	reply := make(chan result, 1)
	if err := p.send(ctx, request{eventType: eventType, payload: payload, parentID: parentID, reply: reply}); err != nil {
		return nil, err
	}

	select {
	case r := <-reply:
		return r.event, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AppendFireAndForget submits an event without waiting for the write to
// complete. A full channel drops the request silently from the caller's
// perspective; callers that need delivery guarantees should use Append.
func (p *Persister) AppendFireAndForget(eventType models.EventType, payload []byte, parentID string) {
	select {
	case p.requests <- request{eventType: eventType, payload: payload, parentID: parentID}:
	default:
	}
}

// Flush blocks until every request submitted before this call has been
// processed by the worker.
func (p *Persister) Flush(ctx context.Context) error {
	reply := make(chan result, 1)
	if err := p.send(ctx, request{flush: true, reply: reply}); err != nil {
		return err
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Persister) send(ctx context.Context, req request) error {
	if p.closed.Load() {
		return fmt.Errorf("%w", ErrChannelClosed)
	}

	select {
	case p.requests <- req:
		return nil
	default:
	}

	// Channel is full; distinguish "worker exited" (the consumer goroutine
	// returned, so nothing will ever drain this channel) from "channel full
	// but still alive" by checking whether the worker has already returned.
	if p.exited.Load() {
		return fmt.Errorf("%w", ErrWorkerExited)
	}

	select {
	case p.requests <- req:
		return nil
	case <-p.done:
		return fmt.Errorf("%w", ErrWorkerExited)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting new requests and waits for the worker to drain and
// exit. Subsequent Append/Flush calls return ErrChannelClosed.
func (p *Persister) Close() {
	p.closed.Store(true)
	close(p.requests)
	<-p.done
}
