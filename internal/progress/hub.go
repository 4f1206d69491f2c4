package progress

import (
	"context"
	"sync"
	"time"
)

// Hub keeps recent events in a bounded buffer and wakes waiters when new
// events arrive. It backs the SSE endpoint.
type Hub struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int
	buffer   []Event
	nextSeq  uint64
}

// NewHub constructs a hub holding at most capacity events.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 1024
	}
	h := &Hub{capacity: capacity}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// Publish implements Sink. It never fails.
func (h *Hub) Publish(_ context.Context, evt Event) error {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	h.nextSeq++
	evt.Sequence = h.nextSeq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if len(h.buffer) == h.capacity {
		copy(h.buffer, h.buffer[1:])
		h.buffer = h.buffer[:h.capacity-1]
	}
	h.buffer = append(h.buffer, evt)
	h.cond.Broadcast()
	h.mu.Unlock()
	return nil
}

// Query selects events from the hub.
type Query struct {
	// Since skips events with a sequence at or below it.
	Since uint64
	// JobID limits results to one job when set.
	JobID string
	Limit int
	// Wait blocks until a matching event arrives or the context ends.
	Wait bool
}

// Fetch returns matching events newer than q.Since and the sequence to pass
// as Since on the next call.
func (h *Hub) Fetch(ctx context.Context, q Query) ([]Event, uint64, error) {
	if h == nil {
		return nil, q.Since, nil
	}
	if q.Limit <= 0 || q.Limit > h.capacity {
		q.Limit = h.capacity
	}

	cancelWait := make(chan struct{})
	if q.Wait && ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				h.mu.Lock()
				h.cond.Broadcast()
				h.mu.Unlock()
			case <-cancelWait:
			}
		}()
	}
	defer close(cancelWait)

	h.mu.Lock()
	defer h.mu.Unlock()

	since := q.Since
	for {
		events, next := h.snapshotLocked(since, q)
		if len(events) > 0 || !q.Wait {
			return events, next, contextError(ctx)
		}
		// Nothing matched; skip what was scanned so the next wake only looks at new events.
		since = next
		if err := contextError(ctx); err != nil {
			return nil, next, err
		}
		h.cond.Wait()
		if err := contextError(ctx); err != nil {
			return nil, since, err
		}
	}
}

// Latest returns the newest buffered event for a job.
func (h *Hub) Latest(jobID string) (Event, bool) {
	if h == nil {
		return Event{}, false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.buffer) - 1; i >= 0; i-- {
		if h.buffer[i].JobID == jobID {
			return h.buffer[i], true
		}
	}
	return Event{}, false
}

func (h *Hub) snapshotLocked(since uint64, q Query) ([]Event, uint64) {
	var out []Event
	next := since
	for _, evt := range h.buffer {
		if evt.Sequence <= since {
			continue
		}
		next = evt.Sequence
		if q.JobID != "" && evt.JobID != q.JobID {
			continue
		}
		out = append(out, evt)
		if len(out) == q.Limit {
			return out, next
		}
	}
	if h.nextSeq > next {
		next = h.nextSeq
	}
	return out, next
}

func contextError(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
