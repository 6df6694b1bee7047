package store

import (
	"sync"
	"time"

	"github.com/modelwatch/modelwatch/internal/models"
)

// ringBuffer is a fixed-capacity circular buffer of metric points.
type ringBuffer struct {
	mu       sync.Mutex
	data     []models.MetricPoint
	head     int
	size     int
	capacity int
	ordered  bool // pushes arrived in non-decreasing timestamp order
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{
		data:     make([]models.MetricPoint, capacity),
		capacity: capacity,
		ordered:  true,
	}
}

func (rb *ringBuffer) push(p models.MetricPoint) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.size > 0 {
		newest := rb.data[(rb.head+rb.size-1)%rb.capacity]
		if p.Timestamp.Before(newest.Timestamp) {
			rb.ordered = false
		}
	}
	idx := (rb.head + rb.size) % rb.capacity
	rb.data[idx] = p
	if rb.size < rb.capacity {
		rb.size++
	} else {
		rb.head = (rb.head + 1) % rb.capacity
	}
}

// invalidate permanently bars the buffer from answering range reads;
// pushes still record points so the buffer never claims coverage it
// does not have.
func (rb *ringBuffer) invalidate() {
	rb.mu.Lock()
	rb.ordered = false
	rb.mu.Unlock()
}

// rangeCovered returns the points within [since, until] when the buffer
// provably contains the whole range. The buffer only holds points pushed
// by this process, so the lower bound must be explicit and sit at or
// after the oldest retained point; anything else defers to the
// persistent store.
func (rb *ringBuffer) rangeCovered(since, until time.Time) ([]models.MetricPoint, bool) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.size == 0 || !rb.ordered || since.IsZero() {
		return nil, false
	}
	if since.Before(rb.data[rb.head].Timestamp) {
		return nil, false
	}

	var out []models.MetricPoint
	for i := 0; i < rb.size; i++ {
		p := rb.data[(rb.head+i)%rb.capacity]
		if !since.IsZero() && p.Timestamp.Before(since) {
			continue
		}
		if !until.IsZero() && p.Timestamp.After(until) {
			break
		}
		out = append(out, p)
	}
	return out, true
}
