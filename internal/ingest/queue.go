// Package ingest moves telemetry from the broker into the twin. Broker
// callbacks never block: records go through a bounded queue that discards
// the oldest reading when the consumer falls behind.
package ingest

import (
	"sync"
	"sync/atomic"

	"github.com/signalsfoundry/flight-twin/model"
)

// DropRecorder counts telemetry discarded under backpressure.
type DropRecorder interface {
	IncDroppedTelemetry()
}

// Queue is a bounded FIFO of telemetry records. When full, Push evicts the
// oldest record to make room.
type Queue struct {
	mu      sync.Mutex
	ch      chan model.TelemetryRecord
	closed  bool
	dropped atomic.Uint64
	rec     DropRecorder
}

// NewQueue returns a queue holding at most size records. rec may be nil.
func NewQueue(size int, rec DropRecorder) *Queue {
	if size < 1 {
		size = 1
	}
	return &Queue{ch: make(chan model.TelemetryRecord, size), rec: rec}
}

// Push enqueues r without blocking. It reports false once the queue is
// closed.
func (q *Queue) Push(r model.TelemetryRecord) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	select {
	case q.ch <- r:
		return true
	default:
	}
	// Full. Only Push sends, and it holds mu, so after evicting one record
	// the send below cannot block.
	select {
	case <-q.ch:
		q.dropped.Add(1)
		if q.rec != nil {
			q.rec.IncDroppedTelemetry()
		}
	default:
	}
	q.ch <- r
	return true
}

// C is the consumer side. It is closed by Close after buffered records are
// drained.
func (q *Queue) C() <-chan model.TelemetryRecord { return q.ch }

// Len returns the number of buffered records.
func (q *Queue) Len() int { return len(q.ch) }

// Dropped returns how many records were evicted.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }

// Close stops accepting records. It is safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}
