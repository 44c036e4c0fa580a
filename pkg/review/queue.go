package review

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"mercator-hq/aegis/pkg/governance"
)

// DefaultQueueCapacity bounds MemoryQueue when no capacity is given.
const DefaultQueueCapacity = 1000

// Review outcomes a reviewer may record.
const (
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// ErrFlagNotFound is returned when resolving an unknown flag.
var ErrFlagNotFound = errors.New("review flag not found")

// MemoryQueue keeps review flags in arrival order. When full, the oldest
// resolved flag is evicted first, then the oldest pending one.
type MemoryQueue struct {
	mu       sync.RWMutex
	flags    []governance.ReviewFlag
	capacity int
}

// NewMemoryQueue creates a queue holding at most capacity flags.
func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &MemoryQueue{capacity: capacity}
}

// Emit implements Emitter.
func (q *MemoryQueue) Emit(ctx context.Context, flag governance.ReviewFlag) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.flags) >= q.capacity {
		q.evict()
	}
	q.flags = append(q.flags, flag)
	return nil
}

func (q *MemoryQueue) evict() {
	for i, f := range q.flags {
		if f.Status != governance.ReviewStatusPending {
			q.flags = append(q.flags[:i], q.flags[i+1:]...)
			return
		}
	}
	q.flags = q.flags[1:]
}

// Pending returns up to limit pending flags, high priority first and oldest
// first within a priority. limit <= 0 returns all.
func (q *MemoryQueue) Pending(limit int) []governance.ReviewFlag {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := []governance.ReviewFlag{}
	for _, p := range []governance.Priority{governance.PriorityHigh, governance.PriorityMedium} {
		for _, f := range q.flags {
			if f.Status == governance.ReviewStatusPending && f.Priority == p {
				out = append(out, f)
			}
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Resolve records a reviewer's outcome for a flag.
func (q *MemoryQueue) Resolve(id, status string) (governance.ReviewFlag, error) {
	if status != StatusApproved && status != StatusRejected {
		return governance.ReviewFlag{}, governance.NewValidationError("status", fmt.Sprintf("unsupported review status %q", status))
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.flags {
		if q.flags[i].ID == id {
			q.flags[i].Status = status
			return q.flags[i], nil
		}
	}
	return governance.ReviewFlag{}, ErrFlagNotFound
}

// Len returns the number of flags held, pending or resolved.
func (q *MemoryQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.flags)
}
