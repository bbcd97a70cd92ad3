// Package queue carries file-processing work items between the
// enqueuing trigger and the pipeline workers. The broker is treated as
// an opaque at-least-once channel: consumers must tolerate duplicate
// delivery, which the pipeline does through idempotent writes.
package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// WorkItem is one unit of requested file-processing work. Attempts
// counts pipeline-level requeues after transient failures; it is not
// related to the gateway client's own low-level retries.
type WorkItem struct {
	ID          uuid.UUID `json:"id"`
	Filename    string    `json:"filename"`
	Sheet       string    `json:"sheet,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
	Attempts    int       `json:"attempts,omitempty"`
}

func NewWorkItem(filename, sheet string) WorkItem {
	return WorkItem{
		ID:          uuid.New(),
		Filename:    filename,
		Sheet:       sheet,
		RequestedAt: time.Now().UTC(),
	}
}

// Queue is the broker abstraction. Dequeue blocks until an item is
// available or ctx is done.
type Queue interface {
	Enqueue(ctx context.Context, item WorkItem) error
	Dequeue(ctx context.Context) (WorkItem, error)
}
