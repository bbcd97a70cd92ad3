package etl

import (
	"context"
	"time"

	"github.com/google/uuid"

	"sharebridge/internal/fault"
)

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Row is one normalized record headed for the relational store. The
// idempotency key is derived from (work item, sheet, source ordinal) so
// a redelivered work item rewrites the same keys instead of duplicating
// rows.
type Row struct {
	IdempotencyKey string
	WorkItemID     uuid.UUID
	SourceFile     string
	Sheet          string
	Ordinal        int
	Payload        map[string]any
}

// Result is the terminal record of processing one sheet of one work
// item. Never mutated after creation.
type Result struct {
	WorkItemID   uuid.UUID
	SourceFile   string
	Sheet        string
	Status       Status
	RowsWritten  int64
	RowsSkipped  int
	ErrorKind    fault.Kind
	ErrorMessage string
	ProcessedAt  time.Time
}

// Sink persists normalized rows and processing results. Implementations
// must make WriteRows idempotent on Row.IdempotencyKey and be safe for
// concurrent use.
type Sink interface {
	WriteRows(ctx context.Context, rows []Row) (int64, error)
	RecordResult(ctx context.Context, res Result) error
}

func failedResult(item workRef, sheet string, err error) Result {
	return Result{
		WorkItemID:   item.id,
		SourceFile:   item.filename,
		Sheet:        sheet,
		Status:       StatusFailed,
		ErrorKind:    fault.KindOf(err),
		ErrorMessage: err.Error(),
		ProcessedAt:  time.Now().UTC(),
	}
}

type workRef struct {
	id       uuid.UUID
	filename string
}
