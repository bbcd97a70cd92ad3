// Package etl is the task pipeline: it consumes work items from the
// queue, fetches files through the gateway client, normalizes the rows
// and persists them through an idempotent sink. Work items move
// Pending -> InProgress -> {Succeeded, Failed} and never regress; the
// InProgress marking is advisory and local, the authoritative delivery
// guarantee belongs to the broker.
package etl

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"sharebridge/internal/fault"
	"sharebridge/internal/gateway"
	"sharebridge/internal/queue"
)

// SheetPolicy decides what happens when a work item names no sheet and
// the file has several.
type SheetPolicy string

const (
	// SheetAll processes every sheet, one Result per sheet under the
	// same work item id.
	SheetAll SheetPolicy = "all"
	// SheetFirst processes only the file's first sheet.
	SheetFirst SheetPolicy = "first"
)

// GatewayClient is the slice of the gateway client the pipeline needs.
type GatewayClient interface {
	ReadStructured(ctx context.Context, filename, sheet string, maxRows int) (*gateway.StructuredRows, error)
	ListSheets(ctx context.Context, filename string) ([]gateway.TableSheet, error)
}

type Config struct {
	Workers         int
	MaxRequeue      int
	SheetPolicy     SheetPolicy
	RequiredColumns []string
}

type Pipeline struct {
	queue    queue.Queue
	gw       GatewayClient
	sink     Sink
	cfg      Config
	finished sync.Map // work item ids that reached a terminal state
	wg       sync.WaitGroup
}

func New(q queue.Queue, gw GatewayClient, sink Sink, cfg Config) *Pipeline {
	if cfg.Workers < 1 {
		cfg.Workers = 4
	}
	if cfg.MaxRequeue < 0 {
		cfg.MaxRequeue = 0
	}
	if cfg.SheetPolicy == "" {
		cfg.SheetPolicy = SheetAll
	}
	return &Pipeline{queue: q, gw: gw, sink: sink, cfg: cfg}
}

// Run starts the worker pool and blocks until ctx is canceled and all
// workers have drained.
func (p *Pipeline) Run(ctx context.Context) {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.worker(ctx, id)
		}(i)
	}
	p.wg.Wait()
}

func (p *Pipeline) worker(ctx context.Context, id int) {
	for {
		item, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrQueueClosed) {
				return
			}
			slog.Error("dequeue failed", "worker", id, "err", err)
			continue
		}
		p.Process(ctx, item)
	}
}

// Process runs one work item to completion. Exported so a single item
// can be driven synchronously, e.g. from tests or a one-shot CLI.
func (p *Pipeline) Process(ctx context.Context, item queue.WorkItem) []Result {
	if _, done := p.finished.Load(item.ID); done {
		slog.Info("skipping duplicate delivery", "work_item", item.ID, "file", item.Filename)
		return nil
	}
	slog.Info("work item in progress", "work_item", item.ID, "file", item.Filename, "attempt", item.Attempts)

	ref := workRef{id: item.ID, filename: item.Filename}

	sheets, err := p.resolveSheets(ctx, item)
	if err != nil {
		if p.requeueTransient(ctx, item, "", err) {
			return nil
		}
		res := failedResult(ref, item.Sheet, err)
		p.record(ctx, res)
		p.finished.Store(item.ID, struct{}{})
		return []Result{res}
	}

	results := make([]Result, 0, len(sheets))
	for _, sheet := range sheets {
		res, requeued := p.processSheet(ctx, item, ref, sheet)
		if requeued {
			// The whole item goes back on the queue; results recorded so
			// far stand, their rows are idempotent on redelivery.
			return results
		}
		results = append(results, res)
		p.record(ctx, res)
	}

	p.finished.Store(item.ID, struct{}{})
	return results
}

// resolveSheets decides which sheets to process. An explicit sheet on
// the work item always wins; otherwise the policy applies.
func (p *Pipeline) resolveSheets(ctx context.Context, item queue.WorkItem) ([]string, error) {
	if item.Sheet != "" {
		return []string{item.Sheet}, nil
	}
	if p.cfg.SheetPolicy == SheetFirst {
		// Empty sheet name lets the file server pick the first one.
		return []string{""}, nil
	}

	sheets, err := p.gw.ListSheets(ctx, item.Filename)
	if err != nil {
		return nil, err
	}
	if len(sheets) == 0 {
		return []string{""}, nil
	}
	names := make([]string, len(sheets))
	for i, s := range sheets {
		names[i] = s.Name
	}
	return names, nil
}

func (p *Pipeline) processSheet(ctx context.Context, item queue.WorkItem, ref workRef, sheet string) (Result, bool) {
	payload, err := p.gw.ReadStructured(ctx, item.Filename, sheet, 0)
	if err != nil {
		if p.requeueTransient(ctx, item, sheet, err) {
			return Result{}, true
		}
		return failedResult(ref, sheet, err), false
	}

	rows, skipped := buildRows(item, payload, p.cfg.RequiredColumns)

	written, err := p.sink.WriteRows(ctx, rows)
	if err != nil {
		res := failedResult(ref, payload.Sheet, err)
		res.RowsSkipped = skipped
		return res, false
	}

	slog.Info("sheet processed",
		"work_item", item.ID,
		"file", item.Filename,
		"sheet", payload.Sheet,
		"rows_written", written,
		"rows_skipped", skipped,
	)
	return Result{
		WorkItemID:  item.ID,
		SourceFile:  item.Filename,
		Sheet:       payload.Sheet,
		Status:      StatusSucceeded,
		RowsWritten: written,
		RowsSkipped: skipped,
		ProcessedAt: time.Now().UTC(),
	}, false
}

// requeueTransient puts the item back on the queue when the error is
// transient and the requeue budget allows. Returns true if requeued.
func (p *Pipeline) requeueTransient(ctx context.Context, item queue.WorkItem, sheet string, err error) bool {
	if fault.KindOf(err) != fault.Access {
		return false
	}
	if item.Attempts >= p.cfg.MaxRequeue {
		slog.Error("requeue budget exhausted", "work_item", item.ID, "file", item.Filename, "attempts", item.Attempts, "err", err)
		return false
	}

	item.Attempts++
	if qerr := p.queue.Enqueue(ctx, item); qerr != nil {
		slog.Error("requeue failed", "work_item", item.ID, "err", qerr)
		return false
	}
	slog.Warn("work item requeued after transient failure",
		"work_item", item.ID,
		"file", item.Filename,
		"sheet", sheet,
		"attempt", item.Attempts,
		"err", err,
	)
	return true
}

func (p *Pipeline) record(ctx context.Context, res Result) {
	if err := p.sink.RecordResult(ctx, res); err != nil {
		// Never silently dropped: the result still lands in the log with
		// full kind and message.
		slog.Error("failed to record processing result",
			"work_item", res.WorkItemID,
			"sheet", res.Sheet,
			"status", res.Status,
			"rows_written", res.RowsWritten,
			"err", err,
		)
	}
}
