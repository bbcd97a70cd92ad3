package etl

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sharebridge/internal/fault"
	"sharebridge/internal/gateway"
	"sharebridge/internal/queue"
)

type fakeGateway struct {
	mu         sync.Mutex
	readFn     func(filename, sheet string) (*gateway.StructuredRows, error)
	sheetsFn   func(filename string) ([]gateway.TableSheet, error)
	readCalls  int
	readSheets []string
}

func (g *fakeGateway) ReadStructured(ctx context.Context, filename, sheet string, maxRows int) (*gateway.StructuredRows, error) {
	g.mu.Lock()
	g.readCalls++
	g.readSheets = append(g.readSheets, sheet)
	g.mu.Unlock()
	return g.readFn(filename, sheet)
}

func (g *fakeGateway) ListSheets(ctx context.Context, filename string) ([]gateway.TableSheet, error) {
	if g.sheetsFn == nil {
		return nil, nil
	}
	return g.sheetsFn(filename)
}

type memSink struct {
	mu      sync.Mutex
	rows    map[string]Row
	results []Result
}

func newMemSink() *memSink {
	return &memSink{rows: map[string]Row{}}
}

func (s *memSink) WriteRows(ctx context.Context, rows []Row) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var written int64
	for _, row := range rows {
		if _, exists := s.rows[row.IdempotencyKey]; exists {
			continue
		}
		s.rows[row.IdempotencyKey] = row
		written++
	}
	return written, nil
}

func (s *memSink) RecordResult(ctx context.Context, res Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, res)
	return nil
}

func (s *memSink) rowCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func ordersPayload(sheet string) *gateway.StructuredRows {
	if sheet == "" {
		sheet = "Orders"
	}
	return &gateway.StructuredRows{
		Columns: []string{"id", "amount"},
		Data: []map[string]any{
			{"id": float64(1), "amount": 10.5},
			{"id": float64(2), "amount": 20.0},
		},
		Shape: [2]int{2, 2},
		Sheet: sheet,
	}
}

func TestProcessSuccess(t *testing.T) {
	gw := &fakeGateway{readFn: func(filename, sheet string) (*gateway.StructuredRows, error) {
		return ordersPayload(sheet), nil
	}}
	sink := newMemSink()
	p := New(queue.NewMemQueue(1), gw, sink, Config{SheetPolicy: SheetFirst})

	item := queue.NewWorkItem("orders.xlsx", "")
	results := p.Process(context.Background(), item)

	require.Len(t, results, 1)
	assert.Equal(t, StatusSucceeded, results[0].Status)
	assert.Equal(t, int64(2), results[0].RowsWritten)
	assert.Equal(t, item.ID, results[0].WorkItemID)
	assert.Equal(t, 2, sink.rowCount())
	require.Len(t, sink.results, 1)
}

func TestProcessNotFoundIsTerminal(t *testing.T) {
	q := queue.NewMemQueue(1)
	gw := &fakeGateway{readFn: func(filename, sheet string) (*gateway.StructuredRows, error) {
		return nil, fault.Newf(fault.NotFound, "file %s not found", filename)
	}}
	sink := newMemSink()
	p := New(q, gw, sink, Config{SheetPolicy: SheetFirst, MaxRequeue: 2})

	results := p.Process(context.Background(), queue.NewWorkItem("missing.xlsx", ""))

	require.Len(t, results, 1)
	assert.Equal(t, StatusFailed, results[0].Status)
	assert.Equal(t, fault.NotFound, results[0].ErrorKind)
	assert.NotEmpty(t, results[0].ErrorMessage)
	assert.Equal(t, int64(0), results[0].RowsWritten)
	assert.Equal(t, 0, sink.rowCount())

	// Terminal failures never go back on the queue.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := q.Dequeue(ctx)
	assert.Error(t, err)
}

func TestProcessSkipsInvalidRows(t *testing.T) {
	gw := &fakeGateway{readFn: func(filename, sheet string) (*gateway.StructuredRows, error) {
		return &gateway.StructuredRows{
			Columns: []string{"id", "amount"},
			Data: []map[string]any{
				{"id": float64(1), "amount": 10.0},
				{"id": nil, "amount": 5.0},
				{"id": float64(3), "amount": 7.0},
			},
			Sheet: "Orders",
		}, nil
	}}
	sink := newMemSink()
	p := New(queue.NewMemQueue(1), gw, sink, Config{
		SheetPolicy:     SheetFirst,
		RequiredColumns: []string{"id"},
	})

	results := p.Process(context.Background(), queue.NewWorkItem("orders.xlsx", ""))

	require.Len(t, results, 1)
	assert.Equal(t, StatusSucceeded, results[0].Status)
	assert.Equal(t, int64(2), results[0].RowsWritten)
	assert.Equal(t, 1, results[0].RowsSkipped)
}

func TestRedeliveryWritesNoDuplicates(t *testing.T) {
	gw := &fakeGateway{readFn: func(filename, sheet string) (*gateway.StructuredRows, error) {
		return ordersPayload(sheet), nil
	}}
	sink := newMemSink()
	item := queue.NewWorkItem("orders.xlsx", "Orders")

	// Two separate pipeline instances simulate redelivery to a different
	// worker process, where the in-memory dedup set cannot help and only
	// the sink's idempotency keys protect against duplicates.
	for i := 0; i < 2; i++ {
		p := New(queue.NewMemQueue(1), gw, sink, Config{})
		results := p.Process(context.Background(), item)
		require.Len(t, results, 1)
		assert.Equal(t, StatusSucceeded, results[0].Status)
	}

	assert.Equal(t, 2, sink.rowCount())
}

func TestDuplicateDeliverySameWorkerIsSkipped(t *testing.T) {
	gw := &fakeGateway{readFn: func(filename, sheet string) (*gateway.StructuredRows, error) {
		return ordersPayload(sheet), nil
	}}
	sink := newMemSink()
	p := New(queue.NewMemQueue(1), gw, sink, Config{})
	item := queue.NewWorkItem("orders.xlsx", "Orders")

	first := p.Process(context.Background(), item)
	second := p.Process(context.Background(), item)

	require.Len(t, first, 1)
	assert.Nil(t, second)
	assert.Equal(t, 2, sink.rowCount())
	assert.Len(t, sink.results, 1)
}

func TestTransientAccessErrorRequeuesUpToBound(t *testing.T) {
	q := queue.NewMemQueue(8)
	gw := &fakeGateway{readFn: func(filename, sheet string) (*gateway.StructuredRows, error) {
		return nil, fault.New(fault.Access, "share unmounted")
	}}
	sink := newMemSink()
	p := New(q, gw, sink, Config{SheetPolicy: SheetFirst, MaxRequeue: 2})

	require.NoError(t, q.Enqueue(context.Background(), queue.NewWorkItem("orders.xlsx", "")))

	var results []Result
	for i := 0; i < 4 && len(results) == 0; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		item, err := q.Dequeue(ctx)
		cancel()
		require.NoError(t, err)
		results = p.Process(context.Background(), item)
	}

	// Initial delivery plus two requeues, then terminal failure.
	assert.Equal(t, 3, gw.readCalls)
	require.Len(t, results, 1)
	assert.Equal(t, StatusFailed, results[0].Status)
	assert.Equal(t, fault.Access, results[0].ErrorKind)
}

func TestAllSheetsPolicy(t *testing.T) {
	gw := &fakeGateway{
		readFn: func(filename, sheet string) (*gateway.StructuredRows, error) {
			return &gateway.StructuredRows{
				Columns: []string{"id"},
				Data:    []map[string]any{{"id": float64(1)}},
				Sheet:   sheet,
			}, nil
		},
		sheetsFn: func(filename string) ([]gateway.TableSheet, error) {
			return []gateway.TableSheet{
				{Name: "First", RowCount: 1},
				{Name: "Second", RowCount: 1},
			}, nil
		},
	}
	sink := newMemSink()
	p := New(queue.NewMemQueue(1), gw, sink, Config{SheetPolicy: SheetAll})

	item := queue.NewWorkItem("multi.xlsx", "")
	results := p.Process(context.Background(), item)

	require.Len(t, results, 2)
	for _, res := range results {
		assert.Equal(t, StatusSucceeded, res.Status)
		assert.Equal(t, item.ID, res.WorkItemID)
	}
	assert.ElementsMatch(t, []string{"First", "Second"}, gw.readSheets)
	assert.Equal(t, 2, sink.rowCount())
}

func TestExplicitSheetSkipsEnumeration(t *testing.T) {
	gw := &fakeGateway{
		readFn: func(filename, sheet string) (*gateway.StructuredRows, error) {
			return ordersPayload(sheet), nil
		},
		sheetsFn: func(filename string) ([]gateway.TableSheet, error) {
			t.Fatal("ListSheets must not be called when the work item names a sheet")
			return nil, nil
		},
	}
	sink := newMemSink()
	p := New(queue.NewMemQueue(1), gw, sink, Config{SheetPolicy: SheetAll})

	results := p.Process(context.Background(), queue.NewWorkItem("orders.xlsx", "Orders"))

	require.Len(t, results, 1)
	assert.Equal(t, []string{"Orders"}, gw.readSheets)
}

func TestRunDrainsQueueConcurrently(t *testing.T) {
	q := queue.NewMemQueue(16)
	gw := &fakeGateway{readFn: func(filename, sheet string) (*gateway.StructuredRows, error) {
		return ordersPayload(sheet), nil
	}}
	sink := newMemSink()
	p := New(q, gw, sink, Config{Workers: 3, SheetPolicy: SheetFirst})

	for i := 0; i < 5; i++ {
		item := queue.NewWorkItem("orders.xlsx", "Orders")
		require.NoError(t, q.Enqueue(context.Background(), item))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.results) == 5
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not drain after cancel")
	}
}
