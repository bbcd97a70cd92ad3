package etl

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sharebridge/internal/gateway"
	"sharebridge/internal/queue"
)

func TestBuildRowsKeysAndOrdinals(t *testing.T) {
	item := queue.NewWorkItem("orders.xlsx", "Orders")
	payload := &gateway.StructuredRows{
		Columns: []string{"id", "amount"},
		Data: []map[string]any{
			{"id": float64(1), "amount": 10.0},
			{"id": float64(2), "amount": 20.0},
		},
		Sheet: "Orders",
	}

	rows, skipped := buildRows(item, payload, nil)

	assert.Equal(t, 0, skipped)
	require.Len(t, rows, 2)
	for i, row := range rows {
		assert.Equal(t, fmt.Sprintf("%s/Orders/%d", item.ID, i), row.IdempotencyKey)
		assert.Equal(t, item.ID, row.WorkItemID)
		assert.Equal(t, "orders.xlsx", row.SourceFile)
		assert.Equal(t, "Orders", row.Sheet)
		assert.Equal(t, i, row.Ordinal)
	}
}

func TestBuildRowsOrdinalsStableAcrossSkips(t *testing.T) {
	// Skipped rows must not shift the ordinals of later rows, otherwise
	// a redelivery after a schema fix would duplicate data under new keys.
	item := queue.NewWorkItem("orders.xlsx", "Orders")
	payload := &gateway.StructuredRows{
		Columns: []string{"id"},
		Data: []map[string]any{
			{"id": float64(1)},
			{"id": nil},
			{"id": float64(3)},
		},
		Sheet: "Orders",
	}

	rows, skipped := buildRows(item, payload, []string{"id"})

	assert.Equal(t, 1, skipped)
	require.Len(t, rows, 2)
	assert.Equal(t, 0, rows[0].Ordinal)
	assert.Equal(t, 2, rows[1].Ordinal)
}

func TestBuildRowsMissingColumnCountsAsInvalid(t *testing.T) {
	item := queue.NewWorkItem("orders.xlsx", "Orders")
	payload := &gateway.StructuredRows{
		Columns: []string{"id"},
		Data:    []map[string]any{{"other": "x"}},
		Sheet:   "Orders",
	}

	rows, skipped := buildRows(item, payload, []string{"id"})

	assert.Empty(t, rows)
	assert.Equal(t, 1, skipped)
}

func TestWriteRowsIdempotent(t *testing.T) {
	// Contract check against the reference in-memory sink: writing the
	// same keys twice must leave the same final row set. The postgres
	// sink gets the same behavior from ON CONFLICT DO NOTHING.
	item := queue.NewWorkItem("orders.xlsx", "Orders")
	rows, _ := buildRows(item, ordersPayload("Orders"), nil)

	sink := newMemSink()
	first, err := sink.WriteRows(context.Background(), rows)
	require.NoError(t, err)
	second, err := sink.WriteRows(context.Background(), rows)
	require.NoError(t, err)

	assert.Equal(t, int64(2), first)
	assert.Equal(t, int64(0), second)
	assert.Equal(t, 2, sink.rowCount())
}
