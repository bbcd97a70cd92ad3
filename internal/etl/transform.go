package etl

import (
	"fmt"

	"sharebridge/internal/gateway"
	"sharebridge/internal/queue"
)

// buildRows normalizes a structured payload into sink rows. Rows missing
// a required column are skipped and counted, never fatal to the batch.
// The ordinal in the idempotency key is the row's position in the source
// sheet, so skipping does not shift the keys of later rows.
func buildRows(item queue.WorkItem, payload *gateway.StructuredRows, required []string) ([]Row, int) {
	rows := make([]Row, 0, len(payload.Data))
	skipped := 0

	for ordinal, record := range payload.Data {
		if !hasRequired(record, required) {
			skipped++
			continue
		}
		rows = append(rows, Row{
			IdempotencyKey: idempotencyKey(item, payload.Sheet, ordinal),
			WorkItemID:     item.ID,
			SourceFile:     item.Filename,
			Sheet:          payload.Sheet,
			Ordinal:        ordinal,
			Payload:        record,
		})
	}
	return rows, skipped
}

func hasRequired(record map[string]any, required []string) bool {
	for _, col := range required {
		v, ok := record[col]
		if !ok || v == nil {
			return false
		}
	}
	return true
}

func idempotencyKey(item queue.WorkItem, sheet string, ordinal int) string {
	return fmt.Sprintf("%s/%s/%d", item.ID, sheet, ordinal)
}
