package http

import (
	"bytes"
	"encoding/json"

	"fintrack/internal/api"
)

// bulkBody decodes either {"transactions": [...]} or a bare JSON array.
type bulkBody struct {
	Transactions []api.Transaction
}

func (b *bulkBody) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(trimmed, &b.Transactions)
	}
	var req api.BulkRequest
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return err
	}
	b.Transactions = req.Transactions
	return nil
}
