package ledger

import "time"

// ScanRecord is one accepted serial number. Immutable once created: records
// are only ever appended by a successful flush through the ledger, and only
// removed by explicit per-item removal or a bulk clear.
type ScanRecord struct {
	ID         int64     `json:"id"`
	Serial     string    `json:"serial"`
	CapturedAt time.Time `json:"captured_at"`
}
