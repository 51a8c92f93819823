package ledger

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ErrEmptySerial is returned when a candidate is empty after trimming. It is
// not user-actionable and callers discard it silently.
var ErrEmptySerial = errors.New("empty serial")

// DuplicateError reports a candidate whose trimmed value already has a record.
// Non-fatal: it is surfaced as a transient message and the collection is
// unchanged.
type DuplicateError struct {
	Serial string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate serial: %s", e.Serial)
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Ledger is the ordered, unique-by-value collection of accepted scans. It is
// the single source of truth the UI and exporter read; all mutation goes
// through Record, Remove and Clear. Serial uniqueness is case-sensitive on
// the whitespace-trimmed value.
type Ledger struct {
	mu         sync.Mutex
	records    []ScanRecord
	seen       map[string]struct{}
	nextID     int64
	timeSource TimeSource
}

// NewLedger creates an empty Ledger with the default time source.
func NewLedger() *Ledger {
	return NewLedgerWithTimeSource(&defaultTimeSource{})
}

// NewLedgerWithTimeSource creates an empty Ledger with a custom time source
// for testing.
func NewLedgerWithTimeSource(ts TimeSource) *Ledger {
	return &Ledger{
		seen:       make(map[string]struct{}),
		nextID:     1,
		timeSource: ts,
	}
}

// Record appends a new ScanRecord for the trimmed serial value. It returns
// ErrEmptySerial when nothing remains after trimming, and a *DuplicateError
// when an identical serial is already recorded; in both cases the collection
// is unchanged.
func (l *Ledger) Record(serial string) (*ScanRecord, error) {
	serial = strings.TrimSpace(serial)
	if serial == "" {
		return nil, ErrEmptySerial
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.seen[serial]; ok {
		return nil, &DuplicateError{Serial: serial}
	}

	rec := ScanRecord{
		ID:         l.nextID,
		Serial:     serial,
		CapturedAt: l.timeSource.Now(),
	}
	l.nextID++
	l.records = append(l.records, rec)
	l.seen[serial] = struct{}{}
	return &rec, nil
}

// Remove deletes the record with the given identifier. An absent identifier
// is a silent no-op. Remaining records keep their order and identifiers.
func (l *Ledger) Remove(id int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, rec := range l.records {
		if rec.ID == id {
			delete(l.seen, rec.Serial)
			l.records = append(l.records[:i], l.records[i+1:]...)
			return
		}
	}
}

// Clear empties the collection. Irreversible; any confirmation step belongs
// to the caller.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = nil
	l.seen = make(map[string]struct{})
}

// Records returns a snapshot of the collection in insertion order. An
// in-progress scan never partially appears: Record is the only write path and
// it appends one whole record at a time.
func (l *Ledger) Records() []ScanRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]ScanRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Len returns the number of records.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
