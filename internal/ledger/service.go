package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Vuyo-dev28/barcodeScannerExcel/internal/decoding"
	"github.com/Vuyo-dev28/barcodeScannerExcel/internal/scanning"
)

// maxMessages bounds the transient message queue; the UI drains it on a short
// poll, so anything older is stale anyway.
const maxMessages = 20

// Message is a transient, user-visible notice (duplicate rejection, decode
// failure). Messages are auto-dismissed client-side and never fatal.
type Message struct {
	Kind string    `json:"kind"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Service wires the keystroke classifier, the camera decoder, the ledger and
// the exporter together. The classifier feeds accepted candidates into the
// ledger through the service, which owns duplicate reporting.
type Service struct {
	classifier *scanning.Classifier
	ledger     *Ledger
	decoder    decoding.Decoder // nil when camera decoding is disabled
	storage    Storage
	layout     Layout
	timeSource TimeSource

	msgMu    sync.Mutex
	messages []Message
}

// NewService creates a new Service with the default time source. The decoder
// may be nil; the keyboard path works without one.
func NewService(cfg scanning.Config, decoder decoding.Decoder, storage Storage, layout Layout) *Service {
	return NewServiceWithDeps(cfg, decoder, storage, layout, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with a custom time source for
// testing.
func NewServiceWithDeps(cfg scanning.Config, decoder decoding.Decoder, storage Storage, layout Layout, timeSource TimeSource) *Service {
	s := &Service{
		ledger:     NewLedgerWithTimeSource(timeSource),
		decoder:    decoder,
		storage:    storage,
		layout:     layout,
		timeSource: timeSource,
	}
	s.classifier = scanning.NewClassifier(cfg, s.acceptCandidate)
	return s
}

// acceptCandidate is the classifier sink: every completed scan candidate,
// keyboard or camera, lands here.
func (s *Service) acceptCandidate(serial string) {
	rec, err := s.ledger.Record(serial)
	if err != nil {
		var dup *DuplicateError
		switch {
		case errors.As(err, &dup):
			slog.Warn("Duplicate scan rejected", "serial", dup.Serial)
			s.pushMessage("duplicate", fmt.Sprintf("Already scanned: %s", dup.Serial))
		case errors.Is(err, ErrEmptySerial):
			// Not user-actionable, dropped silently.
		default:
			slog.Error("Recording scan failed", "serial", serial, "error", err)
		}
		return
	}
	slog.Info("Recorded scan", "id", rec.ID, "serial", rec.Serial)
}

// HandleKey forwards one raw key event to the classifier.
func (s *Service) HandleKey(ev scanning.KeyEvent) {
	s.classifier.HandleKey(ev)
}

// SubmitImage runs the camera path: decode the image and treat the result as
// a one-shot completed candidate, subject to the same ledger rules. Decode
// failures are reported as transient messages and returned; they never halt
// the session.
func (s *Service) SubmitImage(imageData []byte, contentType string) (*ScanRecord, error) {
	if s.decoder == nil {
		return nil, fmt.Errorf("camera decoding is disabled")
	}

	serial, err := s.decoder.DecodeImage(imageData, contentType)
	if err != nil {
		slog.Error("Failed to decode image",
			"content_type", contentType,
			"image_size", len(imageData),
			"error", err,
		)
		s.pushMessage("decode-error", "Could not read a barcode from the image")
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	rec, err := s.ledger.Record(serial)
	if err != nil {
		var dup *DuplicateError
		if errors.As(err, &dup) {
			s.pushMessage("duplicate", fmt.Sprintf("Already scanned: %s", dup.Serial))
			return nil, err
		}
		if errors.Is(err, ErrEmptySerial) {
			// The decoder produced only whitespace; same as no barcode.
			return nil, decoding.ErrNoBarcode
		}
		return nil, err
	}

	slog.Info("Recorded camera scan", "id", rec.ID, "serial", rec.Serial)
	return rec, nil
}

// StartSession enables the keystroke classifier.
func (s *Service) StartSession() {
	s.classifier.Enable()
	slog.Info("Session started")
}

// StopSession disables the classifier, discarding any in-flight partial scan.
func (s *Service) StopSession() {
	s.classifier.Disable()
	slog.Info("Session stopped")
}

// ToggleSession flips the session state and returns the new state.
func (s *Service) ToggleSession() bool {
	enabled := s.classifier.Toggle()
	slog.Info("Session toggled", "enabled", enabled)
	return enabled
}

// SessionEnabled reports whether the classifier is accepting events.
func (s *Service) SessionEnabled() bool {
	return s.classifier.Enabled()
}

// Records returns a snapshot of the ledger in insertion order.
func (s *Service) Records() []ScanRecord {
	return s.ledger.Records()
}

// Remove deletes one record by identifier; absent identifiers are a no-op.
func (s *Service) Remove(id int64) {
	s.ledger.Remove(id)
}

// Clear empties the ledger. The confirmation step belongs to the caller.
func (s *Service) Clear() {
	s.ledger.Clear()
	slog.Info("Ledger cleared")
}

// Export renders the current ledger snapshot into the dated XLSX artifact and
// saves it through storage, returning the filename. An empty ledger returns
// ErrNoRecords without touching storage.
func (s *Service) Export() (string, error) {
	records := s.ledger.Records()

	f, err := BuildWorkbook(records, s.layout)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		return "", fmt.Errorf("rendering workbook: %w", err)
	}

	filename := ExportFilename(s.timeSource.Now())
	if _, err := s.storage.Save(filename, buf.Bytes()); err != nil {
		return "", fmt.Errorf("saving export: %w", err)
	}

	slog.Info("Exported scans", "filename", filename, "records", len(records))
	return filename, nil
}

// ExportFile retrieves a previously written export artifact.
func (s *Service) ExportFile(filename string) ([]byte, error) {
	return s.storage.Get(filename)
}

// Messages drains the transient message queue.
func (s *Service) Messages() []Message {
	s.msgMu.Lock()
	defer s.msgMu.Unlock()
	out := s.messages
	s.messages = nil
	return out
}

func (s *Service) pushMessage(kind, text string) {
	s.msgMu.Lock()
	defer s.msgMu.Unlock()
	s.messages = append(s.messages, Message{Kind: kind, Text: text, At: s.timeSource.Now()})
	if len(s.messages) > maxMessages {
		s.messages = s.messages[len(s.messages)-maxMessages:]
	}
}

// Close tears down the classifier's outstanding timer.
func (s *Service) Close() {
	s.classifier.Close()
}
