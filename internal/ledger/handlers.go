package ledger

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Vuyo-dev28/barcodeScannerExcel/internal/decoding"
	"github.com/Vuyo-dev28/barcodeScannerExcel/internal/scanning"
)

// maxImageSize bounds camera uploads (high-resolution phone photos).
const maxImageSize = int64(50 << 20) // 50MB

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleIndex serves the HTML interface
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// keyEventPayload is one raw keyboard event as posted by the page's keydown
// listener. Timestamp is milliseconds since the Unix epoch, taken on the
// client so network jitter cannot distort inter-character gaps.
type keyEventPayload struct {
	Char       string `json:"char"`
	Terminator bool   `json:"terminator"`
	Alt        bool   `json:"alt"`
	Ctrl       bool   `json:"ctrl"`
	Meta       bool   `json:"meta"`
	Timestamp  int64  `json:"timestamp"`
}

func (p keyEventPayload) toEvent() (scanning.KeyEvent, bool) {
	var ts time.Time
	if p.Timestamp > 0 {
		ts = time.UnixMilli(p.Timestamp)
	}
	if p.Terminator {
		return scanning.NewTerminatorEvent(ts), true
	}
	chars := []rune(p.Char)
	if len(chars) != 1 {
		// Named keys ("Shift", "ArrowLeft", ...) carry no scan data.
		return scanning.KeyEvent{}, false
	}
	ev := scanning.NewKeyEvent(chars[0], ts)
	if p.Alt {
		ev.Modifiers |= scanning.ModAlt
	}
	if p.Ctrl {
		ev.Modifiers |= scanning.ModControl
	}
	if p.Meta {
		ev.Modifiers |= scanning.ModMeta
	}
	return ev, true
}

// handleKeyEvents consumes a batch of raw key events. The client batches
// bursts so ordering is preserved across the wire.
func (s *Server) handleKeyEvents(w http.ResponseWriter, r *http.Request) {
	var payloads []keyEventPayload
	if err := json.NewDecoder(r.Body).Decode(&payloads); err != nil {
		corsError(w, "Invalid event batch", http.StatusBadRequest)
		return
	}

	for _, p := range payloads {
		ev, ok := p.toEvent()
		if !ok {
			continue
		}
		s.service.HandleKey(ev)
	}

	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": len(payloads)})
}

// handleDecodeImage handles a camera image upload
func (s *Server) handleDecodeImage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxImageSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		if err.Error() == "http: request body too large" {
			errorMsg = "Image is too large. Maximum size is 50MB."
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": errorMsg})
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No file provided"})
		return
	}
	defer f.Close()

	if header.Size > maxImageSize {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Image is too large. Maximum size is 50MB."})
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		corsError(w, "Error reading file", http.StatusInternalServerError)
		return
	}

	contentType := header.Header.Get("Content-Type")
	rec, err := s.service.SubmitImage(data, contentType)
	if err != nil {
		var dup *DuplicateError
		switch {
		case errors.As(err, &dup):
			writeJSON(w, http.StatusConflict, map[string]string{"error": "Already scanned: " + dup.Serial})
		case errors.Is(err, decoding.ErrNoBarcode):
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "No barcode found in image"})
		default:
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "Could not read the image"})
		}
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

// handleListScans returns the ledger snapshot in insertion order
func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Records())
}

// handleRemoveScan removes a single record by identifier
func (s *Server) handleRemoveScan(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		corsError(w, "Invalid scan ID", http.StatusBadRequest)
		return
	}
	// Absent identifiers are a silent no-op, so removal is idempotent.
	s.service.Remove(id)
	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleClearScans empties the ledger. The confirmation dialog lives in the
// page; by the time this endpoint is hit the operator already confirmed.
func (s *Server) handleClearScans(w http.ResponseWriter, r *http.Request) {
	s.service.Clear()
	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleGetSession reports the session state
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": s.service.SessionEnabled()})
}

// handleSetSession sets the session state explicitly
func (s *Server) handleSetSession(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		corsError(w, "Invalid session state", http.StatusBadRequest)
		return
	}
	if body.Enabled {
		s.service.StartSession()
	} else {
		s.service.StopSession()
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": s.service.SessionEnabled()})
}

// handleToggleSession flips the session state
func (s *Server) handleToggleSession(w http.ResponseWriter, r *http.Request) {
	enabled := s.service.ToggleSession()
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": enabled})
}

// handleCreateExport writes the dated XLSX artifact and returns its filename
func (s *Server) handleCreateExport(w http.ResponseWriter, r *http.Request) {
	filename, err := s.service.Export()
	if err != nil {
		if errors.Is(err, ErrNoRecords) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "Nothing to export yet"})
			return
		}
		slog.Error("Error exporting scans", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"filename": filename})
}

// handleGetExport serves a previously written export artifact. The filename
// comes from the request path, so it is reduced to its base name before use
// and quoted properly when echoed into the Content-Disposition header.
func (s *Server) handleGetExport(w http.ResponseWriter, r *http.Request) {
	filename := filepath.Base(r.PathValue("filename"))
	data, err := s.service.ExportFile(filename)
	if err != nil {
		corsError(w, "Export not found", http.StatusNotFound)
		return
	}
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Write(data)
}

// handleMessages drains the transient message queue
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	msgs := s.service.Messages()
	if msgs == nil {
		msgs = []Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// handleStaticCSS serves the CSS file
func (s *Server) handleStaticCSS(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/css")
	w.Write(appCSS)
}

// handleStaticJS serves the JavaScript file
func (s *Server) handleStaticJS(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Write(appJS)
}
