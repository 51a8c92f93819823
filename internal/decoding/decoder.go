package decoding

// Decoder defines the interface for camera-image barcode decoding. A decoded
// string is a one-shot completed scan candidate: it bypasses the keystroke
// classifier's timing logic entirely and goes straight to the dedup ledger.
type Decoder interface {
	// DecodeImage reads the barcode or QR code in an image and returns its
	// payload.
	DecodeImage(imageData []byte, contentType string) (string, error)
	// Close closes the decoder and releases resources
	Close() error
}
