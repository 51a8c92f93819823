package decoding

import (
	"fmt"
	"strings"
)

// ErrNoBarcode is returned when an image contains no readable barcode.
var ErrNoBarcode = fmt.Errorf("no barcode found in image")

// cleanModelResponse normalizes a vision-model reply into a bare barcode
// payload. Models wrap answers in code fences or quotes despite the prompt,
// and answer NONE when no code is readable.
func cleanModelResponse(text string) (string, error) {
	text = strings.TrimSpace(text)

	// Remove markdown code blocks if present
	text = strings.TrimPrefix(text, "```text")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	// Strip surrounding quotes
	if len(text) >= 2 && text[0] == '"' && text[len(text)-1] == '"' {
		text = text[1 : len(text)-1]
		text = strings.TrimSpace(text)
	}

	if text == "" || strings.EqualFold(text, "none") {
		return "", ErrNoBarcode
	}

	// A payload is a single line; a multi-line reply means the model started
	// describing the image instead of decoding it.
	if strings.ContainsAny(text, "\r\n") {
		return "", fmt.Errorf("unexpected multi-line response: %q", text)
	}

	return text, nil
}
