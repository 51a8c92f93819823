package decoding

import (
	"fmt"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// ZXing implements the Decoder interface with local, in-process decoding.
// It needs no network or API key, so it is the default decoder.
type ZXing struct {
	readers []gozxing.Reader
	hints   map[gozxing.DecodeHintType]interface{}
}

// NewZXing creates a new ZXing Decoder instance. It tries QR first, then the
// one-dimensional symbologies common on serial number labels.
func NewZXing() *ZXing {
	return &ZXing{
		readers: []gozxing.Reader{
			qrcode.NewQRCodeReader(),
			oned.NewCode128Reader(),
			oned.NewCode39Reader(),
			oned.NewEAN13Reader(),
		},
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		},
	}
}

// DecodeImage reads the first decodable barcode or QR code in an image.
func (z *ZXing) DecodeImage(imageData []byte, contentType string) (string, error) {
	img, err := decodeToImage(imageData, contentType)
	if err != nil {
		return "", err
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("preparing bitmap: %w", err)
	}

	for _, reader := range z.readers {
		result, err := reader.Decode(bmp, z.hints)
		if err != nil {
			reader.Reset()
			continue
		}
		return result.GetText(), nil
	}

	return "", ErrNoBarcode
}

// Close closes the decoder (no-op, nothing to release)
func (z *ZXing) Close() error {
	return nil
}
