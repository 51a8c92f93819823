package decoding

import (
	"bytes"
	"image"
	"image/color"
	"image/png"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// qrPNG renders a QR code for content as PNG bytes.
func qrPNG(content string) []byte {
	writer := qrcode.NewQRCodeWriter()
	matrix, err := writer.Encode(content, gozxing.BarcodeFormat_QR_CODE, 256, 256, nil)
	Expect(err).NotTo(HaveOccurred())

	var buf bytes.Buffer
	Expect(png.Encode(&buf, matrix)).To(Succeed())
	return buf.Bytes()
}

// blankPNG renders a plain white image with no code in it.
func blankPNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("ZXing", func() {
	var decoder *ZXing

	BeforeEach(func() {
		decoder = NewZXing()
	})

	AfterEach(func() {
		decoder.Close()
	})

	When("the image contains a QR code", func() {
		It("should decode the payload", func() {
			payload, err := decoder.DecodeImage(qrPNG("SN-2024-00017"), "image/png")
			Expect(err).NotTo(HaveOccurred())
			Expect(payload).To(Equal("SN-2024-00017"))
		})
	})

	When("the image contains no code", func() {
		It("should return ErrNoBarcode", func() {
			_, err := decoder.DecodeImage(blankPNG(), "image/png")
			Expect(err).To(MatchError(ErrNoBarcode))
		})
	})

	When("the bytes are not an image", func() {
		It("should return a decode error", func() {
			_, err := decoder.DecodeImage([]byte("not an image"), "image/png")
			Expect(err).To(HaveOccurred())
		})
	})
})

var _ = Describe("conversion", func() {
	Describe("isHEICFormat", func() {
		It("should recognize the ftyp/heic signature", func() {
			data := append([]byte{0, 0, 0, 24}, []byte("ftypheic")...)
			data = append(data, make([]byte, 8)...)
			Expect(isHEICFormat(data)).To(BeTrue())
		})

		It("should reject short or unrelated data", func() {
			Expect(isHEICFormat([]byte("tiny"))).To(BeFalse())
			Expect(isHEICFormat(qrPNG("X"))).To(BeFalse())
		})
	})

	Describe("prepareImageData", func() {
		It("should pass PNG data through unchanged", func() {
			data := qrPNG("X")
			out, mimeType, converted, err := prepareImageData(data, "image/png")
			Expect(err).NotTo(HaveOccurred())
			Expect(converted).To(BeFalse())
			Expect(mimeType).To(Equal("image/png"))
			Expect(out).To(Equal(data))
		})

		It("should default an empty content type to JPEG handling", func() {
			// PNG bytes sniffed by image.Decode regardless of the declared type.
			_, mimeType, converted, err := prepareImageData(qrPNG("X"), "")
			Expect(err).NotTo(HaveOccurred())
			Expect(converted).To(BeTrue())
			Expect(mimeType).To(Equal("image/png"))
		})
	})
})
