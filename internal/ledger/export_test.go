package ledger

import (
	"bytes"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/xuri/excelize/v2"
)

// workbookRows round-trips a built workbook and returns its rows.
func workbookRows(f *excelize.File) [][]string {
	buf, err := f.WriteToBuffer()
	Expect(err).NotTo(HaveOccurred())

	reopened, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	Expect(err).NotTo(HaveOccurred())
	defer reopened.Close()

	rows, err := reopened.GetRows(exportSheet)
	Expect(err).NotTo(HaveOccurred())
	return rows
}

var _ = Describe("Export", func() {
	var records []ScanRecord

	BeforeEach(func() {
		records = []ScanRecord{
			{ID: 1, Serial: "A1", CapturedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)},
			{ID: 2, Serial: "A2", CapturedAt: time.Date(2024, 3, 1, 9, 5, 0, 0, time.UTC)},
		}
	})

	Describe("BuildWorkbook", func() {
		When("there are no records", func() {
			It("should refuse with ErrNoRecords", func() {
				_, err := BuildWorkbook(nil, LayoutSerialTimestamp)
				Expect(err).To(MatchError(ErrNoRecords))
			})
		})

		When("using the serial-timestamp layout", func() {
			It("should produce a header row plus data rows in insertion order", func() {
				f, err := BuildWorkbook(records, LayoutSerialTimestamp)
				Expect(err).NotTo(HaveOccurred())
				defer f.Close()

				rows := workbookRows(f)
				Expect(rows).To(HaveLen(3))
				Expect(rows[0]).To(Equal([]string{"Serial Number", "Timestamp"}))
				Expect(rows[1][0]).To(Equal("A1"))
				Expect(rows[1][1]).To(Equal("2024-03-01T09:00:00Z"))
				Expect(rows[2][0]).To(Equal("A2"))
			})
		})

		When("using the count-serial layout", func() {
			It("should number rows from one", func() {
				f, err := BuildWorkbook(records, LayoutCountSerial)
				Expect(err).NotTo(HaveOccurred())
				defer f.Close()

				rows := workbookRows(f)
				Expect(rows).To(HaveLen(3))
				Expect(rows[0]).To(Equal([]string{"Count", "Serial Number"}))
				Expect(rows[1]).To(Equal([]string{"1", "A1"}))
				Expect(rows[2]).To(Equal([]string{"2", "A2"}))
			})
		})
	})

	Describe("ExportFilename", func() {
		It("should embed the date", func() {
			t := time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC)
			Expect(ExportFilename(t)).To(Equal("scans-2024-03-01.xlsx"))
		})
	})

	Describe("ParseLayout", func() {
		It("should accept both variants", func() {
			for _, name := range []string{"serial-timestamp", "count-serial"} {
				_, err := ParseLayout(name)
				Expect(err).NotTo(HaveOccurred())
			}
		})

		It("should reject unknown names", func() {
			_, err := ParseLayout("three-columns")
			Expect(err).To(HaveOccurred())
		})
	})
})
