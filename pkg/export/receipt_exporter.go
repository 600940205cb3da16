package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// Receipt holds the fields rendered onto an enrollment receipt.
type Receipt struct {
	EnrollmentID string
	StudentEmail string
	ClassName    string
	Instructor   string
	Amount       float64
	PaymentRef   string
	PurchasedAt  time.Time
}

// ReceiptExporter renders enrollment receipts as PDF documents.
type ReceiptExporter struct{}

// NewReceiptExporter constructs a receipt exporter.
func NewReceiptExporter() *ReceiptExporter {
	return &ReceiptExporter{}
}

// Render creates a single-page PDF receipt.
func (e *ReceiptExporter) Render(r Receipt) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "ENROLLMENT RECEIPT", "", 1, "C", false, 0, "")
	pdf.Ln(6)

	rows := [][2]string{
		{"Enrollment ID", r.EnrollmentID},
		{"Student", r.StudentEmail},
		{"Class", r.ClassName},
		{"Instructor", r.Instructor},
		{"Amount", fmt.Sprintf("%.2f", r.Amount)},
		{"Payment reference", r.PaymentRef},
		{"Purchased at", r.PurchasedAt.UTC().Format(time.RFC3339)},
	}

	for _, row := range rows {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(55, 8, row[0], "1", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(125, 8, row[1], "1", 1, "", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render receipt pdf: %w", err)
	}
	return buf.Bytes(), nil
}
