// Package receipts generates the PDF pickup receipt handed to a receiver
// after a successful Complete, adapted from receipts/generator.go: same
// gofpdf layout and HMAC-signed anonymous-verification footer, with the
// cross-border route/hop breakdown replaced by the transfer's original
// amount, fee, exchange rate and amount-in-TRY breakdown.
package receipts

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/selcukyavuz/moneybee/internal/models"
)

// getSignatureSecretKey returns the HMAC signing key from environment.
// This MUST be set in production via RECEIPT_SIGNATURE_KEY.
func getSignatureSecretKey() []byte {
	key := os.Getenv("RECEIPT_SIGNATURE_KEY")
	if key == "" {
		log.Println("⚠️  RECEIPT_SIGNATURE_KEY not set - using insecure default (DEV ONLY)")
		return []byte("moneybee-dev-receipt-key-NOT-FOR-PRODUCTION")
	}
	return []byte(key)
}

// getNationalIDSalt returns the national-ID hashing salt from environment.
func getNationalIDSalt() string {
	salt := os.Getenv("NATIONAL_ID_SALT")
	if salt == "" {
		log.Println("⚠️  NATIONAL_ID_SALT not set - using insecure default (DEV ONLY)")
		return "moneybee-dev-salt-NOT-FOR-PRODUCTION"
	}
	return salt
}

// Generator produces PDF pickup receipts for completed transfers.
type Generator struct {
	companyName string
}

func NewGenerator(companyName string) *Generator {
	return &Generator{companyName: companyName}
}

// GeneratePDF renders a completed transfer's pickup receipt.
func (g *Generator) GeneratePDF(t *models.Transfer) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 24)
	pdf.SetTextColor(16, 185, 129)
	pdf.CellFormat(190, 15, g.companyName, "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 12)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(190, 8, "Transfer Pickup Receipt", "", 1, "C", false, 0, "")

	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 14)
	switch t.Status {
	case models.Completed:
		pdf.SetTextColor(16, 185, 129)
		pdf.CellFormat(190, 10, "✓ TRANSFER COMPLETED", "", 1, "C", false, 0, "")
	case models.Failed:
		pdf.SetTextColor(239, 68, 68)
		pdf.CellFormat(190, 10, "✗ TRANSFER FAILED", "", 1, "C", false, 0, "")
	case models.Cancelled:
		pdf.SetTextColor(239, 68, 68)
		pdf.CellFormat(190, 10, "✗ TRANSFER CANCELLED", "", 1, "C", false, 0, "")
	default:
		pdf.SetTextColor(234, 179, 8)
		pdf.CellFormat(190, 10, "⏳ TRANSFER PENDING", "", 1, "C", false, 0, "")
	}

	pdf.Ln(10)

	pdf.SetTextColor(0, 0, 0)
	pdf.SetFillColor(248, 250, 252)

	startY := pdf.GetY()
	pdf.Rect(10, startY, 190, 37, "F")

	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetXY(15, startY+5)
	pdf.Cell(50, 8, "Transaction Code:")
	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 8, t.TransactionCode)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetXY(15, startY+13)
	pdf.Cell(50, 8, "Date:")
	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 8, t.CreatedAt.Format("January 2, 2006 at 3:04 PM"))

	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetXY(15, startY+21)
	pdf.Cell(50, 8, "Completed:")
	pdf.SetFont("Helvetica", "", 11)
	if t.CompletedAt != nil {
		pdf.Cell(0, 8, t.CompletedAt.Format("January 2, 2006 at 3:04 PM"))
	} else {
		pdf.Cell(0, 8, "-")
	}

	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetXY(15, startY+29)
	pdf.Cell(50, 8, "Receiver National ID:")
	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 8, maskNationalID(t.ReceiverNationalID))

	pdf.Ln(47)

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(190, 10, "Payment Summary", "", 1, "L", false, 0, "")

	pdf.SetFillColor(229, 231, 235)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(120, 8, "Description", "1", 0, "L", true, 0, "")
	pdf.CellFormat(70, 8, "Amount", "1", 1, "R", true, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(120, 8, "Original Amount", "1", 0, "L", false, 0, "")
	pdf.CellFormat(70, 8, fmt.Sprintf("%.2f %s", t.Amount, t.Currency), "1", 1, "R", false, 0, "")

	pdf.CellFormat(120, 8, "Transaction Fee", "1", 0, "L", false, 0, "")
	pdf.SetTextColor(239, 68, 68)
	pdf.CellFormat(70, 8, fmt.Sprintf("-%.2f TRY", t.TransactionFee), "1", 1, "R", false, 0, "")
	pdf.SetTextColor(0, 0, 0)

	if t.ExchangeRate != nil {
		pdf.CellFormat(120, 8, fmt.Sprintf("Exchange Rate (%s->TRY)", t.Currency), "1", 0, "L", false, 0, "")
		pdf.CellFormat(70, 8, fmt.Sprintf("%.4f", *t.ExchangeRate), "1", 1, "R", false, 0, "")
	}

	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetFillColor(16, 185, 129)
	pdf.SetTextColor(255, 255, 255)
	pdf.CellFormat(120, 10, "Amount in TRY", "1", 0, "L", true, 0, "")
	pdf.CellFormat(70, 10, fmt.Sprintf("%.2f TRY", t.AmountInTRY), "1", 1, "R", true, 0, "")

	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "I", 9)
	pdf.SetTextColor(128, 128, 128)
	pdf.CellFormat(190, 6, fmt.Sprintf("This is an automated receipt from %s.", g.companyName), "", 1, "C", false, 0, "")

	pdf.Ln(8)

	signature := generateDigitalSignature(t)
	verificationCode := generateVerificationCode(t)

	pdf.SetFillColor(30, 41, 59)
	sigY := pdf.GetY()
	pdf.Rect(10, sigY, 190, 33, "F")

	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetTextColor(16, 185, 129)
	pdf.SetXY(15, sigY+5)
	pdf.Cell(180, 6, "DIGITAL SIGNATURE - Anonymous Pickup Verification")

	pdf.SetFont("Courier", "", 7)
	pdf.SetTextColor(200, 200, 200)
	pdf.SetXY(15, sigY+13)
	pdf.Cell(180, 5, fmt.Sprintf("Signature: %s", signature))

	pdf.SetXY(15, sigY+20)
	pdf.Cell(180, 5, fmt.Sprintf("Verification Code: %s", verificationCode))

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func generateDigitalSignature(t *models.Transfer) string {
	data := fmt.Sprintf("%s|%s|%.2f|%s|%s",
		t.TransactionCode,
		hashNationalID(t.ReceiverNationalID),
		t.AmountInTRY,
		t.Currency,
		t.CreatedAt.Format(time.RFC3339),
	)
	h := hmac.New(sha256.New, getSignatureSecretKey())
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

func generateVerificationCode(t *models.Transfer) string {
	data := fmt.Sprintf("%s|%s", t.TransactionCode, t.CreatedAt.Format("20060102150405"))
	h := sha256.Sum256([]byte(data))
	return fmt.Sprintf("MB-%s", hex.EncodeToString(h[:])[:16])
}

func hashNationalID(nationalID string) string {
	h := sha256.Sum256([]byte(nationalID + getNationalIDSalt()))
	return hex.EncodeToString(h[:])[:12]
}

func maskNationalID(nationalID string) string {
	if len(nationalID) <= 4 {
		return nationalID
	}
	return fmt.Sprintf("%s%s", "*******", nationalID[len(nationalID)-4:])
}
