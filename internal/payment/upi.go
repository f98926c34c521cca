// Package payment renders UPI payment instructions into scannable QR codes.
package payment

import (
	"fmt"
	"net/url"
	"strconv"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/m3rciful/keyshop/internal/shop"
)

const defaultCodeSize = 512

// Generator produces UPI deep-link QR images.
type Generator struct {
	// Size is the QR image edge in pixels; zero means the default.
	Size int
}

// Link builds the upi://pay deep link for the instruction.
// The transaction reference travels in the note field so the admin can match
// the incoming transfer against the pending entry.
func (g Generator) Link(instr shop.PaymentInstruction) string {
	q := url.Values{}
	q.Set("pa", instr.Payee)
	q.Set("am", strconv.FormatInt(instr.Amount, 10))
	q.Set("cu", instr.Currency)
	q.Set("tn", instr.Reference)
	return "upi://pay?" + q.Encode()
}

// Generate implements shop.CodeGenerator, returning a PNG image of the link.
func (g Generator) Generate(instr shop.PaymentInstruction) ([]byte, error) {
	size := g.Size
	if size <= 0 {
		size = defaultCodeSize
	}
	png, err := qrcode.Encode(g.Link(instr), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode payment qr: %w", err)
	}
	return png, nil
}
