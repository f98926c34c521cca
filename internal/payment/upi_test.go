package payment

import (
	"bytes"
	"net/url"
	"strings"
	"testing"

	"github.com/m3rciful/keyshop/internal/shop"
)

func TestLinkEncodesInstruction(t *testing.T) {
	g := Generator{}
	link := g.Link(shop.PaymentInstruction{
		Payee:     "shop@upi",
		Merchant:  "KEYSHOP",
		Currency:  "INR",
		Reference: "KEYSHOP-a1b2c3d4e5",
		Amount:    500,
	})
	if !strings.HasPrefix(link, "upi://pay?") {
		t.Fatalf("link = %q, expected upi://pay scheme", link)
	}
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}
	q := u.Query()
	if q.Get("pa") != "shop@upi" {
		t.Fatalf("pa = %q", q.Get("pa"))
	}
	if q.Get("am") != "500" {
		t.Fatalf("am = %q", q.Get("am"))
	}
	if q.Get("cu") != "INR" {
		t.Fatalf("cu = %q", q.Get("cu"))
	}
	if q.Get("tn") != "KEYSHOP-a1b2c3d4e5" {
		t.Fatalf("tn = %q", q.Get("tn"))
	}
}

func TestGenerateReturnsPNG(t *testing.T) {
	g := Generator{Size: 128}
	png, err := g.Generate(shop.PaymentInstruction{
		Payee:     "shop@upi",
		Currency:  "INR",
		Reference: "KEYSHOP-a1b2c3d4e5",
		Amount:    200,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Fatalf("expected PNG magic, got %x", png[:4])
	}
}
