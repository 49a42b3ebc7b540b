package mongo

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"posinet/backend/internal/domain"
)

func TestDecimal128KeepsCents(t *testing.T) {
	for _, raw := range []string{"0", "0.10", "19.99", "123456789012.34"} {
		d := decimal.RequireFromString(raw)
		v, err := toDecimal128(d)
		if err != nil {
			t.Fatalf("encode %s: %v", raw, err)
		}
		back, err := fromDecimal128(v)
		if err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
		if !back.Equal(d) {
			t.Fatalf("expected %s, got %s", d, back)
		}
	}
}

func TestProductDocOmitsMissingDiscount(t *testing.T) {
	doc, err := newProductDoc(domain.Product{ID: "prd-1", Title: "Cable", Price: decimal.RequireFromString("6.00"), Stock: 3})
	if err != nil {
		t.Fatalf("new product doc: %v", err)
	}
	if doc.DiscountedPrice != nil {
		t.Fatalf("expected no discounted price")
	}

	p, err := doc.domain()
	if err != nil {
		t.Fatalf("to domain: %v", err)
	}
	if p.DiscountedPrice.Valid {
		t.Fatalf("expected discounted price to stay null")
	}
}

func TestSaleDocCarriesLineItems(t *testing.T) {
	at := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	sale := domain.Sale{
		ID: "a1c7a3a2-3a5c-4d35-9c43-8a3f0f9b1e11",
		Products: []domain.LineItem{
			{ProductID: "prd-1", Quantity: 2, UnitPrice: decimal.RequireFromString("6.00")},
			{ProductID: "prd-2", Quantity: 1, UnitPrice: decimal.RequireFromString("19.90")},
		},
		Discount:        decimal.RequireFromString("1.90"),
		CustomerDetails: domain.CustomerDetails{Name: "Dana", Email: "dana@example.com"},
		PaymentMethod:   domain.PaymentCash,
		TotalAmount:     decimal.RequireFromString("30.00"),
		Date:            at,
		ServedBy:        "cashier",
	}

	doc, err := newSaleDoc(sale)
	if err != nil {
		t.Fatalf("new sale doc: %v", err)
	}
	if len(doc.Products) != 2 || doc.CustomerDetails.Email != "dana@example.com" {
		t.Fatalf("unexpected doc %+v", doc)
	}

	back, err := doc.domain()
	if err != nil {
		t.Fatalf("to domain: %v", err)
	}
	if !back.TotalAmount.Equal(sale.TotalAmount) || !back.Products[1].UnitPrice.Equal(decimal.RequireFromString("19.90")) {
		t.Fatalf("unexpected amounts %+v", back)
	}
	if !back.Date.Equal(at) {
		t.Fatalf("expected date %s, got %s", at, back.Date)
	}
}
