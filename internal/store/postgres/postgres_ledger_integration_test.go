package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"posinet/backend/internal/domain"
	"posinet/backend/internal/service"
	"posinet/backend/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("POSINET_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set POSINET_TEST_DATABASE_URL to run postgres integration test")
	}
	if err := Migrate(databaseURL); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	s, err := New(context.Background(), databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func seedProduct(t *testing.T, s *Store, stock int) string {
	t.Helper()
	ctx := context.Background()
	id := fmt.Sprintf("prd-it-%d", time.Now().UnixNano())

	if _, err := s.CreateProduct(ctx, domain.Product{
		ID:       id,
		Title:    "Integration Cable",
		Category: "accessories",
		Price:    decimal.NewFromInt(10),
		Stock:    stock,
	}); err != nil {
		t.Fatalf("create product: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE id IN (SELECT sale_id FROM sale_items WHERE product_id = $1)`, id)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	})
	return id
}

func saleRequest(productID string, qty int, email string) domain.CreateSaleRequest {
	return domain.CreateSaleRequest{
		Products:        []domain.LineItem{{ProductID: productID, Quantity: qty, UnitPrice: decimal.NewFromInt(10)}},
		CustomerDetails: &domain.CustomerDetails{Name: "Integration", Email: email},
		PaymentMethod:   domain.PaymentCard,
		TotalAmount:     decimal.NewNullDecimal(decimal.NewFromInt(int64(10 * qty))),
		Date:            time.Now().UTC().Format(time.RFC3339),
	}
}

func TestRecordSaleAgainstPostgres(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	email := fmt.Sprintf("it-%d@example.com", time.Now().UnixNano())
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM customers WHERE email = $1`, email)
	})
	productID := seedProduct(t, s, 10)

	svc := service.New(s, nil, service.Options{SaleTimeout: 5 * time.Second})

	if _, err := svc.RecordSale(ctx, saleRequest(productID, 3, email)); err != nil {
		t.Fatalf("first sale: %v", err)
	}
	resp, err := svc.RecordSale(ctx, saleRequest(productID, 2, email))
	if err != nil {
		t.Fatalf("second sale: %v", err)
	}

	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Stock != 5 {
		t.Fatalf("expected stock 5, got %d", product.Stock)
	}

	sale, err := s.GetSale(ctx, resp.SaleID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if len(sale.Products) != 1 || sale.Products[0].Quantity != 2 {
		t.Fatalf("unexpected line items %+v", sale.Products)
	}

	customer, err := s.GetCustomer(ctx, sale.CustomerID)
	if err != nil {
		t.Fatalf("get customer: %v", err)
	}
	if !customer.TotalPurchases.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected total purchases 50, got %s", customer.TotalPurchases)
	}
	if customer.LastSaleID != resp.SaleID {
		t.Fatalf("expected last sale %s, got %s", resp.SaleID, customer.LastSaleID)
	}

	_, err = svc.RecordSale(ctx, saleRequest(productID, 6, email))
	var shortfall *service.InsufficientStockError
	if !errors.As(err, &shortfall) || shortfall.Available != 5 {
		t.Fatalf("expected insufficient stock with 5 available, got %v", err)
	}
}

func TestConditionalDecrementSerializesConcurrentSales(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	productID := seedProduct(t, s, 1)

	var wg sync.WaitGroup
	results := make([]bool, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
				applied, err := tx.DecrementStock(ctx, productID, 1)
				if err != nil {
					return err
				}
				results[i] = applied
				return nil
			})
			if err != nil {
				t.Errorf("tx %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	applied := 0
	for _, ok := range results {
		if ok {
			applied++
		}
	}
	if applied != 1 {
		t.Fatalf("expected exactly one decrement to apply, got %d", applied)
	}

	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Stock != 0 {
		t.Fatalf("expected stock 0, got %d", product.Stock)
	}
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	productID := seedProduct(t, s, 4)
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.DecrementStock(ctx, productID, 3); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	stock, err := s.GetProduct(ctx, productID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if stock.Stock != 4 {
		t.Fatalf("expected stock 4 after rollback, got %d", stock.Stock)
	}
}
