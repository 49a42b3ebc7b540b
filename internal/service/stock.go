package service

import (
	"context"
	"errors"
	"math"
	"slices"
	"strings"

	"posinet/backend/internal/domain"
	"posinet/backend/internal/store"
)

// MaxQuantity bounds a line item's quantity, a product's aggregated demand in
// one sale, and a product's stock. Stock and quantities are 32-bit columns.
const MaxQuantity = math.MaxInt32

// decrementStock applies one conditional decrement. When no row changed, a
// follow-up read tells a missing product apart from a shortfall.
func decrementStock(ctx context.Context, tx store.Tx, productID string, qty int) error {
	applied, err := tx.DecrementStock(ctx, productID, qty)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}

	available, err := tx.ProductStock(ctx, productID)
	if errors.Is(err, store.ErrNotFound) {
		return &ProductNotFoundError{ProductID: productID}
	}
	if err != nil {
		return err
	}
	return &InsufficientStockError{ProductID: productID, Requested: qty, Available: available}
}

type stockDemand struct {
	ProductID string
	Quantity  int
}

// aggregateDemand folds repeated products into one decrement each and orders
// them by product id, so concurrent sales lock rows in the same order.
func aggregateDemand(items []domain.LineItem) []stockDemand {
	totals := make(map[string]int, len(items))
	for _, item := range items {
		totals[item.ProductID] += item.Quantity
	}

	demand := make([]stockDemand, 0, len(totals))
	for productID, qty := range totals {
		demand = append(demand, stockDemand{ProductID: productID, Quantity: qty})
	}
	slices.SortFunc(demand, func(a, b stockDemand) int {
		return strings.Compare(a.ProductID, b.ProductID)
	})
	return demand
}
