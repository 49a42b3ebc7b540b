package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"posinet/backend/internal/domain"
	"posinet/backend/internal/store"
	"posinet/backend/internal/xid"
)

var paymentMethods = map[string]struct{}{
	domain.PaymentCash:         {},
	domain.PaymentCard:         {},
	domain.PaymentMobile:       {},
	domain.PaymentBankTransfer: {},
	domain.PaymentCredit:       {},
}

// RecordSale validates req and applies it as one unit: every stock
// decrement, the customer upsert, and the sale insert commit together or not
// at all. The activity entry and report invalidation happen after commit.
func (s *Service) RecordSale(ctx context.Context, req domain.CreateSaleRequest) (domain.CreateSaleResponse, error) {
	sale, err := validateSale(req)
	if err != nil {
		return domain.CreateSaleResponse{}, err
	}
	sale.ServedBy = servedBy(ctx, req.ServedBy)
	sale.CreatedAt = s.now()

	clientID := sale.ID != ""
	if clientID {
		if _, err := s.repo.GetSale(ctx, sale.ID); err == nil {
			return duplicateSale(sale.ID), nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return domain.CreateSaleResponse{}, &SaleProcessingError{SaleID: sale.ID, Cause: err}
		}
	} else {
		sale.ID = xid.SaleID()
	}

	txCtx := ctx
	if s.saleTimeout > 0 {
		var cancel context.CancelFunc
		txCtx, cancel = context.WithTimeout(ctx, s.saleTimeout)
		defer cancel()
	}

	err = s.repo.WithinTx(txCtx, func(ctx context.Context, tx store.Tx) error {
		for _, d := range aggregateDemand(sale.Products) {
			if err := decrementStock(ctx, tx, d.ProductID, d.Quantity); err != nil {
				return err
			}
		}

		customerID, err := resolveCustomer(ctx, tx, sale.CustomerDetails, domain.CustomerPurchase{
			Amount: sale.TotalAmount,
			At:     sale.Date,
			SaleID: sale.ID,
		})
		if err != nil {
			return err
		}
		sale.CustomerID = customerID

		return tx.InsertSale(ctx, sale)
	})
	if err != nil {
		var shortfall *InsufficientStockError
		var missing *ProductNotFoundError
		if errors.As(err, &shortfall) || errors.As(err, &missing) {
			return domain.CreateSaleResponse{}, err
		}
		// A retry carrying the same id may have committed first.
		if clientID && errors.Is(err, store.ErrDuplicate) {
			if _, getErr := s.repo.GetSale(ctx, sale.ID); getErr == nil {
				return duplicateSale(sale.ID), nil
			}
		}
		return domain.CreateSaleResponse{}, &SaleProcessingError{SaleID: sale.ID, Cause: err}
	}

	s.activity.Log(ctx, domain.ActivitySale, fmt.Sprintf("New sale %s of %s (%s) served by %s", sale.ID, sale.TotalAmount.StringFixed(2), sale.PaymentMethod, sale.ServedBy))
	s.invalidateReports(ctx)

	return domain.CreateSaleResponse{
		SaleID:  sale.ID,
		Message: "Sale recorded successfully",
	}, nil
}

func duplicateSale(id string) domain.CreateSaleResponse {
	return domain.CreateSaleResponse{
		SaleID:    id,
		Message:   "Sale already recorded",
		Duplicate: true,
	}
}

func servedBy(ctx context.Context, requested string) string {
	if actor, ok := ActorFromContext(ctx); ok && actor.Username != "" {
		return actor.Username
	}
	if requested = strings.TrimSpace(requested); requested != "" {
		return requested
	}
	return "system"
}

// validateSale checks the request shape and returns the normalized sale with
// everything but the id, operator and customer reference filled in.
func validateSale(req domain.CreateSaleRequest) (domain.Sale, error) {
	var sale domain.Sale

	if req.SaleID != "" {
		id, ok := xid.NormalizeSaleID(req.SaleID)
		if !ok {
			return sale, invalid("saleId", "must be a UUID")
		}
		sale.ID = id
	}

	if len(req.Products) == 0 {
		return sale, invalid("products", "at least one line item is required")
	}
	subtotal := decimal.Zero
	items := make([]domain.LineItem, 0, len(req.Products))
	demand := make(map[string]int64, len(req.Products))
	for i, item := range req.Products {
		item.ProductID = strings.TrimSpace(item.ProductID)
		if item.ProductID == "" {
			return sale, invalid(fmt.Sprintf("products[%d].productId", i), "is required")
		}
		if item.Quantity < 1 {
			return sale, invalid(fmt.Sprintf("products[%d].quantity", i), "must be at least 1")
		}
		if item.Quantity > MaxQuantity {
			return sale, invalid(fmt.Sprintf("products[%d].quantity", i), fmt.Sprintf("must not exceed %d", MaxQuantity))
		}
		demand[item.ProductID] += int64(item.Quantity)
		if demand[item.ProductID] > MaxQuantity {
			return sale, invalid("products", fmt.Sprintf("total quantity for product %s exceeds %d", item.ProductID, MaxQuantity))
		}
		if item.UnitPrice.IsNegative() {
			return sale, invalid(fmt.Sprintf("products[%d].unitPrice", i), "must not be negative")
		}
		subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
		items = append(items, item)
	}
	sale.Products = items

	if req.CustomerDetails == nil {
		return sale, invalid("customerDetails", "is required")
	}
	contact := domain.CustomerDetails{
		Name:  strings.TrimSpace(req.CustomerDetails.Name),
		Phone: strings.TrimSpace(req.CustomerDetails.Phone),
		Email: strings.ToLower(strings.TrimSpace(req.CustomerDetails.Email)),
	}
	if contact.Name == "" {
		return sale, invalid("customerDetails.name", "is required")
	}
	if contact.Phone == "" && contact.Email == "" {
		return sale, invalid("customerDetails", "phone or email is required")
	}
	sale.CustomerDetails = contact

	method := strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if method == "" {
		return sale, invalid("paymentMethod", "is required")
	}
	if _, ok := paymentMethods[method]; !ok {
		return sale, invalid("paymentMethod", fmt.Sprintf("unsupported payment method %q", req.PaymentMethod))
	}
	sale.PaymentMethod = method

	discount := decimal.Zero
	if req.Discount.Valid {
		if req.Discount.Decimal.IsNegative() {
			return sale, invalid("discount", "must not be negative")
		}
		discount = req.Discount.Decimal
	}
	sale.Discount = discount.Round(2)

	if !req.TotalAmount.Valid {
		return sale, invalid("totalAmount", "is required")
	}
	total := req.TotalAmount.Decimal
	if total.IsNegative() {
		return sale, invalid("totalAmount", "must not be negative")
	}
	expected := subtotal.Sub(discount).Round(2)
	if !total.Round(2).Equal(expected) {
		return sale, invalid("totalAmount", fmt.Sprintf("does not match line items net of discount (expected %s)", expected.StringFixed(2)))
	}
	sale.TotalAmount = total.Round(2)

	date, err := parseSaleDate(req.Date)
	if err != nil {
		return sale, invalid("date", err.Error())
	}
	sale.Date = date

	return sale, nil
}

func parseSaleDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("is required")
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", raw)
}
