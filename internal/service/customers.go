package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"posinet/backend/internal/domain"
	"posinet/backend/internal/store"
	"posinet/backend/internal/xid"
)

// resolveCustomer finds the customer for a sale's contact details and applies
// the purchase to it, creating the customer on first sight. An email match
// wins over a phone match when the two point at different customers.
func resolveCustomer(ctx context.Context, tx store.Tx, contact domain.CustomerDetails, purchase domain.CustomerPurchase) (string, error) {
	existing, err := matchCustomer(ctx, tx, contact)
	if err != nil {
		return "", err
	}

	if existing != nil {
		if err := tx.RecordCustomerPurchase(ctx, existing.ID, contact, purchase); err != nil {
			return "", err
		}
		return existing.ID, nil
	}

	customer := domain.Customer{
		ID:               xid.New("cus"),
		Name:             contact.Name,
		Phone:            contact.Phone,
		Email:            contact.Email,
		TotalPurchases:   purchase.Amount,
		LastPurchaseDate: purchase.At,
		LastSaleID:       purchase.SaleID,
		CreditLimit:      decimal.Zero,
	}
	if err := tx.InsertCustomer(ctx, customer); err != nil {
		return "", err
	}
	return customer.ID, nil
}

func matchCustomer(ctx context.Context, tx store.Tx, contact domain.CustomerDetails) (*domain.Customer, error) {
	if contact.Email != "" {
		customer, err := tx.FindCustomerByEmail(ctx, contact.Email)
		if err == nil {
			return customer, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	if contact.Phone != "" {
		customer, err := tx.FindCustomerByPhone(ctx, contact.Phone)
		if err == nil {
			return customer, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Customer{}, invalid("id", "is required")
	}
	customer, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) UpdateCreditLimit(ctx context.Context, id string, req domain.CreditLimitRequest) (domain.Customer, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.Customer{}, err
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Customer{}, invalid("id", "is required")
	}
	if !req.CreditLimit.Valid {
		return domain.Customer{}, invalid("creditLimit", "is required")
	}
	if req.CreditLimit.Decimal.IsNegative() {
		return domain.Customer{}, invalid("creditLimit", "must not be negative")
	}

	updated, err := s.repo.UpdateCustomerCreditLimit(ctx, id, req.CreditLimit.Decimal.Round(2))
	if err != nil {
		return domain.Customer{}, err
	}

	s.activity.Log(ctx, domain.ActivityCustomer, fmt.Sprintf("Credit limit for %s set to %s by %s", updated.Name, updated.CreditLimit.StringFixed(2), actor.Username))
	return *updated, nil
}
