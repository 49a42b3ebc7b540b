package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"posinet/backend/internal/domain"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate record")
	ErrInvalid   = errors.New("invalid record")
)

// Tx is the set of writes a sale may perform inside one transactional scope.
// Implementations are only valid for the lifetime of the WithinTx callback
// that received them.
type Tx interface {
	// DecrementStock subtracts qty from the product's stock only when the
	// current stock is at least qty. applied is false when no row changed,
	// which covers both a missing product and a shortfall.
	DecrementStock(ctx context.Context, productID string, qty int) (applied bool, err error)
	ProductStock(ctx context.Context, productID string) (int, error)
	FindCustomerByEmail(ctx context.Context, email string) (*domain.Customer, error)
	FindCustomerByPhone(ctx context.Context, phone string) (*domain.Customer, error)
	InsertCustomer(ctx context.Context, customer domain.Customer) error
	RecordCustomerPurchase(ctx context.Context, customerID string, contact domain.CustomerDetails, purchase domain.CustomerPurchase) error
	InsertSale(ctx context.Context, sale domain.Sale) error
}

type Repository interface {
	// WithinTx commits when fn returns nil and rolls back otherwise. The error
	// returned by fn is passed through unchanged.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)

	ListSales(ctx context.Context) ([]domain.Sale, error)
	RecentSales(ctx context.Context, limit int) ([]domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	ListSalesBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error)
	TopSellingProducts(ctx context.Context, limit int) ([]domain.TopProduct, error)
	SalesSummary(ctx context.Context, from time.Time, to time.Time) (domain.SalesSummary, error)

	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	UpdateCustomerCreditLimit(ctx context.Context, id string, limit decimal.Decimal) (*domain.Customer, error)

	AppendActivity(ctx context.Context, entry domain.ActivityLogEntry) error
	RecentActivities(ctx context.Context, limit int) ([]domain.ActivityLogEntry, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
}

// InRange reports whether t falls in [from, to). A zero bound is open.
func InRange(t time.Time, from time.Time, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}
