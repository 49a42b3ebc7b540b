package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID              string              `json:"id"`
	Title           string              `json:"title"`
	Description     string              `json:"description"`
	Price           decimal.Decimal     `json:"price"`
	Stock           int                 `json:"stock"`
	Category        string              `json:"category"`
	DiscountedPrice decimal.NullDecimal `json:"discountedPrice"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

type ProductCreateRequest struct {
	Title           string              `json:"title"`
	Description     string              `json:"description"`
	Price           decimal.Decimal     `json:"price"`
	Stock           int                 `json:"stock"`
	Category        string              `json:"category"`
	DiscountedPrice decimal.NullDecimal `json:"discountedPrice"`
}

type ProductUpdateRequest struct {
	Title           *string          `json:"title,omitempty"`
	Description     *string          `json:"description,omitempty"`
	Price           *decimal.Decimal `json:"price,omitempty"`
	Stock           *int             `json:"stock,omitempty"`
	Category        *string          `json:"category,omitempty"`
	DiscountedPrice *decimal.Decimal `json:"discountedPrice,omitempty"`
	ClearDiscount   bool             `json:"clearDiscount,omitempty"`
}

type LineItem struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type CustomerDetails struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

type Sale struct {
	ID              string          `json:"id"`
	Products        []LineItem      `json:"products"`
	Discount        decimal.Decimal `json:"discount"`
	CustomerDetails CustomerDetails `json:"customerDetails"`
	CustomerID      string          `json:"customerId,omitempty"`
	PaymentMethod   string          `json:"paymentMethod"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	Date            time.Time       `json:"date"`
	ServedBy        string          `json:"servedBy"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// CreateSaleRequest is the inbound shape of the create-sale call. Pointer and
// Null* fields distinguish "missing" from "zero".
type CreateSaleRequest struct {
	SaleID          string              `json:"saleId,omitempty"`
	Products        []LineItem          `json:"products"`
	Discount        decimal.NullDecimal `json:"discount"`
	CustomerDetails *CustomerDetails    `json:"customerDetails"`
	PaymentMethod   string              `json:"paymentMethod"`
	TotalAmount     decimal.NullDecimal `json:"totalAmount"`
	Date            string              `json:"date"`
	ServedBy        string              `json:"servedBy,omitempty"`
}

type CreateSaleResponse struct {
	SaleID    string `json:"saleId"`
	Message   string `json:"message"`
	Duplicate bool   `json:"duplicate"`
}

type Customer struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Phone            string          `json:"phone,omitempty"`
	Email            string          `json:"email,omitempty"`
	TotalPurchases   decimal.Decimal `json:"totalPurchases"`
	LastPurchaseDate time.Time       `json:"lastPurchaseDate"`
	LastSaleID       string          `json:"lastSaleId,omitempty"`
	CreditLimit      decimal.Decimal `json:"creditLimit"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// CustomerPurchase is the delta applied to a customer record by one sale.
type CustomerPurchase struct {
	Amount decimal.Decimal
	At     time.Time
	SaleID string
}

type CreditLimitRequest struct {
	CreditLimit decimal.NullDecimal `json:"creditLimit"`
}

type ActivityLogEntry struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Actor       string    `json:"actor,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

type TopProduct struct {
	ProductID    string          `json:"productId"`
	Title        string          `json:"title"`
	QuantitySold int64           `json:"quantitySold"`
	Revenue      decimal.Decimal `json:"revenue"`
}

type SalesSummary struct {
	Count         int64           `json:"count"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	AverageAmount decimal.Decimal `json:"averageAmount"`
	MinAmount     decimal.Decimal `json:"minAmount"`
	MaxAmount     decimal.Decimal `json:"maxAmount"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"accessToken"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expiresAt"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for operator credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

const (
	PaymentCash         = "cash"
	PaymentCard         = "card"
	PaymentMobile       = "mobile"
	PaymentBankTransfer = "bank_transfer"
	PaymentCredit       = "credit"
)

const (
	ActivitySale     = "sale"
	ActivityProduct  = "product"
	ActivityCustomer = "customer"
)
