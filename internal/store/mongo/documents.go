package mongo

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"posinet/backend/internal/domain"
)

// Money is stored as Decimal128 so $inc and $sum stay exact on the server.

type productDoc struct {
	ID              string                `bson:"_id"`
	Title           string                `bson:"title"`
	Description     string                `bson:"description"`
	Price           primitive.Decimal128  `bson:"price"`
	Stock           int                   `bson:"stock"`
	Category        string                `bson:"category"`
	DiscountedPrice *primitive.Decimal128 `bson:"discountedPrice,omitempty"`
	CreatedAt       time.Time             `bson:"createdAt"`
	UpdatedAt       time.Time             `bson:"updatedAt"`
}

type lineItemDoc struct {
	ProductID string               `bson:"productId"`
	Quantity  int                  `bson:"quantity"`
	UnitPrice primitive.Decimal128 `bson:"unitPrice"`
}

type contactDoc struct {
	Name  string `bson:"name"`
	Phone string `bson:"phone,omitempty"`
	Email string `bson:"email,omitempty"`
}

type saleDoc struct {
	ID              string               `bson:"_id"`
	Products        []lineItemDoc        `bson:"products"`
	Discount        primitive.Decimal128 `bson:"discount"`
	CustomerDetails contactDoc           `bson:"customerDetails"`
	CustomerID      string               `bson:"customerId,omitempty"`
	PaymentMethod   string               `bson:"paymentMethod"`
	TotalAmount     primitive.Decimal128 `bson:"totalAmount"`
	Date            time.Time            `bson:"date"`
	ServedBy        string               `bson:"servedBy"`
	CreatedAt       time.Time            `bson:"createdAt"`
}

type customerDoc struct {
	ID               string               `bson:"_id"`
	Name             string               `bson:"name"`
	Phone            string               `bson:"phone,omitempty"`
	Email            string               `bson:"email,omitempty"`
	TotalPurchases   primitive.Decimal128 `bson:"totalPurchases"`
	LastPurchaseDate time.Time            `bson:"lastPurchaseDate,omitempty"`
	LastSaleID       string               `bson:"lastSaleId,omitempty"`
	CreditLimit      primitive.Decimal128 `bson:"creditLimit"`
	CreatedAt        time.Time            `bson:"createdAt"`
}

type activityDoc struct {
	ID          string    `bson:"_id"`
	Type        string    `bson:"type"`
	Description string    `bson:"description"`
	Actor       string    `bson:"actor,omitempty"`
	Timestamp   time.Time `bson:"timestamp"`
}

type userDoc struct {
	Username  string    `bson:"_id"`
	Password  string    `bson:"password"`
	Role      string    `bson:"role"`
	Active    bool      `bson:"active"`
	CreatedAt time.Time `bson:"createdAt"`
}

type topProductDoc struct {
	ProductID    string               `bson:"_id"`
	Title        string               `bson:"title"`
	QuantitySold int64                `bson:"quantitySold"`
	Revenue      primitive.Decimal128 `bson:"revenue"`
}

type summaryDoc struct {
	Count int64                `bson:"count"`
	Total primitive.Decimal128 `bson:"total"`
	Avg   primitive.Decimal128 `bson:"avg"`
	Min   primitive.Decimal128 `bson:"min"`
	Max   primitive.Decimal128 `bson:"max"`
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("encode decimal %s: %w", d, err)
	}
	return v, nil
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("decode decimal %s: %w", v, err)
	}
	return d, nil
}

func newProductDoc(p domain.Product) (productDoc, error) {
	price, err := toDecimal128(p.Price)
	if err != nil {
		return productDoc{}, err
	}
	doc := productDoc{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Price:       price,
		Stock:       p.Stock,
		Category:    p.Category,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if p.DiscountedPrice.Valid {
		discounted, err := toDecimal128(p.DiscountedPrice.Decimal)
		if err != nil {
			return productDoc{}, err
		}
		doc.DiscountedPrice = &discounted
	}
	return doc, nil
}

func (d productDoc) domain() (domain.Product, error) {
	price, err := fromDecimal128(d.Price)
	if err != nil {
		return domain.Product{}, err
	}
	p := domain.Product{
		ID:          d.ID,
		Title:       d.Title,
		Description: d.Description,
		Price:       price,
		Stock:       d.Stock,
		Category:    d.Category,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
	if d.DiscountedPrice != nil {
		discounted, err := fromDecimal128(*d.DiscountedPrice)
		if err != nil {
			return domain.Product{}, err
		}
		p.DiscountedPrice = decimal.NewNullDecimal(discounted)
	}
	return p, nil
}

func newSaleDoc(s domain.Sale) (saleDoc, error) {
	discount, err := toDecimal128(s.Discount)
	if err != nil {
		return saleDoc{}, err
	}
	total, err := toDecimal128(s.TotalAmount)
	if err != nil {
		return saleDoc{}, err
	}
	items := make([]lineItemDoc, 0, len(s.Products))
	for _, item := range s.Products {
		price, err := toDecimal128(item.UnitPrice)
		if err != nil {
			return saleDoc{}, err
		}
		items = append(items, lineItemDoc{ProductID: item.ProductID, Quantity: item.Quantity, UnitPrice: price})
	}
	return saleDoc{
		ID:              s.ID,
		Products:        items,
		Discount:        discount,
		CustomerDetails: contactDoc(s.CustomerDetails),
		CustomerID:      s.CustomerID,
		PaymentMethod:   s.PaymentMethod,
		TotalAmount:     total,
		Date:            s.Date,
		ServedBy:        s.ServedBy,
		CreatedAt:       s.CreatedAt,
	}, nil
}

func (d saleDoc) domain() (domain.Sale, error) {
	discount, err := fromDecimal128(d.Discount)
	if err != nil {
		return domain.Sale{}, err
	}
	total, err := fromDecimal128(d.TotalAmount)
	if err != nil {
		return domain.Sale{}, err
	}
	items := make([]domain.LineItem, 0, len(d.Products))
	for _, item := range d.Products {
		price, err := fromDecimal128(item.UnitPrice)
		if err != nil {
			return domain.Sale{}, err
		}
		items = append(items, domain.LineItem{ProductID: item.ProductID, Quantity: item.Quantity, UnitPrice: price})
	}
	return domain.Sale{
		ID:              d.ID,
		Products:        items,
		Discount:        discount,
		CustomerDetails: domain.CustomerDetails(d.CustomerDetails),
		CustomerID:      d.CustomerID,
		PaymentMethod:   d.PaymentMethod,
		TotalAmount:     total,
		Date:            d.Date.UTC(),
		ServedBy:        d.ServedBy,
		CreatedAt:       d.CreatedAt.UTC(),
	}, nil
}

func newCustomerDoc(c domain.Customer) (customerDoc, error) {
	total, err := toDecimal128(c.TotalPurchases)
	if err != nil {
		return customerDoc{}, err
	}
	limit, err := toDecimal128(c.CreditLimit)
	if err != nil {
		return customerDoc{}, err
	}
	return customerDoc{
		ID:               c.ID,
		Name:             c.Name,
		Phone:            c.Phone,
		Email:            c.Email,
		TotalPurchases:   total,
		LastPurchaseDate: c.LastPurchaseDate,
		LastSaleID:       c.LastSaleID,
		CreditLimit:      limit,
		CreatedAt:        c.CreatedAt,
	}, nil
}

func (d customerDoc) domain() (domain.Customer, error) {
	total, err := fromDecimal128(d.TotalPurchases)
	if err != nil {
		return domain.Customer{}, err
	}
	limit, err := fromDecimal128(d.CreditLimit)
	if err != nil {
		return domain.Customer{}, err
	}
	return domain.Customer{
		ID:               d.ID,
		Name:             d.Name,
		Phone:            d.Phone,
		Email:            d.Email,
		TotalPurchases:   total,
		LastPurchaseDate: d.LastPurchaseDate.UTC(),
		LastSaleID:       d.LastSaleID,
		CreditLimit:      limit,
		CreatedAt:        d.CreatedAt.UTC(),
	}, nil
}
