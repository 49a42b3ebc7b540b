package service

import (
	"context"
	"fmt"
	"strings"

	"posinet/backend/internal/domain"
)

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, invalid("id", "is required")
	}
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	product := domain.Product{
		Title:           strings.TrimSpace(req.Title),
		Description:     strings.TrimSpace(req.Description),
		Price:           req.Price.Round(2),
		Stock:           req.Stock,
		Category:        strings.TrimSpace(req.Category),
		DiscountedPrice: req.DiscountedPrice,
	}
	if product.DiscountedPrice.Valid {
		product.DiscountedPrice.Decimal = product.DiscountedPrice.Decimal.Round(2)
	}
	if err := validateProduct(product); err != nil {
		return domain.Product{}, err
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.activity.Log(ctx, domain.ActivityProduct, fmt.Sprintf("Product %q created by %s with stock %d", created.Title, actor.Username, created.Stock))
	return *created, nil
}

// UpdateProduct applies the supplied fields. Setting stock here is a manual
// correction and bypasses the sale path.
func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, err := requireAdmin(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, invalid("id", "is required")
	}
	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Title != nil {
		updated.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.Price != nil {
		updated.Price = req.Price.Round(2)
	}
	if req.Stock != nil {
		updated.Stock = *req.Stock
	}
	if req.Category != nil {
		updated.Category = strings.TrimSpace(*req.Category)
	}
	switch {
	case req.ClearDiscount:
		updated.DiscountedPrice.Valid = false
	case req.DiscountedPrice != nil:
		updated.DiscountedPrice.Decimal = req.DiscountedPrice.Round(2)
		updated.DiscountedPrice.Valid = true
	}
	if err := validateProduct(updated); err != nil {
		return domain.Product{}, err
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.activity.Log(ctx, domain.ActivityProduct, fmt.Sprintf("Product %q updated by %s", saved.Title, actor.Username))
	return *saved, nil
}

func validateProduct(p domain.Product) error {
	if p.Title == "" {
		return invalid("title", "is required")
	}
	if p.Category == "" {
		return invalid("category", "is required")
	}
	if p.Price.IsNegative() {
		return invalid("price", "must not be negative")
	}
	if p.Stock < 0 {
		return invalid("stock", "must not be negative")
	}
	if p.Stock > MaxQuantity {
		return invalid("stock", fmt.Sprintf("must not exceed %d", MaxQuantity))
	}
	if p.DiscountedPrice.Valid {
		if p.DiscountedPrice.Decimal.IsNegative() {
			return invalid("discountedPrice", "must not be negative")
		}
		if p.DiscountedPrice.Decimal.GreaterThan(p.Price) {
			return invalid("discountedPrice", "must not exceed price")
		}
	}
	return nil
}
