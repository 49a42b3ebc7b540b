package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"posinet/backend/internal/domain"
	"posinet/backend/internal/store"
	"posinet/backend/internal/xid"
)

// Store keeps the whole ledger in process memory. A transactional scope holds
// the write lock for its full duration, so readers never observe a partially
// applied sale and concurrent decrements are serialized.
type Store struct {
	mu         sync.RWMutex
	products   map[string]domain.Product
	sales      map[string]domain.Sale
	customers  map[string]domain.Customer
	activities []domain.ActivityLogEntry
	users      map[string]domain.UserAccount
	now        func() time.Time
}

func New() *Store {
	return &Store{
		products:   make(map[string]domain.Product),
		sales:      make(map[string]domain.Sale),
		customers:  make(map[string]domain.Customer),
		activities: make([]domain.ActivityLogEntry, 0, 128),
		users:      make(map[string]domain.UserAccount),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// seedUsers builds the initial in-memory operator accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; when
// unset, dev defaults are used and a warning is logged.
func seedUsers(now time.Time) map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with a small demo catalogue and operator accounts.
func NewSeeded() *Store {
	s := New()
	now := s.now()

	for _, p := range []domain.Product{
		{ID: "prd-phone-case", Title: "Phone Case", Category: "accessories", Price: decimal.RequireFromString("8.50"), Stock: 60},
		{ID: "prd-usb-c-cable", Title: "USB-C Cable 1m", Category: "accessories", Price: decimal.RequireFromString("6.00"), Stock: 120},
		{ID: "prd-charger-20w", Title: "20W Wall Charger", Category: "power", Price: decimal.RequireFromString("19.90"), Stock: 40},
		{ID: "prd-powerbank-10k", Title: "Power Bank 10000mAh", Category: "power", Price: decimal.RequireFromString("34.00"), Stock: 25},
		{ID: "prd-earbuds", Title: "Wireless Earbuds", Category: "audio", Price: decimal.RequireFromString("49.00"), Stock: 15,
			DiscountedPrice: decimal.NewNullDecimal(decimal.RequireFromString("44.00"))},
		{ID: "prd-screen-guard", Title: "Tempered Screen Guard", Category: "accessories", Price: decimal.RequireFromString("5.00"), Stock: 200},
	} {
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
	}
	s.users = seedUsers(now)
	return s
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s}
	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	if err := ctx.Err(); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// memTx applies writes directly to the maps and journals an undo step for
// each one. The owning Store's write lock is held for the tx lifetime.
type memTx struct {
	s    *Store
	undo []func()
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) DecrementStock(ctx context.Context, productID string, qty int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if qty < 1 {
		return false, store.ErrInvalid
	}

	product, ok := t.s.products[productID]
	if !ok || product.Stock < qty {
		return false, nil
	}

	prev := product
	product.Stock -= qty
	product.UpdatedAt = t.s.now()
	t.s.products[productID] = product
	t.undo = append(t.undo, func() { t.s.products[productID] = prev })
	return true, nil
}

func (t *memTx) ProductStock(ctx context.Context, productID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	product, ok := t.s.products[productID]
	if !ok {
		return 0, store.ErrNotFound
	}
	return product.Stock, nil
}

func (t *memTx) FindCustomerByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.s.findCustomer(func(c domain.Customer) bool { return email != "" && c.Email == email })
}

func (t *memTx) FindCustomerByPhone(ctx context.Context, phone string) (*domain.Customer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.s.findCustomer(func(c domain.Customer) bool { return phone != "" && c.Phone == phone })
}

func (t *memTx) InsertCustomer(ctx context.Context, customer domain.Customer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	if _, exists := t.s.customers[customer.ID]; exists {
		return store.ErrDuplicate
	}
	if customer.Email != "" {
		if _, err := t.s.findCustomer(func(c domain.Customer) bool { return c.Email == customer.Email }); err == nil {
			return store.ErrDuplicate
		}
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = t.s.now()
	}

	t.s.customers[customer.ID] = customer
	id := customer.ID
	t.undo = append(t.undo, func() { delete(t.s.customers, id) })
	return nil
}

func (t *memTx) RecordCustomerPurchase(ctx context.Context, customerID string, contact domain.CustomerDetails, purchase domain.CustomerPurchase) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	customer, ok := t.s.customers[customerID]
	if !ok {
		return store.ErrNotFound
	}

	prev := customer
	if contact.Name != "" {
		customer.Name = contact.Name
	}
	if contact.Phone != "" {
		customer.Phone = contact.Phone
	}
	if contact.Email != "" {
		customer.Email = contact.Email
	}
	customer.TotalPurchases = customer.TotalPurchases.Add(purchase.Amount)
	customer.LastPurchaseDate = purchase.At
	customer.LastSaleID = purchase.SaleID

	t.s.customers[customerID] = customer
	t.undo = append(t.undo, func() { t.s.customers[customerID] = prev })
	return nil
}

func (t *memTx) InsertSale(ctx context.Context, sale domain.Sale) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sale.ID == "" || len(sale.Products) == 0 {
		return store.ErrInvalid
	}
	if _, exists := t.s.sales[sale.ID]; exists {
		return store.ErrDuplicate
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = t.s.now()
	}

	t.s.sales[sale.ID] = cloneSale(sale)
	id := sale.ID
	t.undo = append(t.undo, func() { delete(t.s.sales, id) })
	return nil
}

// findCustomer returns the oldest customer matching pred. Callers hold s.mu.
func (s *Store) findCustomer(pred func(domain.Customer) bool) (*domain.Customer, error) {
	var found *domain.Customer
	for _, c := range s.customers {
		if !pred(c) {
			continue
		}
		if found == nil || c.CreatedAt.Before(found.CreatedAt) || (c.CreatedAt.Equal(found.CreatedAt) && c.ID < found.ID) {
			match := c
			found = &match
		}
	}
	if found == nil {
		return nil, store.ErrNotFound
	}
	return found, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return strings.Compare(a.Title, b.Title)
		}
		return strings.Compare(a.Category, b.Category)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrDuplicate
	}
	now := s.now()
	product.CreatedAt = now
	product.UpdatedAt = now
	s.products[product.ID] = product

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = s.now()
	s.products[product.ID] = product

	updated := product
	return &updated, nil
}

func (s *Store) ListSales(_ context.Context) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedSales(func(domain.Sale) bool { return true }, newestFirst), nil
}

func (s *Store) RecentSales(_ context.Context, limit int) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := s.sortedSales(func(domain.Sale) bool { return true }, newestFirst)
	if limit > 0 && len(sales) > limit {
		sales = sales[:limit]
	}
	return sales, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cloned := cloneSale(sale)
	return &cloned, nil
}

func (s *Store) ListSalesBetween(_ context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sortedSales(func(sale domain.Sale) bool {
		return store.InRange(sale.Date, from, to)
	}, oldestFirst), nil
}

func (s *Store) TopSellingProducts(_ context.Context, limit int) ([]domain.TopProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byProduct := map[string]*domain.TopProduct{}
	for _, sale := range s.sales {
		for _, item := range sale.Products {
			entry := byProduct[item.ProductID]
			if entry == nil {
				entry = &domain.TopProduct{ProductID: item.ProductID, Revenue: decimal.Zero}
				if product, ok := s.products[item.ProductID]; ok {
					entry.Title = product.Title
				}
				byProduct[item.ProductID] = entry
			}
			entry.QuantitySold += int64(item.Quantity)
			entry.Revenue = entry.Revenue.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}
	}

	result := make([]domain.TopProduct, 0, len(byProduct))
	for _, entry := range byProduct {
		result = append(result, *entry)
	}
	slices.SortFunc(result, func(a, b domain.TopProduct) int {
		if a.QuantitySold != b.QuantitySold {
			if a.QuantitySold > b.QuantitySold {
				return -1
			}
			return 1
		}
		if c := b.Revenue.Cmp(a.Revenue); c != 0 {
			return c
		}
		return strings.Compare(a.ProductID, b.ProductID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) SalesSummary(_ context.Context, from time.Time, to time.Time) (domain.SalesSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := domain.SalesSummary{
		TotalAmount:   decimal.Zero,
		AverageAmount: decimal.Zero,
		MinAmount:     decimal.Zero,
		MaxAmount:     decimal.Zero,
	}
	for _, sale := range s.sales {
		if !store.InRange(sale.Date, from, to) {
			continue
		}
		if summary.Count == 0 || sale.TotalAmount.LessThan(summary.MinAmount) {
			summary.MinAmount = sale.TotalAmount
		}
		if summary.Count == 0 || sale.TotalAmount.GreaterThan(summary.MaxAmount) {
			summary.MaxAmount = sale.TotalAmount
		}
		summary.Count++
		summary.TotalAmount = summary.TotalAmount.Add(sale.TotalAmount)
	}
	if summary.Count > 0 {
		summary.AverageAmount = summary.TotalAmount.Div(decimal.NewFromInt(summary.Count)).Round(2)
	}
	return summary, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		if a.Name == b.Name {
			return strings.Compare(a.ID, b.ID)
		}
		return strings.Compare(a.Name, b.Name)
	})
	return customers, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &customer, nil
}

func (s *Store) UpdateCustomerCreditLimit(_ context.Context, id string, limit decimal.Decimal) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer, ok := s.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	customer.CreditLimit = limit
	s.customers[id] = customer
	return &customer, nil
}

func (s *Store) AppendActivity(_ context.Context, entry domain.ActivityLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("act")
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	s.activities = append(s.activities, entry)
	return nil
}

func (s *Store) RecentActivities(_ context.Context, limit int) ([]domain.ActivityLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := slices.Clone(s.activities)
	slices.Reverse(result)
	slices.SortStableFunc(result, func(a, b domain.ActivityLogEntry) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" {
		return store.ErrInvalid
	}
	if _, exists := s.users[username]; exists {
		return store.ErrDuplicate
	}
	user.Username = username
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	s.users[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func newestFirst(a, b domain.Sale) int {
	if c := b.Date.Compare(a.Date); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func oldestFirst(a, b domain.Sale) int {
	if c := a.Date.Compare(b.Date); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func (s *Store) sortedSales(keep func(domain.Sale) bool, cmp func(a, b domain.Sale) int) []domain.Sale {
	sales := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		if keep(sale) {
			sales = append(sales, cloneSale(sale))
		}
	}
	slices.SortFunc(sales, cmp)
	return sales
}

func cloneSale(src domain.Sale) domain.Sale {
	dst := src
	dst.Products = slices.Clone(src.Products)
	return dst
}
