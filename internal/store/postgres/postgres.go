package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"posinet/backend/internal/domain"
	"posinet/backend/internal/store"
	"posinet/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// WithinTx runs fn in a READ COMMITTED transaction. Row locks taken by the
// conditional stock update serialize concurrent sales on the same product.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(ctx, &ledgerTx{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type ledgerTx struct {
	tx *sql.Tx
}

func (t *ledgerTx) DecrementStock(ctx context.Context, productID string, qty int) (bool, error) {
	if qty < 1 {
		return false, store.ErrInvalid
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - $1, updated_at = now()
		WHERE id = $2 AND stock >= $1
	`, qty, productID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (t *ledgerTx) ProductStock(ctx context.Context, productID string) (int, error) {
	var stock int
	err := t.tx.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	return stock, err
}

func (t *ledgerTx) FindCustomerByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	return scanCustomer(t.tx.QueryRowContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE email = $1
		FOR UPDATE
	`, email))
}

func (t *ledgerTx) FindCustomerByPhone(ctx context.Context, phone string) (*domain.Customer, error) {
	return scanCustomer(t.tx.QueryRowContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE phone = $1
		ORDER BY created_at, id
		LIMIT 1
		FOR UPDATE
	`, phone))
}

func (t *ledgerTx) InsertCustomer(ctx context.Context, customer domain.Customer) error {
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, email, total_purchases, last_purchase_date, last_sale_id, credit_limit, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, customer.ID, customer.Name, nullIfEmpty(customer.Phone), nullIfEmpty(customer.Email),
		customer.TotalPurchases, nullTime(customer.LastPurchaseDate), nullIfEmpty(customer.LastSaleID),
		customer.CreditLimit, customer.CreatedAt)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	return err
}

func (t *ledgerTx) RecordCustomerPurchase(ctx context.Context, customerID string, contact domain.CustomerDetails, purchase domain.CustomerPurchase) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE customers
		SET name = COALESCE(NULLIF($2::text, ''), name),
			phone = COALESCE(NULLIF($3::text, ''), phone),
			email = COALESCE(NULLIF($4::text, ''), email),
			total_purchases = total_purchases + $5,
			last_purchase_date = $6,
			last_sale_id = $7
		WHERE id = $1
	`, customerID, contact.Name, contact.Phone, contact.Email, purchase.Amount, purchase.At, purchase.SaleID)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *ledgerTx) InsertSale(ctx context.Context, sale domain.Sale) error {
	if sale.ID == "" || len(sale.Products) == 0 {
		return store.ErrInvalid
	}
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = time.Now().UTC()
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sales (
			id, discount, customer_name, customer_phone, customer_email, customer_id,
			payment_method, total_amount, sale_date, served_by, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, sale.ID, sale.Discount, sale.CustomerDetails.Name, sale.CustomerDetails.Phone, sale.CustomerDetails.Email,
		nullIfEmpty(sale.CustomerID), sale.PaymentMethod, sale.TotalAmount, sale.Date, sale.ServedBy, sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return err
	}

	for i, item := range sale.Products {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, line_no, product_id, quantity, unit_price)
			VALUES ($1,$2,$3,$4,$5)
		`, sale.ID, i+1, item.ProductID, item.Quantity, item.UnitPrice); err != nil {
			return err
		}
	}
	return nil
}

const productColumns = `id, title, description, price, stock, category, discounted_price, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Title, &p.Description, &p.Price, &p.Stock, &p.Category, &p.DiscountedPrice, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		ORDER BY category, title
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return scanProduct(s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	if product.Title == "" || product.Stock < 0 {
		return nil, store.ErrInvalid
	}

	created, err := scanProduct(s.db.QueryRowContext(ctx, `
		INSERT INTO products (id, title, description, price, stock, category, discounted_price, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now(),now())
		RETURNING `+productColumns,
		product.ID, product.Title, product.Description, product.Price, product.Stock, product.Category, product.DiscountedPrice))
	if isUniqueViolation(err) {
		return nil, store.ErrDuplicate
	}
	return created, err
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Title == "" || product.Stock < 0 {
		return nil, store.ErrInvalid
	}

	return scanProduct(s.db.QueryRowContext(ctx, `
		UPDATE products
		SET title = $2, description = $3, price = $4, stock = $5, category = $6, discounted_price = $7, updated_at = now()
		WHERE id = $1
		RETURNING `+productColumns,
		product.ID, product.Title, product.Description, product.Price, product.Stock, product.Category, product.DiscountedPrice))
}

const saleColumns = `id, discount, customer_name, customer_phone, customer_email, COALESCE(customer_id, ''),
	payment_method, total_amount, sale_date, served_by, created_at`

func scanSale(row rowScanner) (*domain.Sale, error) {
	var sale domain.Sale
	err := row.Scan(&sale.ID, &sale.Discount, &sale.CustomerDetails.Name, &sale.CustomerDetails.Phone,
		&sale.CustomerDetails.Email, &sale.CustomerID, &sale.PaymentMethod, &sale.TotalAmount,
		&sale.Date, &sale.ServedBy, &sale.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sale.Date = sale.Date.UTC()
	sale.CreatedAt = sale.CreatedAt.UTC()
	return &sale, nil
}

// querySales runs a sales query and attaches line items with one follow-up
// query over sale_items.
func (s *Store) querySales(ctx context.Context, query string, args ...any) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, *sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.attachItems(ctx, sales); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) attachItems(ctx context.Context, sales []domain.Sale) error {
	if len(sales) == 0 {
		return nil
	}
	ids := make([]string, len(sales))
	index := make(map[string]int, len(sales))
	for i, sale := range sales {
		ids[i] = sale.ID
		index[sale.ID] = i
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sale_id, product_id, quantity, unit_price
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY sale_id, line_no
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var saleID string
		var item domain.LineItem
		if err := rows.Scan(&saleID, &item.ProductID, &item.Quantity, &item.UnitPrice); err != nil {
			return err
		}
		i := index[saleID]
		sales[i].Products = append(sales[i].Products, item)
	}
	return rows.Err()
}

func (s *Store) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return s.querySales(ctx, `SELECT `+saleColumns+` FROM sales ORDER BY sale_date DESC, id`)
}

func (s *Store) RecentSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	return s.querySales(ctx, `SELECT `+saleColumns+` FROM sales ORDER BY sale_date DESC, id LIMIT $1`, limit)
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	sales := []domain.Sale{*sale}
	if err := s.attachItems(ctx, sales); err != nil {
		return nil, err
	}
	return &sales[0], nil
}

func (s *Store) ListSalesBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	return s.querySales(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE ($1::timestamptz IS NULL OR sale_date >= $1)
		  AND ($2::timestamptz IS NULL OR sale_date < $2)
		ORDER BY sale_date ASC, id
	`, nullTime(from), nullTime(to))
}

func (s *Store) TopSellingProducts(ctx context.Context, limit int) ([]domain.TopProduct, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT si.product_id, COALESCE(p.title, ''), SUM(si.quantity), SUM(si.quantity * si.unit_price)
		FROM sale_items si
		LEFT JOIN products p ON p.id = si.product_id
		GROUP BY si.product_id, p.title
		ORDER BY SUM(si.quantity) DESC, SUM(si.quantity * si.unit_price) DESC, si.product_id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.TopProduct, 0, limit)
	for rows.Next() {
		var p domain.TopProduct
		if err := rows.Scan(&p.ProductID, &p.Title, &p.QuantitySold, &p.Revenue); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *Store) SalesSummary(ctx context.Context, from time.Time, to time.Time) (domain.SalesSummary, error) {
	var summary domain.SalesSummary
	var avg decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_amount), 0), COALESCE(AVG(total_amount), 0),
			COALESCE(MIN(total_amount), 0), COALESCE(MAX(total_amount), 0)
		FROM sales
		WHERE ($1::timestamptz IS NULL OR sale_date >= $1)
		  AND ($2::timestamptz IS NULL OR sale_date < $2)
	`, nullTime(from), nullTime(to)).Scan(&summary.Count, &summary.TotalAmount, &avg, &summary.MinAmount, &summary.MaxAmount)
	if err != nil {
		return domain.SalesSummary{}, err
	}
	summary.AverageAmount = avg.Round(2)
	return summary, nil
}

const customerColumns = `id, name, COALESCE(phone, ''), COALESCE(email, ''), total_purchases,
	last_purchase_date, COALESCE(last_sale_id, ''), credit_limit, created_at`

func scanCustomer(row rowScanner) (*domain.Customer, error) {
	var c domain.Customer
	var last sql.NullTime
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.TotalPurchases, &last, &c.LastSaleID, &c.CreditLimit, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if last.Valid {
		c.LastPurchaseDate = last.Time.UTC()
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+customerColumns+` FROM customers ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 64)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		customers = append(customers, *c)
	}
	return customers, rows.Err()
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	return scanCustomer(s.db.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
}

func (s *Store) UpdateCustomerCreditLimit(ctx context.Context, id string, limit decimal.Decimal) (*domain.Customer, error) {
	return scanCustomer(s.db.QueryRowContext(ctx, `
		UPDATE customers
		SET credit_limit = $2
		WHERE id = $1
		RETURNING `+customerColumns, id, limit))
}

func (s *Store) AppendActivity(ctx context.Context, entry domain.ActivityLogEntry) error {
	if entry.ID == "" {
		entry.ID = xid.New("act")
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_log (id, type, description, actor, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, entry.ID, entry.Type, entry.Description, entry.Actor, entry.Timestamp)
	return err
}

func (s *Store) RecentActivities(ctx context.Context, limit int) ([]domain.ActivityLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, description, actor, created_at
		FROM activity_log
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.ActivityLogEntry, 0, limit)
	for rows.Next() {
		var e domain.ActivityLogEntry
		if err := rows.Scan(&e.ID, &e.Type, &e.Description, &e.Actor, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Timestamp = e.Timestamp.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalid
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	return users, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val time.Time) any {
	if val.IsZero() {
		return nil
	}
	return val
}
