// Package mongo keeps the ledger in MongoDB. Sales run in multi-document
// transactions, so the deployment must be a replica set or sharded cluster.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"posinet/backend/internal/domain"
	"posinet/backend/internal/store"
	"posinet/backend/internal/xid"
)

const (
	productsCollection   = "products"
	salesCollection      = "sales"
	customersCollection  = "customers"
	activitiesCollection = "activities"
	usersCollection      = "users"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

func New(ctx context.Context, uri string, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	s := &Store{client: client, db: client.Database(database)}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		customersCollection: {
			{
				Keys: bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetUnique(true).
					SetPartialFilterExpression(bson.M{"email": bson.M{"$type": "string"}}),
			},
			{Keys: bson.D{{Key: "phone", Value: 1}, {Key: "createdAt", Value: 1}}},
		},
		salesCollection: {
			{Keys: bson.D{{Key: "date", Value: -1}}},
			{Keys: bson.D{{Key: "products.productId", Value: 1}}},
		},
		activitiesCollection: {
			{Keys: bson.D{{Key: "timestamp", Value: -1}}},
		},
		productsCollection: {
			{Keys: bson.D{{Key: "category", Value: 1}, {Key: "title", Value: 1}}},
		},
	}
	for name, models := range indexes {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// WithinTx runs fn in a multi-document transaction. The driver retries fn on
// transient write conflicts, so fn must be safe to run more than once.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(context.WithoutCancel(ctx))

	txOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, &ledgerTx{db: s.db})
	}, txOpts)
	return err
}

type ledgerTx struct {
	db *mongo.Database
}

func (t *ledgerTx) DecrementStock(ctx context.Context, productID string, qty int) (bool, error) {
	if qty < 1 {
		return false, store.ErrInvalid
	}
	res, err := t.db.Collection(productsCollection).UpdateOne(ctx,
		bson.M{"_id": productID, "stock": bson.M{"$gte": qty}},
		bson.M{
			"$inc": bson.M{"stock": -qty},
			"$set": bson.M{"updatedAt": time.Now().UTC()},
		},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

func (t *ledgerTx) ProductStock(ctx context.Context, productID string) (int, error) {
	var doc struct {
		Stock int `bson:"stock"`
	}
	err := t.db.Collection(productsCollection).FindOne(ctx, bson.M{"_id": productID},
		options.FindOne().SetProjection(bson.M{"stock": 1})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, store.ErrNotFound
	}
	return doc.Stock, err
}

func (t *ledgerTx) FindCustomerByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	return findCustomer(ctx, t.db, bson.M{"email": email})
}

func (t *ledgerTx) FindCustomerByPhone(ctx context.Context, phone string) (*domain.Customer, error) {
	return findCustomer(ctx, t.db, bson.M{"phone": phone},
		options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}))
}

func (t *ledgerTx) InsertCustomer(ctx context.Context, customer domain.Customer) error {
	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = time.Now().UTC()
	}
	doc, err := newCustomerDoc(customer)
	if err != nil {
		return err
	}
	_, err = t.db.Collection(customersCollection).InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrDuplicate
	}
	return err
}

func (t *ledgerTx) RecordCustomerPurchase(ctx context.Context, customerID string, contact domain.CustomerDetails, purchase domain.CustomerPurchase) error {
	amount, err := toDecimal128(purchase.Amount)
	if err != nil {
		return err
	}

	set := bson.M{"lastPurchaseDate": purchase.At, "lastSaleId": purchase.SaleID}
	if contact.Name != "" {
		set["name"] = contact.Name
	}
	if contact.Phone != "" {
		set["phone"] = contact.Phone
	}
	if contact.Email != "" {
		set["email"] = contact.Email
	}

	res, err := t.db.Collection(customersCollection).UpdateOne(ctx,
		bson.M{"_id": customerID},
		bson.M{"$set": set, "$inc": bson.M{"totalPurchases": amount}},
	)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrDuplicate
		}
		return err
	}
	if res.MatchedCount == 0 {
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
	doc, err := newSaleDoc(sale)
	if err != nil {
		return err
	}
	_, err = t.db.Collection(salesCollection).InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrDuplicate
	}
	return err
}

func findCustomer(ctx context.Context, db *mongo.Database, filter bson.M, opts ...*options.FindOneOptions) (*domain.Customer, error) {
	var doc customerDoc
	err := db.Collection(customersCollection).FindOne(ctx, filter, opts...).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	customer, err := doc.domain()
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	cur, err := s.db.Collection(productsCollection).Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "category", Value: 1}, {Key: "title", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []productDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	products := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		p, err := doc.domain()
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var doc productDoc
	err := s.db.Collection(productsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p, err := doc.domain()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now

	doc, err := newProductDoc(product)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.Collection(productsCollection).InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	doc, err := newProductDoc(product)
	if err != nil {
		return nil, err
	}

	update := bson.M{
		"$set": bson.M{
			"title":       doc.Title,
			"description": doc.Description,
			"price":       doc.Price,
			"stock":       doc.Stock,
			"category":    doc.Category,
			"updatedAt":   time.Now().UTC(),
		},
	}
	if doc.DiscountedPrice != nil {
		update["$set"].(bson.M)["discountedPrice"] = *doc.DiscountedPrice
	} else {
		update["$unset"] = bson.M{"discountedPrice": ""}
	}

	var saved productDoc
	err = s.db.Collection(productsCollection).FindOneAndUpdate(ctx, bson.M{"_id": product.ID}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&saved)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p, err := saved.domain()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) findSales(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]domain.Sale, error) {
	cur, err := s.db.Collection(salesCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []saleDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	sales := make([]domain.Sale, 0, len(docs))
	for _, doc := range docs {
		sale, err := doc.domain()
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	return sales, nil
}

var newestFirst = bson.D{{Key: "date", Value: -1}, {Key: "_id", Value: 1}}

func (s *Store) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return s.findSales(ctx, bson.M{}, options.Find().SetSort(newestFirst))
}

func (s *Store) RecentSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	return s.findSales(ctx, bson.M{}, options.Find().SetSort(newestFirst).SetLimit(int64(limit)))
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	var doc saleDoc
	err := s.db.Collection(salesCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sale, err := doc.domain()
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func dateFilter(from time.Time, to time.Time) bson.M {
	bounds := bson.M{}
	if !from.IsZero() {
		bounds["$gte"] = from
	}
	if !to.IsZero() {
		bounds["$lt"] = to
	}
	if len(bounds) == 0 {
		return bson.M{}
	}
	return bson.M{"date": bounds}
}

func (s *Store) ListSalesBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Sale, error) {
	return s.findSales(ctx, dateFilter(from, to),
		options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "_id", Value: 1}}))
}

func (s *Store) TopSellingProducts(ctx context.Context, limit int) ([]domain.TopProduct, error) {
	ranking := bson.D{{Key: "quantitySold", Value: -1}, {Key: "revenue", Value: -1}, {Key: "_id", Value: 1}}
	pipeline := mongo.Pipeline{
		{{Key: "$unwind", Value: "$products"}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$products.productId"},
			{Key: "quantitySold", Value: bson.M{"$sum": "$products.quantity"}},
			{Key: "revenue", Value: bson.M{"$sum": bson.M{"$multiply": bson.A{"$products.quantity", "$products.unitPrice"}}}},
		}}},
		{{Key: "$sort", Value: ranking}},
		{{Key: "$limit", Value: limit}},
		{{Key: "$lookup", Value: bson.M{
			"from":         productsCollection,
			"localField":   "_id",
			"foreignField": "_id",
			"as":           "product",
		}}},
		{{Key: "$project", Value: bson.M{
			"quantitySold": 1,
			"revenue":      1,
			"title":        bson.M{"$ifNull": bson.A{bson.M{"$arrayElemAt": bson.A{"$product.title", 0}}, ""}},
		}}},
		{{Key: "$sort", Value: ranking}},
	}

	cur, err := s.db.Collection(salesCollection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	var docs []topProductDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	result := make([]domain.TopProduct, 0, len(docs))
	for _, doc := range docs {
		revenue, err := fromDecimal128(doc.Revenue)
		if err != nil {
			return nil, err
		}
		result = append(result, domain.TopProduct{
			ProductID:    doc.ProductID,
			Title:        doc.Title,
			QuantitySold: doc.QuantitySold,
			Revenue:      revenue,
		})
	}
	return result, nil
}

func (s *Store) SalesSummary(ctx context.Context, from time.Time, to time.Time) (domain.SalesSummary, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: dateFilter(from, to)}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "count", Value: bson.M{"$sum": 1}},
			{Key: "total", Value: bson.M{"$sum": "$totalAmount"}},
			{Key: "avg", Value: bson.M{"$avg": "$totalAmount"}},
			{Key: "min", Value: bson.M{"$min": "$totalAmount"}},
			{Key: "max", Value: bson.M{"$max": "$totalAmount"}},
		}}},
	}

	cur, err := s.db.Collection(salesCollection).Aggregate(ctx, pipeline)
	if err != nil {
		return domain.SalesSummary{}, err
	}
	var docs []summaryDoc
	if err := cur.All(ctx, &docs); err != nil {
		return domain.SalesSummary{}, err
	}

	summary := domain.SalesSummary{
		TotalAmount:   decimal.Zero,
		AverageAmount: decimal.Zero,
		MinAmount:     decimal.Zero,
		MaxAmount:     decimal.Zero,
	}
	if len(docs) == 0 {
		return summary, nil
	}

	doc := docs[0]
	summary.Count = doc.Count
	for _, field := range []struct {
		dst *decimal.Decimal
		src primitive.Decimal128
	}{
		{&summary.TotalAmount, doc.Total},
		{&summary.AverageAmount, doc.Avg},
		{&summary.MinAmount, doc.Min},
		{&summary.MaxAmount, doc.Max},
	} {
		v, err := fromDecimal128(field.src)
		if err != nil {
			return domain.SalesSummary{}, err
		}
		*field.dst = v
	}
	summary.AverageAmount = summary.AverageAmount.Round(2)
	return summary, nil
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	cur, err := s.db.Collection(customersCollection).Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []customerDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	customers := make([]domain.Customer, 0, len(docs))
	for _, doc := range docs {
		c, err := doc.domain()
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	return findCustomer(ctx, s.db, bson.M{"_id": id})
}

func (s *Store) UpdateCustomerCreditLimit(ctx context.Context, id string, limit decimal.Decimal) (*domain.Customer, error) {
	value, err := toDecimal128(limit)
	if err != nil {
		return nil, err
	}

	var doc customerDoc
	err = s.db.Collection(customersCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"creditLimit": value}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c, err := doc.domain()
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) AppendActivity(ctx context.Context, entry domain.ActivityLogEntry) error {
	if entry.ID == "" {
		entry.ID = xid.New("act")
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	_, err := s.db.Collection(activitiesCollection).InsertOne(ctx, activityDoc(entry))
	return err
}

func (s *Store) RecentActivities(ctx context.Context, limit int) ([]domain.ActivityLogEntry, error) {
	cur, err := s.db.Collection(activitiesCollection).Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}).SetLimit(int64(limit)))
	if err != nil {
		return nil, err
	}
	var docs []activityDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	entries := make([]domain.ActivityLogEntry, 0, len(docs))
	for _, doc := range docs {
		entry := domain.ActivityLogEntry(doc)
		entry.Timestamp = entry.Timestamp.UTC()
		entries = append(entries, entry)
	}
	return entries, nil
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

	_, err := s.db.Collection(usersCollection).InsertOne(ctx, userDoc(user))
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrDuplicate
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	cur, err := s.db.Collection(usersCollection).Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	users := make([]domain.UserAccount, 0, len(docs))
	for _, doc := range docs {
		user := domain.UserAccount(doc)
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	return users, nil
}
