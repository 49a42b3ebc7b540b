package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"posinet/backend/internal/domain"
	"posinet/backend/internal/service"
	"posinet/backend/internal/store/memory"
)

// newTestAPI builds a full API with a seeded in-memory store, real
// AuthManager and real Service so handler tests exercise the complete
// request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()
	t.Setenv("SEED_ADMIN_PASSWORD", "")
	t.Setenv("SEED_CASHIER_PASSWORD", "")

	repo := memory.NewSeeded()
	svc := service.New(repo, nil, service.Options{})
	auth := NewAuthManager(testSecret, time.Hour, repo)

	return New(svc, auth, "*")
}

func tokenFor(t *testing.T, api *API, username string, role string) string {
	t.Helper()
	token, err := api.auth.sign(username, role, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	switch v := payload.(type) {
	case nil:
		body = bytes.NewReader(nil)
	case string:
		body = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
		t.Fatalf("decode body: %v (raw %q)", err, rec.Body.String())
	}
}

func phoneCaseSale(qty int, total string) map[string]any {
	return map[string]any{
		"products": []map[string]any{
			{"productId": "prd-phone-case", "quantity": qty, "unitPrice": "8.50"},
		},
		"customerDetails": map[string]any{"name": "Rina", "email": "rina@example.com"},
		"paymentMethod":   "cash",
		"totalAmount":     total,
		"date":            "2026-03-14T10:00:00Z",
	}
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api.Handler(), http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	decodeBody(t, rec, &body)
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "cashier", Password: "cashier123"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	decodeBody(t, rec, &resp)
	if resp.AccessToken == "" || resp.Role != domain.RoleCashier {
		t.Fatalf("unexpected login response %+v", resp)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/products", resp.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected token to authorize product list, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "cashier", Password: "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", rec.Code)
	}
}

func TestProtectedRoutesRequireBearerToken(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	for _, path := range []string{"/api/v1/sales", "/api/v1/products", "/api/v1/customers", "/api/v1/activities/recent"} {
		rec := doJSON(t, handler, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, rec.Code)
		}
	}

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/sales", "not-a-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sales", tokenFor(t, api, "guest", "viewer"), nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for unknown role, got %d", rec.Code)
	}
}

func TestRecordSaleFlow(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := tokenFor(t, api, "cashier", domain.RoleCashier)

	payload := phoneCaseSale(2, "17.00")
	payload["saleId"] = "6F9619FF-8B86-D011-B42D-00C04FC964FF"

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", token, payload)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created domain.CreateSaleResponse
	decodeBody(t, rec, &created)
	if created.SaleID != "6f9619ff-8b86-d011-b42d-00c04fc964ff" || created.Duplicate {
		t.Fatalf("unexpected response %+v", created)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/products/prd-phone-case", token, nil)
	var product domain.Product
	decodeBody(t, rec, &product)
	if product.Stock != 58 {
		t.Fatalf("expected stock 58 after sale, got %d", product.Stock)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sales/"+created.SaleID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected sale lookup 200, got %d", rec.Code)
	}
	var sale domain.Sale
	decodeBody(t, rec, &sale)
	if sale.ServedBy != "cashier" || sale.CustomerID == "" || len(sale.Products) != 1 {
		t.Fatalf("unexpected sale %+v", sale)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales", token, payload)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected replay to return 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var replay domain.CreateSaleResponse
	decodeBody(t, rec, &replay)
	if !replay.Duplicate || replay.SaleID != created.SaleID {
		t.Fatalf("expected duplicate response, got %+v", replay)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/products/prd-phone-case", token, nil)
	decodeBody(t, rec, &product)
	if product.Stock != 58 {
		t.Fatalf("expected replay to leave stock at 58, got %d", product.Stock)
	}
}

func TestRecordSaleInsufficientStockReturns409(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := tokenFor(t, api, "cashier", domain.RoleCashier)

	payload := map[string]any{
		"products":        []map[string]any{{"productId": "prd-earbuds", "quantity": 16, "unitPrice": 49}},
		"customerDetails": map[string]any{"name": "Bayu", "phone": "0812"},
		"paymentMethod":   "card",
		"totalAmount":     784,
		"date":            "2026-03-14",
	}
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", token, payload)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}

	var body map[string]any
	decodeBody(t, rec, &body)
	if body["productId"] != "prd-earbuds" || body["requested"] != float64(16) || body["available"] != float64(15) {
		t.Fatalf("unexpected shortfall body %v", body)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/customers", token, nil)
	var customers struct {
		Customers []domain.Customer `json:"customers"`
	}
	decodeBody(t, rec, &customers)
	if len(customers.Customers) != 0 {
		t.Fatalf("expected no customer after rejected sale, got %d", len(customers.Customers))
	}
}

func TestRecordSaleErrorMapping(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := tokenFor(t, api, "cashier", domain.RoleCashier)

	unknown := phoneCaseSale(1, "8.50")
	unknown["products"] = []map[string]any{{"productId": "prd-missing", "quantity": 1, "unitPrice": "8.50"}}
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", token, unknown)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown product, got %d", rec.Code)
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["productId"] != "prd-missing" {
		t.Fatalf("expected productId in body, got %v", body)
	}

	badPayment := phoneCaseSale(1, "8.50")
	badPayment["paymentMethod"] = "barter"
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales", token, badPayment)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad payment method, got %d", rec.Code)
	}
	body = nil
	decodeBody(t, rec, &body)
	if body["field"] != "paymentMethod" {
		t.Fatalf("expected field paymentMethod, got %v", body)
	}

	oversized := phoneCaseSale(1, "0")
	oversized["products"] = []map[string]any{{"productId": "prd-phone-case", "quantity": int64(1) << 31, "unitPrice": "0"}}
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales", token, oversized)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for quantity beyond the stock column range, got %d", rec.Code)
	}
	body = nil
	decodeBody(t, rec, &body)
	if body["field"] != "products[0].quantity" {
		t.Fatalf("expected field products[0].quantity, got %v", body)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales", token, `{"products":[],"surprise":true}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sales/5b0c2a34-0000-4000-8000-000000000000", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown sale, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/sales", token, nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestSalesReportEndpoints(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := tokenFor(t, api, "cashier", domain.RoleCashier)

	for _, qty := range []int{1, 3} {
		payload := phoneCaseSale(qty, map[int]string{1: "8.50", 3: "25.50"}[qty])
		if rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", token, payload); rec.Code != http.StatusCreated {
			t.Fatalf("seed sale: %d %s", rec.Code, rec.Body.String())
		}
	}

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/sales/summary", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("summary: expected 200, got %d", rec.Code)
	}
	var summary map[string]any
	decodeBody(t, rec, &summary)
	if summary["count"] != float64(2) || summary["totalAmount"] != "34" || summary["maxAmount"] != "25.5" {
		t.Fatalf("unexpected summary %v", summary)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sales/top-products?limit=1", token, nil)
	var top struct {
		Products []domain.TopProduct `json:"products"`
	}
	decodeBody(t, rec, &top)
	if len(top.Products) != 1 || top.Products[0].ProductID != "prd-phone-case" || top.Products[0].QuantitySold != 4 {
		t.Fatalf("unexpected top products %+v", top.Products)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sales/range?from=2026-03-14&to=2026-03-14", token, nil)
	var ranged struct {
		Sales []domain.Sale `json:"sales"`
	}
	decodeBody(t, rec, &ranged)
	if len(ranged.Sales) != 2 {
		t.Fatalf("expected both sales in inclusive day range, got %d", len(ranged.Sales))
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sales/range?from=2026-03-15&to=2026-03-14", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for inverted range, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sales/recent?limit=1", token, nil)
	var recent struct {
		Sales []domain.Sale `json:"sales"`
	}
	decodeBody(t, rec, &recent)
	if len(recent.Sales) != 1 {
		t.Fatalf("expected one recent sale, got %d", len(recent.Sales))
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/activities/recent?limit=5", token, nil)
	var activities struct {
		Activities []domain.ActivityLogEntry `json:"activities"`
	}
	decodeBody(t, rec, &activities)
	if len(activities.Activities) != 2 || activities.Activities[0].Type != domain.ActivitySale {
		t.Fatalf("unexpected activities %+v", activities.Activities)
	}
}

func TestProductWritesRequireAdmin(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	cashier := tokenFor(t, api, "cashier", domain.RoleCashier)
	admin := tokenFor(t, api, "admin", domain.RoleAdmin)

	create := map[string]any{"title": "Car Mount", "category": "accessories", "price": "12.00", "stock": 10}
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/products", cashier, create)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier create, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/products", admin, create)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 for admin create, got %d: %s", rec.Code, rec.Body.String())
	}
	var product domain.Product
	decodeBody(t, rec, &product)
	if product.ID == "" || product.Stock != 10 {
		t.Fatalf("unexpected product %+v", product)
	}

	rec = doJSON(t, handler, http.MethodPatch, "/api/v1/products/"+product.ID, admin, map[string]any{"stock": 4})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin update, got %d: %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &product)
	if product.Stock != 4 {
		t.Fatalf("expected stock 4, got %d", product.Stock)
	}

	rec = doJSON(t, handler, http.MethodPatch, "/api/v1/products/prd-nope", admin, map[string]any{"stock": 4})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown product, got %d", rec.Code)
	}
}

func TestCustomerCreditLimitEndpoint(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	cashier := tokenFor(t, api, "cashier", domain.RoleCashier)
	admin := tokenFor(t, api, "admin", domain.RoleAdmin)

	if rec := doJSON(t, handler, http.MethodPost, "/api/v1/sales", cashier, phoneCaseSale(1, "8.50")); rec.Code != http.StatusCreated {
		t.Fatalf("seed sale: %d", rec.Code)
	}

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/customers", cashier, nil)
	var list struct {
		Customers []domain.Customer `json:"customers"`
	}
	decodeBody(t, rec, &list)
	if len(list.Customers) != 1 {
		t.Fatalf("expected one customer, got %d", len(list.Customers))
	}
	customerID := list.Customers[0].ID

	path := "/api/v1/customers/" + customerID + "/credit-limit"
	rec = doJSON(t, handler, http.MethodPut, path, cashier, map[string]any{"creditLimit": "100"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPut, path, admin, map[string]any{"creditLimit": "-1"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative limit, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPut, path, admin, map[string]any{"creditLimit": "100"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/customers/"+customerID, cashier, nil)
	var customer map[string]any
	decodeBody(t, rec, &customer)
	if customer["creditLimit"] != "100" || customer["totalPurchases"] != "8.5" {
		t.Fatalf("unexpected customer %v", customer)
	}

	rec = doJSON(t, handler, http.MethodPut, "/api/v1/customers/cus_missing/credit-limit", admin, map[string]any{"creditLimit": "1"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown customer, got %d", rec.Code)
	}
}
