package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqssdk "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/gin-gonic/gin"

	"github.com/greenbasket/go-commerce-backend/internal/auth"
	"github.com/greenbasket/go-commerce-backend/internal/products"
	"github.com/greenbasket/go-commerce-backend/internal/testutil"
)

const (
	productsTable = "products-test"
	cartsTable    = "carts-test"
	ordersTable   = "orders-test"
	checkoutTable = "checkout-test"
)

var testSecret = []byte("test-secret")

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSQS struct {
	bodies []string
}

func (f *fakeSQS) SendMessage(ctx context.Context, params *sqssdk.SendMessageInput, optFns ...func(*sqssdk.Options)) (*sqssdk.SendMessageOutput, error) {
	f.bodies = append(f.bodies, *params.MessageBody)
	return &sqssdk.SendMessageOutput{}, nil
}

type testAPI struct {
	router *gin.Engine
	fake   *testutil.FakeDynamo
	sqs    *fakeSQS
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	fake := testutil.NewFakeDynamo()
	fake.CreateTable(productsTable, "product_id")
	fake.CreateTable(cartsTable, "user_id")
	fake.CreateTable(ordersTable, "order_id")
	fake.CreateTable(checkoutTable, "idempotency_key")
	q := &fakeSQS{}

	cfg := HandlerConfig{
		DynamoDBClient: fake,
		SQSClient:      q,
		ProductsTable:  productsTable,
		CartsTable:     cartsTable,
		OrdersTable:    ordersTable,
		CheckoutTable:  checkoutTable,
		QueueURL:       "https://sqs.local/order-events",
		JWTSecret:      testSecret,
		TTLWindow:      48 * time.Hour,
	}

	r := gin.New()
	RegisterProductRoutes(r, cfg)
	RegisterCartRoutes(r, cfg)
	RegisterOrderRoutes(r, cfg)

	return &testAPI{router: r, fake: fake, sqs: q}
}

func (a *testAPI) token(t *testing.T, userID, role string) string {
	t.Helper()
	token, err := auth.NewToken(testSecret, auth.Principal{ID: userID, Email: userID + "@greenbasket.local", Role: role}, time.Hour)
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}
	return token
}

func (a *testAPI) do(t *testing.T, method, path, token, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testAPI) seedProduct(t *testing.T, id string, stock int, price float64) {
	t.Helper()
	ps := products.NewStore(a.fake, productsTable)
	err := ps.Put(context.Background(), &products.Product{
		ProductID:     id,
		Name:          "Organic Apples",
		Description:   "Crisp and sweet",
		Images:        []string{"https://img.local/apples.jpg"},
		LabelledPrice: price + 0.50,
		Price:         price,
		Stock:         stock,
		IsAvailable:   true,
		Status:        products.StatusApproved,
		Category:      "fruit",
		Subcategory:   "apples",
	})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad response body %q: %v", w.Body.String(), err)
	}
	return body
}

func wantMessage(t *testing.T, w *httptest.ResponseRecorder, status int, msg string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, status, w.Body.String())
	}
	if got, _ := decode(t, w)["message"].(string); got != msg {
		t.Errorf("message = %q, want %q", got, msg)
	}
}

func TestCartRequiresAuth(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodGet, "/cart", "", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestCartFlow(t *testing.T) {
	a := newTestAPI(t)
	a.seedProduct(t, "P1", 5, 4.50)
	tok := a.token(t, "u1", auth.RoleCustomer)

	// quantity omitted defaults to 1
	w := a.do(t, http.MethodPost, "/cart/add", tok, `{"productId":"P1"}`, nil)
	wantMessage(t, w, http.StatusOK, "Item added to cart successfully")

	w = a.do(t, http.MethodPost, "/cart/add", tok, `{"productId":"P1","quantity":2}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("merge add status = %d: %s", w.Code, w.Body.String())
	}
	cart, _ := decode(t, w)["cart"].(map[string]interface{})
	items, _ := cart["items"].([]interface{})
	if len(items) != 1 {
		t.Fatalf("cart items = %v", items)
	}
	line := items[0].(map[string]interface{})
	if line["quantity"].(float64) != 3 {
		t.Errorf("quantity = %v, want 3", line["quantity"])
	}
	if line["product"] == nil {
		t.Error("cart line missing populated product")
	}
	if cart["total"].(float64) != 13.50 {
		t.Errorf("total = %v", cart["total"])
	}

	// cart entity is returned directly, not wrapped
	w = a.do(t, http.MethodGet, "/cart", tok, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get cart: %d", w.Code)
	}
	body := decode(t, w)
	if body["userId"] != "u1" {
		t.Errorf("cart body = %v", body)
	}
	if _, wrapped := body["success"]; wrapped {
		t.Error("GET /cart should return the cart entity directly")
	}

	w = a.do(t, http.MethodGet, "/cart/count", tok, "", nil)
	if got := decode(t, w)["count"].(float64); got != 3 {
		t.Errorf("count = %v, want 3", got)
	}

	w = a.do(t, http.MethodPut, "/cart/update", tok, `{"productId":"P1","quantity":5}`, nil)
	wantMessage(t, w, http.StatusOK, "Cart item updated successfully")

	w = a.do(t, http.MethodDelete, "/cart/remove", tok, `{"productId":"P1"}`, nil)
	wantMessage(t, w, http.StatusOK, "Item removed from cart successfully")

	w = a.do(t, http.MethodGet, "/cart/count", tok, "", nil)
	if got := decode(t, w)["count"].(float64); got != 0 {
		t.Errorf("count after remove = %v", got)
	}
}

func TestCartStockErrors(t *testing.T) {
	a := newTestAPI(t)
	a.seedProduct(t, "P1", 5, 4.50)
	tok := a.token(t, "u1", auth.RoleCustomer)

	w := a.do(t, http.MethodPost, "/cart/add", tok, `{"productId":"P-gone","quantity":1}`, nil)
	wantMessage(t, w, http.StatusNotFound, "Product not found or not available")

	w = a.do(t, http.MethodPost, "/cart/add", tok, `{"productId":"P1","quantity":6}`, nil)
	wantMessage(t, w, http.StatusBadRequest, "Only 5 items available in stock")

	if w = a.do(t, http.MethodPost, "/cart/add", tok, `{"productId":"P1","quantity":3}`, nil); w.Code != http.StatusOK {
		t.Fatal(w.Body.String())
	}
	w = a.do(t, http.MethodPost, "/cart/add", tok, `{"productId":"P1","quantity":3}`, nil)
	wantMessage(t, w, http.StatusBadRequest, "Cannot add 3 more items. Total quantity would exceed available stock.")

	w = a.do(t, http.MethodPut, "/cart/update", tok, `{"productId":"P1","quantity":-1}`, nil)
	wantMessage(t, w, http.StatusBadRequest, "Quantity must be at least 1")
}

func TestOrderFlow(t *testing.T) {
	a := newTestAPI(t)
	a.seedProduct(t, "P1", 5, 4.50)
	tok := a.token(t, "u1", auth.RoleCustomer)

	if w := a.do(t, http.MethodPost, "/cart/add", tok, `{"productId":"P1","quantity":3}`, nil); w.Code != http.StatusOK {
		t.Fatal(w.Body.String())
	}

	w := a.do(t, http.MethodPost, "/order", tok, `{"shippingAddress":"1 Main St","paymentMethod":"card"}`, nil)
	wantMessage(t, w, http.StatusCreated, "Order created successfully")
	order, _ := decode(t, w)["order"].(map[string]interface{})
	orderID, _ := order["orderId"].(string)
	if orderID == "" {
		t.Fatalf("order body = %v", order)
	}
	if order["status"] != "pending" || order["total"].(float64) != 13.50 {
		t.Errorf("order = %v", order)
	}

	// the checkout transaction emptied the cart
	w = a.do(t, http.MethodGet, "/cart/count", tok, "", nil)
	if got := decode(t, w)["count"].(float64); got != 0 {
		t.Errorf("cart count after checkout = %v", got)
	}

	w = a.do(t, http.MethodGet, "/order", tok, "", nil)
	if w.Code != http.StatusOK {
		t.Fatal(w.Body.String())
	}
	list, _ := decode(t, w)["orders"].([]interface{})
	if len(list) != 1 {
		t.Errorf("orders = %v", list)
	}

	w = a.do(t, http.MethodGet, "/order/"+orderID, tok, "", nil)
	if w.Code != http.StatusOK {
		t.Fatal(w.Body.String())
	}

	w = a.do(t, http.MethodGet, "/order/"+orderID+"/status", tok, "", nil)
	if w.Code != http.StatusOK {
		t.Fatal(w.Body.String())
	}
	if got := decode(t, w)["status"]; got != "pending" {
		t.Errorf("status = %v", got)
	}

	// another user cannot see it
	other := a.token(t, "u2", auth.RoleCustomer)
	w = a.do(t, http.MethodGet, "/order/"+orderID, other, "", nil)
	wantMessage(t, w, http.StatusNotFound, "Order not found")

	w = a.do(t, http.MethodPut, "/order/"+orderID+"/cancel", tok, "", nil)
	wantMessage(t, w, http.StatusOK, "Order cancelled successfully")

	w = a.do(t, http.MethodPut, "/order/"+orderID+"/cancel", tok, "", nil)
	wantMessage(t, w, http.StatusBadRequest, "Order cannot be cancelled at this stage")

	if len(a.sqs.bodies) != 2 {
		t.Errorf("published events = %v", a.sqs.bodies)
	}
}

func TestOrderEmptyCart(t *testing.T) {
	a := newTestAPI(t)
	tok := a.token(t, "u1", auth.RoleCustomer)

	w := a.do(t, http.MethodPost, "/order", tok, `{"shippingAddress":"1 Main St","paymentMethod":"card"}`, nil)
	wantMessage(t, w, http.StatusBadRequest, "Cart is empty")
}

func TestOrderInsufficientStock(t *testing.T) {
	a := newTestAPI(t)
	a.seedProduct(t, "P1", 5, 4.50)
	tok := a.token(t, "u1", auth.RoleCustomer)

	if w := a.do(t, http.MethodPost, "/cart/add", tok, `{"productId":"P1","quantity":3}`, nil); w.Code != http.StatusOK {
		t.Fatal(w.Body.String())
	}
	// stock collapses between carting and checkout
	ps := products.NewStore(a.fake, productsTable)
	if err := ps.AdjustStock(context.Background(), "P1", -4); err != nil {
		t.Fatal(err)
	}

	w := a.do(t, http.MethodPost, "/order", tok, `{"shippingAddress":"1 Main St","paymentMethod":"card"}`, nil)
	wantMessage(t, w, http.StatusBadRequest, "Insufficient stock for Organic Apples")
}

func TestOrderIdempotencyReplay(t *testing.T) {
	a := newTestAPI(t)
	a.seedProduct(t, "P1", 10, 4.50)
	tok := a.token(t, "u1", auth.RoleCustomer)
	key := map[string]string{"Idempotency-Key": "k-retry-1"}

	if w := a.do(t, http.MethodPost, "/cart/add", tok, `{"productId":"P1","quantity":2}`, nil); w.Code != http.StatusOK {
		t.Fatal(w.Body.String())
	}
	first := a.do(t, http.MethodPost, "/order", tok, `{"shippingAddress":"1 Main St","paymentMethod":"card"}`, key)
	if first.Code != http.StatusCreated {
		t.Fatalf("first checkout: %d %s", first.Code, first.Body.String())
	}

	// client retries with the same key after re-adding to the cart
	if w := a.do(t, http.MethodPost, "/cart/add", tok, `{"productId":"P1","quantity":2}`, nil); w.Code != http.StatusOK {
		t.Fatal(w.Body.String())
	}
	second := a.do(t, http.MethodPost, "/order", tok, `{"shippingAddress":"1 Main St","paymentMethod":"card"}`, key)
	if second.Code != http.StatusCreated {
		t.Fatalf("replay status = %d: %s", second.Code, second.Body.String())
	}
	if second.Body.String() != first.Body.String() {
		t.Errorf("replay body differs:\nfirst:  %s\nsecond: %s", first.Body.String(), second.Body.String())
	}

	// only one order was placed
	w := a.do(t, http.MethodGet, "/order", tok, "", nil)
	if list, _ := decode(t, w)["orders"].([]interface{}); len(list) != 1 {
		t.Errorf("orders = %v", list)
	}
}

func TestAdminOrderEndpoints(t *testing.T) {
	a := newTestAPI(t)
	a.seedProduct(t, "P1", 5, 4.50)
	customer := a.token(t, "u1", auth.RoleCustomer)
	admin := a.token(t, "admin-1", auth.RoleAdmin)

	if w := a.do(t, http.MethodPost, "/cart/add", customer, `{"productId":"P1","quantity":2}`, nil); w.Code != http.StatusOK {
		t.Fatal(w.Body.String())
	}
	w := a.do(t, http.MethodPost, "/order", customer, `{"shippingAddress":"1 Main St","paymentMethod":"card"}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatal(w.Body.String())
	}
	order, _ := decode(t, w)["order"].(map[string]interface{})
	orderID := order["orderId"].(string)

	// customers cannot reach the admin surface
	if w := a.do(t, http.MethodGet, "/order/all", customer, "", nil); w.Code != http.StatusForbidden {
		t.Errorf("GET /order/all as customer: %d", w.Code)
	}
	if w := a.do(t, http.MethodPut, "/order/update-status/"+orderID, customer, `{"status":"shipped"}`, nil); w.Code != http.StatusForbidden {
		t.Errorf("status override as customer: %d", w.Code)
	}

	if w := a.do(t, http.MethodGet, "/order/all", admin, "", nil); w.Code != http.StatusOK {
		t.Errorf("GET /order/all as admin: %d %s", w.Code, w.Body.String())
	}

	w = a.do(t, http.MethodPut, "/order/update-status/"+orderID, admin, `{"status":"teleported"}`, nil)
	wantMessage(t, w, http.StatusBadRequest, "Invalid status. Must be one of: pending, processing, shipped, delivered, cancelled")

	w = a.do(t, http.MethodPut, "/order/update-status/"+orderID, admin, `{"status":"shipped"}`, nil)
	wantMessage(t, w, http.StatusOK, "Order status updated successfully")

	// shipped orders can no longer be cancelled by the customer
	w = a.do(t, http.MethodPut, "/order/"+orderID+"/cancel", customer, "", nil)
	wantMessage(t, w, http.StatusBadRequest, "Order cannot be cancelled at this stage")
}

func TestProductLifecycle(t *testing.T) {
	a := newTestAPI(t)
	farmer := a.token(t, "farmer-1", auth.RoleCustomer)
	admin := a.token(t, "admin-1", auth.RoleAdmin)

	submission := `{
		"productname": "Raw Honey",
		"description": "From the hills",
		"labelledPrice": 12.00,
		"price": 10.50,
		"stock": 8,
		"category": "pantry",
		"subcategory": "honey"
	}`
	w := a.do(t, http.MethodPost, "/products/submit", farmer, submission, nil)
	wantMessage(t, w, http.StatusCreated, "Product submitted successfully! It will be reviewed by admin before publishing.")
	productID, _ := decode(t, w)["productId"].(string)
	if productID == "" {
		t.Fatal("no productId returned")
	}

	// pending products are invisible to the public catalog
	w = a.do(t, http.MethodGet, "/products", "", "", nil)
	var catalog []map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &catalog); err != nil {
		t.Fatalf("catalog body: %v", err)
	}
	if len(catalog) != 0 {
		t.Errorf("public catalog shows pending product: %v", catalog)
	}

	// but admins see everything
	w = a.do(t, http.MethodGet, "/products", admin, "", nil)
	if err := json.Unmarshal(w.Body.Bytes(), &catalog); err != nil {
		t.Fatal(err)
	}
	if len(catalog) != 1 {
		t.Errorf("admin catalog = %v", catalog)
	}

	if w := a.do(t, http.MethodGet, "/products/pending", farmer, "", nil); w.Code != http.StatusForbidden {
		t.Errorf("pending list as customer: %d", w.Code)
	}
	w = a.do(t, http.MethodGet, "/products/pending", admin, "", nil)
	if w.Code != http.StatusOK {
		t.Fatal(w.Body.String())
	}

	w = a.do(t, http.MethodPut, "/products/review/"+productID, admin, `{"action":"approve"}`, nil)
	wantMessage(t, w, http.StatusOK, "Product approved successfully")

	w = a.do(t, http.MethodPut, "/products/review/"+productID, admin, `{"action":"reject"}`, nil)
	wantMessage(t, w, http.StatusBadRequest, "Product has already been reviewed")

	// now public
	w = a.do(t, http.MethodGet, "/products", "", "", nil)
	if err := json.Unmarshal(w.Body.Bytes(), &catalog); err != nil {
		t.Fatal(err)
	}
	if len(catalog) != 1 || catalog[0]["productname"] != "Raw Honey" {
		t.Errorf("public catalog = %v", catalog)
	}

	w = a.do(t, http.MethodGet, "/products/"+productID, "", "", nil)
	if w.Code != http.StatusOK {
		t.Fatal(w.Body.String())
	}

	w = a.do(t, http.MethodPut, "/products/"+productID, admin, `{"price":9.99}`, nil)
	wantMessage(t, w, http.StatusOK, "Product updated successfully")

	w = a.do(t, http.MethodDelete, "/products/"+productID, admin, "", nil)
	wantMessage(t, w, http.StatusOK, "Product deleted successfully")

	w = a.do(t, http.MethodGet, "/products/"+productID, "", "", nil)
	wantMessage(t, w, http.StatusNotFound, "Product not found")
}

func TestProductSubmitValidation(t *testing.T) {
	a := newTestAPI(t)
	farmer := a.token(t, "farmer-1", auth.RoleCustomer)

	// selling price above the labelled price is a bad listing
	bad := `{
		"productname": "Raw Honey",
		"description": "From the hills",
		"labelledPrice": 10.00,
		"price": 12.00,
		"stock": 8,
		"category": "pantry",
		"subcategory": "honey"
	}`
	w := a.do(t, http.MethodPost, "/products/submit", farmer, bad, nil)
	wantMessage(t, w, http.StatusBadRequest, "Validation failed")
}

func TestAdminDirectProductSave(t *testing.T) {
	a := newTestAPI(t)
	admin := a.token(t, "admin-1", auth.RoleAdmin)
	farmer := a.token(t, "farmer-1", auth.RoleCustomer)

	payload := fmt.Sprintf(`{
		"productname": "Cold Pressed Oil",
		"description": "First press",
		"labelledPrice": %v,
		"price": %v,
		"stock": 4,
		"category": "pantry",
		"subcategory": "oil"
	}`, 20.00, 18.00)

	if w := a.do(t, http.MethodPost, "/products", farmer, payload, nil); w.Code != http.StatusForbidden {
		t.Errorf("direct save as customer: %d", w.Code)
	}

	w := a.do(t, http.MethodPost, "/products", admin, payload, nil)
	wantMessage(t, w, http.StatusCreated, "Product added successfully")
	productID := decode(t, w)["productId"].(string)

	// admin saves skip review and are sellable immediately
	w = a.do(t, http.MethodGet, "/products/"+productID, "", "", nil)
	body := decode(t, w)
	if body["status"] != products.StatusApproved || body["isAvailable"] != true {
		t.Errorf("direct-saved product = %v", body)
	}
}
