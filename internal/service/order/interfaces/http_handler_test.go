package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"storefront/internal/pkg/auth"
	"storefront/internal/pkg/keylock"
	"storefront/internal/service/order/application"
	"storefront/internal/service/order/domain"
	"storefront/internal/service/order/infrastructure/adapter"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

type memRepo struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
}

func (r *memRepo) Create(ctx context.Context, o *domain.Order, _ ...domain.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = o
	return nil
}

func (r *memRepo) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.orders[id]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, domain.ErrOrderNotFound
}

func (r *memRepo) ListByUser(ctx context.Context, userID string) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Order
	for _, o := range r.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *memRepo) List(ctx context.Context, f domain.ListFilter) ([]*domain.Order, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Order
	for _, o := range r.orders {
		out = append(out, o)
	}
	return out, int64(len(out)), nil
}

func (r *memRepo) UpdateStatus(ctx context.Context, o *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = o
	return nil
}

type catalog map[string]*domain.Product

func (c catalog) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	if p, ok := c[id]; ok {
		return p, nil
	}
	return nil, &domain.ProductNotFoundError{ProductID: id}
}

type testServer struct {
	mux      *http.ServeMux
	verifier *auth.Verifier
	repo     *memRepo
}

func newTestServer(t *testing.T, ready func(context.Context) error) *testServer {
	t.Helper()
	ledger := adapter.NewMemoryInventoryLedger()
	ledger.Set("p1", 3)
	repo := &memRepo{orders: make(map[string]*domain.Order)}

	svc := application.NewOrderApplicationService(application.Dependencies{
		Repo:    repo,
		Catalog: catalog{"p1": {ID: "p1", Title: "Mug", Price: decimal.RequireFromString("50.00"), Stock: 3}},
		Ledger:  ledger,
		Locker:  keylock.New(),
		Tracer:  noop.NewTracerProvider().Tracer("test"),
	}, application.Options{})

	verifier := auth.NewVerifier("test-secret")
	mux := http.NewServeMux()
	NewOrderHandler(svc, verifier, nil, nil, ready).RegisterRoutes(mux)
	return &testServer{mux: mux, verifier: verifier, repo: repo}
}

func (s *testServer) do(t *testing.T, method, path string, p *auth.Principal, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if p != nil {
		token, err := s.verifier.Sign(*p)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

var (
	alice = &auth.Principal{UserID: "u1", Email: "alice@example.com", Role: "user"}
	bob   = &auth.Principal{UserID: "u2", Email: "bob@example.com", Role: "user"}
	root  = &auth.Principal{UserID: "a1", Email: "root@example.com", Role: auth.RoleAdmin}
)

func orderBody(qty int) string {
	return `{"orderItems":[{"product":"p1","quantity":` + string(rune('0'+qty)) + `}],
		"shippingAddress":{"street":"1 Main St","city":"Springfield","state":"IL","zipCode":"62701","country":"US"},
		"paymentMethod":"paypal"}`
}

func TestCreateOrder(t *testing.T) {
	s := newTestServer(t, nil)

	t.Run("requires token", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/orders", nil, orderBody(1))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("created", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/orders", alice, orderBody(1))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		body := decode(t, rec)
		assert.Equal(t, "pending", body["status"])
		assert.Equal(t, 50.0, body["itemsPrice"])
		assert.Equal(t, 65.0, body["totalPrice"])
		assert.Equal(t, "u1", body["user"])
		assert.Contains(t, rec.Body.String(), `"totalPrice":65.00`)
	})

	t.Run("insufficient stock", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/orders", alice, orderBody(9))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Insufficient stock for Mug", decode(t, rec)["message"])
	})

	t.Run("validation", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/orders", alice, `{"orderItems":[],"paymentMethod":"gold"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.NotEmpty(t, decode(t, rec)["errors"])
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/orders", alice, `{`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetOrderAccess(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(t, http.MethodPost, "/api/orders", alice, orderBody(1))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode(t, rec)["id"].(string)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/orders/"+id, alice, "").Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/orders/"+id, root, "").Code)

	rec = s.do(t, http.MethodGet, "/api/orders/"+id, bob, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Access denied", decode(t, rec)["message"])

	rec = s.do(t, http.MethodGet, "/api/orders/missing", alice, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Order not found", decode(t, rec)["message"])

	rec = s.do(t, http.MethodGet, "/api/orders", alice, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var mine []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mine))
	assert.Len(t, mine, 1)
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(t, http.MethodPost, "/api/orders", alice, orderBody(1))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode(t, rec)["id"].(string)

	t.Run("non-admin is rejected", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/orders/admin/all", alice, "")
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "Not authorized as an admin", decode(t, rec)["message"])
	})

	t.Run("list all", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/orders/admin/all?page=1&limit=10", root, "")
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.EqualValues(t, 1, body["total"])
		assert.EqualValues(t, 1, body["totalPages"])
		assert.EqualValues(t, 1, body["currentPage"])
		assert.Len(t, body["orders"], 1)
	})

	t.Run("bad page", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/orders/admin/all?page=zero", root, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad status filter", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/orders/admin/all?status=lost", root, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("update status", func(t *testing.T) {
		rec := s.do(t, http.MethodPut, "/api/orders/"+id+"/status", root, `{"status":"delivered"}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decode(t, rec)
		assert.Equal(t, "delivered", body["status"])
		assert.Equal(t, true, body["isDelivered"])
		assert.NotEmpty(t, body["deliveredAt"])
	})

	t.Run("invalid status", func(t *testing.T) {
		rec := s.do(t, http.MethodPut, "/api/orders/"+id+"/status", root, `{"status":"lost"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Invalid status", decode(t, rec)["message"])
	})

	t.Run("unknown order", func(t *testing.T) {
		rec := s.do(t, http.MethodPut, "/api/orders/nope/status", root, `{"status":"shipped"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHealthAndReadiness(t *testing.T) {
	s := newTestServer(t, func(context.Context) error { return errors.New("db down") })
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/healthz", nil, "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, s.do(t, http.MethodGet, "/readyz", nil, "").Code)

	s = newTestServer(t, func(context.Context) error { return nil })
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/readyz", nil, "").Code)
}
