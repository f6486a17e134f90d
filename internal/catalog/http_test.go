package catalog_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"CloudCart/internal/catalog"
	"CloudCart/pkg/kit"
)

type envelope struct {
	Success   bool            `json:"success"`
	Count     *int            `json:"count"`
	Data      json.RawMessage `json:"data"`
	Error     string          `json:"error"`
	Message   string          `json:"message"`
	RequestID string          `json:"request_id"`
}

func newTestHandler(t *testing.T, store catalog.Store, opts ...func(*catalog.Server, *catalog.HTTPDeps)) http.Handler {
	t.Helper()

	s := &catalog.Server{
		Store:       store,
		Log:         zap.NewNop(),
		Environment: "test",
		Version:     "1.2.3",
		Now:         func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	}
	deps := catalog.HTTPDeps{
		Log:     zap.NewNop(),
		Service: "catalog",
	}
	for _, o := range opts {
		o(s, &deps)
	}
	return catalog.NewHandler(s, deps)
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var env envelope
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), "body=%s", rr.Body.String())
	}
	return rr, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v), "data=%s", string(env.Data))
	return v
}

func TestAPI_ListProducts(t *testing.T) {
	h := newTestHandler(t, catalog.NewMemStore(catalog.SeedProducts()))

	rr, env := do(t, h, http.MethodGet, "/api/products", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, env.Success)
	require.NotNil(t, env.Count)
	assert.Equal(t, 5, *env.Count)

	products := decodeData[[]catalog.Product](t, env)
	assert.Equal(t, catalog.SeedProducts(), products)
}

func TestAPI_ListEmpty(t *testing.T) {
	h := newTestHandler(t, catalog.NewMemStore(nil))

	rr, env := do(t, h, http.MethodGet, "/api/products", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, env.Count)
	assert.Equal(t, 0, *env.Count)
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestAPI_ListSearch(t *testing.T) {
	h := newTestHandler(t, catalog.NewMemStore(catalog.SeedProducts()))

	tests := []struct {
		q   string
		ids []int64
	}{
		{q: "electronics", ids: []int64{1, 5}},
		{q: "MOUSE", ids: []int64{2}},
		{q: "usb", ids: []int64{4}},
		{q: "toaster", ids: []int64{}},
	}

	for _, tc := range tests {
		t.Run(tc.q, func(t *testing.T) {
			rr, env := do(t, h, http.MethodGet, "/api/products?q="+tc.q, "")
			require.Equal(t, http.StatusOK, rr.Code)

			products := decodeData[[]catalog.Product](t, env)
			ids := make([]int64, 0, len(products))
			for _, p := range products {
				ids = append(ids, p.ID)
			}
			assert.Equal(t, tc.ids, ids)
			assert.Equal(t, len(tc.ids), *env.Count)
		})
	}
}

func TestAPI_GetProduct(t *testing.T) {
	h := newTestHandler(t, catalog.NewMemStore(catalog.SeedProducts()))

	rr, env := do(t, h, http.MethodGet, "/api/products/2", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, env.Success)
	assert.Nil(t, env.Count)
	assert.Equal(t, catalog.SeedProducts()[1], decodeData[catalog.Product](t, env))

	for _, path := range []string{"/api/products/999", "/api/products/abc", "/api/products/0", "/api/products/-1"} {
		rr, env = do(t, h, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, rr.Code, path)
		assert.False(t, env.Success, path)
		assert.Equal(t, "Product not found", env.Error, path)
		assert.NotEmpty(t, env.RequestID, path)
	}
}

func TestAPI_CreateProduct(t *testing.T) {
	store := catalog.NewMemStore(catalog.SeedProducts())
	h := newTestHandler(t, store)

	rr, env := do(t, h, http.MethodPost, "/api/products",
		`{"name":"Webcam","price":59.99,"stock":12,"category":"Electronics"}`)

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.True(t, env.Success)
	created := decodeData[catalog.Product](t, env)
	assert.Equal(t, catalog.Product{ID: 6, Name: "Webcam", Price: 59.99, Stock: 12, Category: "Electronics"}, created)

	rr, env = do(t, h, http.MethodGet, "/api/products/6", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, created, decodeData[catalog.Product](t, env))

	_, env = do(t, h, http.MethodGet, "/api/products", "")
	assert.Equal(t, 6, *env.Count)
}

func TestAPI_CreateCoercesStrings(t *testing.T) {
	h := newTestHandler(t, catalog.NewMemStore(nil))

	rr, env := do(t, h, http.MethodPost, "/api/products", `{"name":"Desk Lamp","price":"19.5","stock":"7"}`)

	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, catalog.Product{ID: 1, Name: "Desk Lamp", Price: 19.5, Stock: 7, Category: "Uncategorized"},
		decodeData[catalog.Product](t, env))
}

func TestAPI_CreateInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		msg  string
	}{
		{name: "empty name", body: `{"name":"","price":10,"stock":5}`, msg: catalog.MsgMissingFields},
		{name: "missing stock", body: `{"name":"Pen","price":10}`, msg: catalog.MsgMissingFields},
		{name: "blank form price", body: `{"name":"Pen","price":"","stock":"5"}`, msg: catalog.MsgMissingFields},
		{name: "negative price", body: `{"name":"Pen","price":-3,"stock":5}`, msg: "Invalid field price: must be greater than or equal to 0"},
		{name: "non numeric price", body: `{"name":"Pen","price":"ten","stock":5}`, msg: "Invalid field price: must be a number"},
		{name: "bad json", body: `{"name":`, msg: "Invalid request body"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := catalog.NewMemStore(catalog.SeedProducts())
			h := newTestHandler(t, store)

			rr, env := do(t, h, http.MethodPost, "/api/products", tc.body)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.False(t, env.Success)
			assert.Equal(t, tc.msg, env.Error)

			all, err := store.List(context.Background())
			require.NoError(t, err)
			assert.Len(t, all, 5)
		})
	}
}

func TestAPI_UpdateProduct(t *testing.T) {
	h := newTestHandler(t, catalog.NewMemStore(catalog.SeedProducts()))

	rr, env := do(t, h, http.MethodPut, "/api/products/3", `{"stock":0}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, env.Success)
	assert.Equal(t, catalog.Product{ID: 3, Name: "Mechanical Keyboard", Price: 89.99, Stock: 0, Category: "Accessories"},
		decodeData[catalog.Product](t, env))

	rr, env = do(t, h, http.MethodPut, "/api/products/3", `{"name":"Keyboard","price":"79.99"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, catalog.Product{ID: 3, Name: "Keyboard", Price: 79.99, Stock: 0, Category: "Accessories"},
		decodeData[catalog.Product](t, env))

	rr, env = do(t, h, http.MethodPut, "/api/products/1", `{"category":""}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Electronics", decodeData[catalog.Product](t, env).Category)
}

func TestAPI_UpdateErrors(t *testing.T) {
	h := newTestHandler(t, catalog.NewMemStore(catalog.SeedProducts()))

	rr, env := do(t, h, http.MethodPut, "/api/products/999", `{"stock":1}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Product not found", env.Error)

	rr, env = do(t, h, http.MethodPut, "/api/products/1", `{"stock":-1}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid field stock: must be greater than or equal to 0", env.Error)

	rr, env = do(t, h, http.MethodPut, "/api/products/1", `{"stock":"many"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid field stock: must be a number", env.Error)
}

func TestAPI_DeleteProduct(t *testing.T) {
	h := newTestHandler(t, catalog.NewMemStore(catalog.SeedProducts()))

	rr, env := do(t, h, http.MethodDelete, "/api/products/3", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "Product deleted successfully", env.Message)

	rr, env = do(t, h, http.MethodDelete, "/api/products/3", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "Product not found", env.Error)

	rr, env = do(t, h, http.MethodPost, "/api/products", `{"name":"Webcam","price":59.99,"stock":12}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, int64(6), decodeData[catalog.Product](t, env).ID)
}

type failingStore struct {
	catalog.Store
	err error
}

func (f failingStore) Ping(context.Context) error { return f.err }

func (f failingStore) List(context.Context) ([]catalog.Product, error) { return nil, f.err }

func TestAPI_StoreFailure(t *testing.T) {
	h := newTestHandler(t, failingStore{Store: catalog.NewMemStore(nil), err: errors.New("db down")})

	rr, env := do(t, h, http.MethodGet, "/api/products", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Internal server error", env.Error)

	rr, env = do(t, h, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "not ready", env.Error)
}

func TestAPI_Boundary(t *testing.T) {
	h := newTestHandler(t, catalog.NewMemStore(nil))

	rr, _ := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr, _ = do(t, h, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	rr, _ = do(t, h, http.MethodGet, "/api/info", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"message":"CloudCart API","version":"1.2.3","environment":"test","timestamp":"2026-01-02T03:04:05Z"}`, rr.Body.String())

	rr, _ = do(t, h, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"healthy","environment":"test","timestamp":"2026-01-02T03:04:05Z"}`, rr.Body.String())

	rr, env := do(t, h, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Not found", env.Error)

	rr, env = do(t, h, http.MethodPatch, "/api/products/1", `{}`)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, "Method not allowed", env.Error)
}

func TestAPI_RequestIDPropagates(t *testing.T) {
	h := newTestHandler(t, catalog.NewMemStore(nil))

	req := httptest.NewRequest(http.MethodGet, "/api/products/1", nil)
	req.Header.Set("X-Request-Id", "req-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "req-123", rr.Header().Get("X-Request-Id"))
	assert.Contains(t, rr.Body.String(), `"request_id":"req-123"`)
}

func TestAPI_WriteRateLimit(t *testing.T) {
	h := newTestHandler(t, catalog.NewMemStore(catalog.SeedProducts()), func(s *catalog.Server, _ *catalog.HTTPDeps) {
		s.WriteLimiter = kit.NewIPRateLimiter(2, time.Minute)
	})

	body := `{"name":"Webcam","price":59.99,"stock":12}`
	for i := 0; i < 2; i++ {
		rr, _ := do(t, h, http.MethodPost, "/api/products", body)
		require.Equal(t, http.StatusCreated, rr.Code)
	}

	rr, env := do(t, h, http.MethodPost, "/api/products", body)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "Too many requests", env.Error)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))

	rr, _ = do(t, h, http.MethodGet, "/api/products", "")
	assert.Equal(t, http.StatusOK, rr.Code, "reads are not limited")
}

func TestAPI_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := newTestHandler(t, catalog.NewMemStore(catalog.SeedProducts()), func(_ *catalog.Server, d *catalog.HTTPDeps) {
		d.Registry = reg
		d.MetricsEnabled = true
		d.MetricsToken = "scrape-me"
	})

	rr, _ := do(t, h, http.MethodGet, "/api/products/1", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr, _ = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", "Bearer scrape-me")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="GET",route="/api/products/{id}",service="catalog",status="200"} 1`)
}

func TestAPI_CORS(t *testing.T) {
	h := newTestHandler(t, catalog.NewMemStore(nil), func(_ *catalog.Server, d *catalog.HTTPDeps) {
		d.AllowedOrigins = []string{"https://shop.example"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/products", nil)
	req.Header.Set("Origin", "https://shop.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "https://shop.example", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/products", bytes.NewReader(nil))
	req.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}
