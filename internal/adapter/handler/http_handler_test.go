package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/misprint/carddrop/internal/core/domain"
	"github.com/misprint/carddrop/internal/core/service"
	"github.com/misprint/carddrop/internal/port"
)

// Mock InventoryRepository
type mockStore struct {
	mu       sync.Mutex
	quantity int
	orders   int
	missing  bool
	lockErr  error
	beginErr error
	resetErr error
}

func (m *mockStore) Begin(ctx context.Context) (port.InventoryTx, error) {
	if m.beginErr != nil {
		return nil, m.beginErr
	}
	return &mockStoreTx{store: m}, nil
}

func (m *mockStore) GetItem(ctx context.Context, itemID string) (*domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.missing {
		return nil, nil
	}
	return &domain.Item{
		ID:       itemID,
		Name:     "test card",
		Quantity: m.quantity,
	}, nil
}

func (m *mockStore) Reset(ctx context.Context, itemID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resetErr != nil {
		return m.resetErr
	}
	if m.missing {
		return port.ErrItemNotFound
	}
	m.quantity = quantity
	m.orders = 0
	return nil
}

func (m *mockStore) CountOrders(ctx context.Context, itemID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders, nil
}

type mockStoreTx struct {
	store *mockStore
}

func (t *mockStoreTx) LockQuantity(ctx context.Context, itemID string) (int, error) {
	if t.store.lockErr != nil {
		return 0, t.store.lockErr
	}
	if t.store.missing {
		return 0, port.ErrItemNotFound
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.quantity, nil
}

func (t *mockStoreTx) DecrementAndRecordOrder(ctx context.Context, itemID string) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.quantity--
	t.store.orders++
	return nil
}

func (t *mockStoreTx) Commit() error   { return nil }
func (t *mockStoreTx) Rollback() error { return nil }

// Mock CacheRepository
type mockCache struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (m *mockCache) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen == nil {
		m.seen = make(map[string]bool)
	}
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}

func (m *mockCache) DeleteIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, key)
	return nil
}

func newTestMux(store *mockStore, cache port.CacheRepository) *http.ServeMux {
	hub := service.NewBroadcastHub(store)
	svc := service.NewPurchaseService(store, cache, hub, store.quantity)

	h := NewHTTPHandler(svc)
	feed := NewLiveFeedHandler(hub)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.HandleFunc("GET /status/{item_id}", h.Status)
	mux.HandleFunc("POST /buy/{item_id}", h.Buy)
	mux.HandleFunc("POST /reset/{item_id}", h.Reset)
	mux.HandleFunc("GET /events", feed.Stream)
	return mux
}

func doRequest(t *testing.T, mux *http.ServeMux, method, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if header != nil {
		req.Header = header
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorHTTPResponse {
	t.Helper()
	var body ErrorHTTPResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("invalid error body: %v", err)
	}
	return body
}

func TestStatusEndpoint(t *testing.T) {
	mux := newTestMux(&mockStore{quantity: 3}, nil)

	rec := doRequest(t, mux, http.MethodGet, "/status/card-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var item domain.Item
	if err := json.NewDecoder(rec.Body).Decode(&item); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if item.ID != "card-1" || item.Quantity != 3 {
		t.Errorf("unexpected snapshot: %+v", item)
	}
}

func TestStatusEndpoint_NotFound(t *testing.T) {
	mux := newTestMux(&mockStore{missing: true}, nil)

	rec := doRequest(t, mux, http.MethodGet, "/status/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.Error != "not_found" {
		t.Errorf("expected error code not_found, got %q", body.Error)
	}
}

func TestBuyEndpoint_Success(t *testing.T) {
	store := &mockStore{quantity: 1}
	mux := newTestMux(store, nil)

	rec := doRequest(t, mux, http.MethodPost, "/buy/card-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body PurchaseHTTPResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if body.ItemID != "card-1" {
		t.Errorf("expected item_id card-1, got %q", body.ItemID)
	}
	if store.quantity != 0 || store.orders != 1 {
		t.Errorf("expected quantity 0 / 1 order, got %d / %d", store.quantity, store.orders)
	}
}

func TestBuyEndpoint_SoldOut(t *testing.T) {
	mux := newTestMux(&mockStore{quantity: 0}, nil)

	rec := doRequest(t, mux, http.MethodPost, "/buy/card-1", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.Error != "sold_out" {
		t.Errorf("expected error code sold_out, got %q", body.Error)
	}
}

func TestBuyEndpoint_NotFound(t *testing.T) {
	mux := newTestMux(&mockStore{missing: true}, nil)

	rec := doRequest(t, mux, http.MethodPost, "/buy/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestBuyEndpoint_ServerBusy(t *testing.T) {
	mux := newTestMux(&mockStore{quantity: 1, lockErr: port.ErrLockUnavailable}, nil)

	rec := doRequest(t, mux, http.MethodPost, "/buy/card-1", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.Error != "server_busy" {
		t.Errorf("expected error code server_busy, got %q", body.Error)
	}
}

func TestBuyEndpoint_StoreUnavailable(t *testing.T) {
	store := &mockStore{
		quantity: 1,
		beginErr: fmt.Errorf("%w: %v", port.ErrStoreUnavailable, errors.New("connection refused")),
	}
	mux := newTestMux(store, nil)

	rec := doRequest(t, mux, http.MethodPost, "/buy/card-1", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.Error != "service_unavailable" {
		t.Errorf("expected error code service_unavailable, got %q", body.Error)
	}
}

func TestBuyEndpoint_RetryAfterBusyIsNotDuplicate(t *testing.T) {
	store := &mockStore{quantity: 1, lockErr: port.ErrLockUnavailable}
	mux := newTestMux(store, &mockCache{})

	header := http.Header{}
	header.Set("X-Request-ID", "req-retry")

	rec := doRequest(t, mux, http.MethodPost, "/buy/card-1", header)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}

	store.lockErr = nil
	rec = doRequest(t, mux, http.MethodPost, "/buy/card-1", header)
	if rec.Code != http.StatusOK {
		t.Fatalf("retry after server_busy: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if store.quantity != 0 || store.orders != 1 {
		t.Errorf("expected quantity 0 / 1 order, got %d / %d", store.quantity, store.orders)
	}
}

func TestBuyEndpoint_DuplicateRequest(t *testing.T) {
	mux := newTestMux(&mockStore{quantity: 5}, &mockCache{})

	header := http.Header{}
	header.Set("X-Request-ID", "req-abc")

	rec := doRequest(t, mux, http.MethodPost, "/buy/card-1", header)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", rec.Code)
	}

	rec = doRequest(t, mux, http.MethodPost, "/buy/card-1", header)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate request: expected 409, got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.Error != "duplicate_request" {
		t.Errorf("expected error code duplicate_request, got %q", body.Error)
	}
}

func TestResetEndpoint(t *testing.T) {
	store := &mockStore{quantity: 5}
	mux := newTestMux(store, nil)

	// Sell everything, then reset.
	for i := 0; i < 5; i++ {
		doRequest(t, mux, http.MethodPost, "/buy/card-1", nil)
	}
	if store.quantity != 0 {
		t.Fatalf("expected quantity 0 before reset, got %d", store.quantity)
	}

	rec := doRequest(t, mux, http.MethodPost, "/reset/card-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if store.quantity != 5 || store.orders != 0 {
		t.Errorf("expected quantity 5 / 0 orders after reset, got %d / %d", store.quantity, store.orders)
	}
}

func TestResetEndpoint_StoreUnavailable(t *testing.T) {
	store := &mockStore{
		quantity: 1,
		resetErr: fmt.Errorf("%w: %v", port.ErrStoreUnavailable, errors.New("connection refused")),
	}
	mux := newTestMux(store, nil)

	rec := doRequest(t, mux, http.MethodPost, "/reset/card-1", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.Error != "service_unavailable" {
		t.Errorf("expected error code service_unavailable, got %q", body.Error)
	}
}

func TestHealthEndpoint(t *testing.T) {
	mux := newTestMux(&mockStore{quantity: 1}, nil)

	rec := doRequest(t, mux, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
