package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/auth"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/cart"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/clients"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/config"
	"github.com/andreasstove999/ecommerce-system/storefront-go/internal/session"
)

type recordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   string
}

// stubBackend plays the cart API: it answers each path with a canned status
// and body and records every request.
type stubBackend struct {
	mu       sync.Mutex
	replies  map[string]stubReply
	requests []recordedRequest
}

type stubReply struct {
	status int
	body   string
}

func newStubBackend(t *testing.T) (*stubBackend, *httptest.Server) {
	t.Helper()
	b := &stubBackend{replies: map[string]stubReply{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		b.mu.Lock()
		b.requests = append(b.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Header: r.Header.Clone(),
			Body:   string(body),
		})
		reply, ok := b.replies[r.Method+" "+r.URL.Path]
		b.mu.Unlock()
		if !ok {
			reply = stubReply{status: http.StatusOK, body: `{"items":[]}`}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(reply.status)
		_, _ = w.Write([]byte(reply.body))
	}))
	t.Cleanup(srv.Close)
	return b, srv
}

func (b *stubBackend) on(method, path string, status int, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replies[method+" "+path] = stubReply{status: status, body: body}
}

func (b *stubBackend) recorded() []recordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]recordedRequest(nil), b.requests...)
}

func newRouterWithBaseURL(baseURL string) http.Handler {
	logger := zap.NewNop()
	httpClient := &http.Client{Timeout: 5 * time.Second}
	base := clients.NewClient("cart-api", baseURL, httpClient)

	sessions := session.NewRegistry(auth.NewMemoryStore(), clients.NewCartClient(base), cart.Options{}, logger)

	return NewRouter(Deps{
		Logger:       logger,
		Cfg:          config.Config{CORSAllowOrigins: []string{"*"}},
		Sessions:     sessions,
		HealthProbes: []clients.HealthProbe{{Name: "cart-api", Client: base, Path: "/health"}},
	})
}

func do(t *testing.T, h http.Handler, method, path, sid, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if sid != "" {
		req.Header.Set("X-Session-Id", sid)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func login(t *testing.T, h http.Handler, sid string) {
	t.Helper()
	rr := do(t, h, http.MethodPost, "/me/session", sid, `{"token":"tok-`+sid+`","user":{"id":"u1"}}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
}

func decodeMap(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	return body
}

const seededCart = `{"items":[{"id":"a","productRef":"p1","title":"Mug","unitPrice":"100","quantity":2},{"id":"b","productRef":"p2","unitPrice":"50","quantity":1}]}`

func TestHealthRoute(t *testing.T) {
	router := newRouterWithBaseURL("http://example.com")

	rr := do(t, router, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeMap(t, rr)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "storefront", body["service"])
}

func TestUpstreamHealth(t *testing.T) {
	backend, srv := newStubBackend(t)
	backend.on(http.MethodGet, "/health", http.StatusServiceUnavailable, ``)
	router := newRouterWithBaseURL(srv.URL)

	rr := do(t, router, http.MethodGet, "/health/upstreams", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeMap(t, rr)
	assert.Equal(t, "degraded", body["status"])
}

func TestRequireSessionIDMiddleware(t *testing.T) {
	router := newRouterWithBaseURL("http://example.com")

	rr := do(t, router, http.MethodGet, "/me/cart", "", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	body := decodeMap(t, rr)
	assert.NotNil(t, body["error"])
	assert.NotEmpty(t, body["correlationId"])
}

func TestCartWithoutLoginShortCircuits(t *testing.T) {
	backend, srv := newStubBackend(t)
	router := newRouterWithBaseURL(srv.URL)

	rr := do(t, router, http.MethodGet, "/me/cart", "s1", "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	body := decodeMap(t, rr)
	assert.Equal(t, "LOGIN_REQUIRED", body["kind"])
	assert.Equal(t, false, body["retryable"])
	assert.Empty(t, backend.recorded())

	snap := decodeMap(t, do(t, router, http.MethodGet, "/me/cart/snapshot", "s1", ""))
	errView := snap["error"].(map[string]any)
	assert.Equal(t, "LOGIN_REQUIRED", errView["kind"])
}

func TestFetchCartReturnsSnapshotAndTotals(t *testing.T) {
	backend, srv := newStubBackend(t)
	backend.on(http.MethodGet, "/cart", http.StatusOK, seededCart)
	router := newRouterWithBaseURL(srv.URL)
	login(t, router, "s1")

	req := httptest.NewRequest(http.MethodGet, "/me/cart", nil)
	req.Header.Set("X-Session-Id", "s1")
	req.Header.Set("X-Correlation-Id", "cid-123")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	body := decodeMap(t, rr)
	assert.Len(t, body["items"], 2)
	assert.Equal(t, false, body["loading"])
	assert.Nil(t, body["error"])
	totals := body["totals"].(map[string]any)
	assert.Equal(t, "250", totals["subtotal"])
	assert.Equal(t, "50", totals["discount"])
	assert.Equal(t, "15", totals["deliveryFee"])
	assert.Equal(t, "215", totals["total"])

	reqs := backend.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, "Bearer tok-s1", reqs[0].Header.Get("Authorization"))
	assert.Equal(t, "cid-123", reqs[0].Header.Get("X-Correlation-Id"))
}

func TestSessionsAreIsolated(t *testing.T) {
	backend, srv := newStubBackend(t)
	backend.on(http.MethodGet, "/cart", http.StatusOK, seededCart)
	router := newRouterWithBaseURL(srv.URL)
	login(t, router, "s1")

	require.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/me/cart", "s1", "").Code)

	other := decodeMap(t, do(t, router, http.MethodGet, "/me/cart/snapshot", "s2", ""))
	assert.Empty(t, other["items"])
}

func TestUpdateItemDeltaAndQuantity(t *testing.T) {
	backend, srv := newStubBackend(t)
	backend.on(http.MethodGet, "/cart", http.StatusOK, seededCart)
	backend.on(http.MethodPatch, "/cart/items", http.StatusOK, seededCart)
	router := newRouterWithBaseURL(srv.URL)
	login(t, router, "s1")
	require.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/me/cart", "s1", "").Code)

	rr := do(t, router, http.MethodPatch, "/me/cart/items/b", "s1", `{"delta":-1}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rr = do(t, router, http.MethodPatch, "/me/cart/items/a", "s1", `{"quantity":5}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	reqs := backend.recorded()
	require.Len(t, reqs, 3)
	assert.JSONEq(t, `{"itemId":"b","quantity":1}`, reqs[1].Body, "quantity is floored at 1")
	assert.JSONEq(t, `{"itemId":"a","quantity":5}`, reqs[2].Body)

	rr = do(t, router, http.MethodPatch, "/me/cart/items/a", "s1", `{}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr = do(t, router, http.MethodPatch, "/me/cart/items/zzz", "s1", `{"delta":1}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Len(t, backend.recorded(), 3)
}

func TestFailedRemoveKeepsItems(t *testing.T) {
	backend, srv := newStubBackend(t)
	backend.on(http.MethodGet, "/cart", http.StatusOK, seededCart)
	backend.on(http.MethodDelete, "/cart/items/a", http.StatusInternalServerError, `{"message":"db down"}`)
	router := newRouterWithBaseURL(srv.URL)
	login(t, router, "s1")
	require.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/me/cart", "s1", "").Code)

	rr := do(t, router, http.MethodDelete, "/me/cart/items/a", "s1", "")
	require.Equal(t, http.StatusBadGateway, rr.Code)
	body := decodeMap(t, rr)
	assert.Equal(t, "SERVER", body["kind"])
	assert.Equal(t, true, body["retryable"])

	snap := decodeMap(t, do(t, router, http.MethodGet, "/me/cart/snapshot", "s1", ""))
	assert.Len(t, snap["items"], 2)
	assert.Equal(t, "SERVER", snap["error"].(map[string]any)["kind"])
}

func TestAddItemValidation(t *testing.T) {
	backend, srv := newStubBackend(t)
	router := newRouterWithBaseURL(srv.URL)
	login(t, router, "s1")

	rr := do(t, router, http.MethodPost, "/me/cart/items", "s1", `{"productRef":"p1","quantity":0}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	rr = do(t, router, http.MethodPost, "/me/cart/items", "s1", `not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, backend.recorded())

	backend.on(http.MethodPost, "/cart/items", http.StatusOK, seededCart)
	rr = do(t, router, http.MethodPost, "/me/cart/items", "s1", `{"productRef":"p1","quantity":2}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decodeMap(t, rr)["items"], 2)
}

const validCheckoutBody = `{"email":"ada@example.com","phone":"+4512345678","shipping":{"street":"Main 1","city":"Aarhus","state":"MJ","zip":"8000","country":"DK"}}`

func TestCheckoutResetsCart(t *testing.T) {
	backend, srv := newStubBackend(t)
	backend.on(http.MethodGet, "/cart", http.StatusOK, seededCart)
	backend.on(http.MethodPost, "/cart/checkout", http.StatusCreated, `{"orderId":"o-1","status":"pending","url":"https://pay.example/s/1"}`)
	router := newRouterWithBaseURL(srv.URL)
	login(t, router, "s1")
	require.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/me/cart", "s1", "").Code)

	rr := do(t, router, http.MethodPost, "/me/cart/checkout", "s1", validCheckoutBody)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	body := decodeMap(t, rr)
	order := body["order"].(map[string]any)
	assert.Equal(t, "o-1", order["orderId"])
	assert.Equal(t, "https://pay.example/s/1", order["url"])
	assert.Empty(t, body["cart"].(map[string]any)["items"])
}

func TestCheckoutValidationAndDecline(t *testing.T) {
	backend, srv := newStubBackend(t)
	backend.on(http.MethodPost, "/cart/checkout", http.StatusPaymentRequired, `{"message":"card declined"}`)
	router := newRouterWithBaseURL(srv.URL)
	login(t, router, "s1")

	rr := do(t, router, http.MethodPost, "/me/cart/checkout", "s1", `{"email":"nope"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	fields := decodeMap(t, rr)["fields"].(map[string]any)
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "zip")
	assert.Empty(t, backend.recorded())

	rr = do(t, router, http.MethodPost, "/me/cart/checkout", "s1", validCheckoutBody)
	require.Equal(t, http.StatusPaymentRequired, rr.Code)
	assert.Equal(t, "PAYMENT_DECLINED", decodeMap(t, rr)["kind"])
}

func TestLogoutClearsSession(t *testing.T) {
	backend, srv := newStubBackend(t)
	backend.on(http.MethodGet, "/cart", http.StatusOK, seededCart)
	router := newRouterWithBaseURL(srv.URL)
	login(t, router, "s1")
	require.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/me/cart", "s1", "").Code)

	require.Equal(t, http.StatusNoContent, do(t, router, http.MethodDelete, "/me/session", "s1", "").Code)

	status := decodeMap(t, do(t, router, http.MethodGet, "/me/session", "s1", ""))
	assert.Equal(t, false, status["authenticated"])
	snap := decodeMap(t, do(t, router, http.MethodGet, "/me/cart/snapshot", "s1", ""))
	assert.Empty(t, snap["items"])
	assert.Equal(t, http.StatusUnauthorized, do(t, router, http.MethodGet, "/me/cart", "s1", "").Code)
}

func TestLoginRequiresToken(t *testing.T) {
	router := newRouterWithBaseURL("http://example.com")
	rr := do(t, router, http.MethodPost, "/me/session", "s1", `{"token":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCORSPreflight(t *testing.T) {
	router := newRouterWithBaseURL("http://example.com")

	req := httptest.NewRequest(http.MethodOptions, "/me/cart", nil)
	req.Header.Set("Origin", "http://shop.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "http://shop.example", rr.Header().Get("Access-Control-Allow-Origin"))
}
