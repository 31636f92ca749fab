package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wadjakorntonsri/go-safelink/pkg/adapters/content"
	"github.com/wadjakorntonsri/go-safelink/pkg/adapters/repository/memory"
	"github.com/wadjakorntonsri/go-safelink/pkg/config"
	"github.com/wadjakorntonsri/go-safelink/pkg/core/domain"
	"github.com/wadjakorntonsri/go-safelink/pkg/core/services"
	"github.com/wadjakorntonsri/go-safelink/pkg/ports"
)

type fixture struct {
	store   *memory.Repository
	clicks  *services.ClickAccountant
	handler http.Handler
}

func newFixture(t *testing.T, store ports.TokenStore) (http.Handler, *services.ClickAccountant) {
	t.Helper()
	cfg := config.Default()
	cfg.BaseURL = "https://safe.example"
	cfg.ContentURLs = []string{"https://content.example/one"}

	clicks := services.NewClickAccountant(store, nil, 1, 8)
	t.Cleanup(clicks.Close)
	service := services.NewLinkService(store, clicks, cfg.BaseURL)
	return NewRouter(cfg, service, clicks, content.FromConfig(cfg), nil, nil), clicks
}

func newMemoryFixture(t *testing.T) fixture {
	store := memory.NewRepository()
	h, clicks := newFixture(t, store)
	return fixture{store: store, clicks: clicks, handler: h}
}

func (f fixture) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func (f fixture) seed(t *testing.T, token, url string) {
	t.Helper()
	require.NoError(t, f.store.Put(context.Background(), &domain.Link{
		Token:       token,
		OriginalURL: url,
		CreatedAt:   time.Now().UTC(),
	}))
}

func TestCreateLink(t *testing.T) {
	f := newMemoryFixture(t)

	rr := f.do("POST", "/links", `{"originalUrl":"https://example.com/page"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var issued domain.IssuedLink
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &issued))
	assert.Len(t, issued.Token, 8)
	assert.Equal(t, "https://safe.example/s/"+issued.Token, issued.SafeLink)

	link, err := f.store.Get(context.Background(), issued.Token)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/page", link.OriginalURL)
	assert.Zero(t, link.Clicks)
	assert.Nil(t, link.FirstViewedAt)
}

func TestCreateLinkRejectsBadInput(t *testing.T) {
	f := newMemoryFixture(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "empty url", body: `{"originalUrl":""}`},
		{name: "missing field", body: `{}`},
		{name: "relative url", body: `{"originalUrl":"/somewhere"}`},
		{name: "script url", body: `{"originalUrl":"javascript:alert(1)"}`},
		{name: "not json", body: `originalUrl=https://example.com`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do("POST", "/links", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}

	links, err := f.store.Dump(context.Background())
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestRedirect(t *testing.T) {
	f := newMemoryFixture(t)
	f.seed(t, "abcd1234", "https://example.com/target")

	rr := f.do("GET", "/links/abcd1234", "")
	require.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "https://example.com/target", rr.Header().Get("Location"))

	f.clicks.Close()
	link, err := f.store.Get(context.Background(), "abcd1234")
	require.NoError(t, err)
	assert.EqualValues(t, 1, link.Clicks)
}

func TestRedirectUnknownAndMalformed(t *testing.T) {
	f := newMemoryFixture(t)

	rr := f.do("GET", "/links/doesnotexist", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid or expired link")

	rr = f.do("GET", "/links/bad%21token", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do("GET", "/links/"+strings.Repeat("a", 200), "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandshake(t *testing.T) {
	f := newMemoryFixture(t)
	f.seed(t, "abcd1234", "https://example.com")

	rr := f.do("GET", "/links/abcd1234/handshake?action=start", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success":true}`, rr.Body.String())

	first, err := f.store.Get(context.Background(), "abcd1234")
	require.NoError(t, err)
	require.NotNil(t, first.FirstViewedAt)

	rr = f.do("GET", "/links/abcd1234/handshake?action=start", "")
	require.Equal(t, http.StatusOK, rr.Code)

	second, err := f.store.Get(context.Background(), "abcd1234")
	require.NoError(t, err)
	assert.True(t, first.FirstViewedAt.Equal(*second.FirstViewedAt))
	assert.Zero(t, second.Clicks)
}

func TestHandshakeRejectsUnknownAction(t *testing.T) {
	f := newMemoryFixture(t)
	f.seed(t, "abcd1234", "https://example.com")

	for _, target := range []string{
		"/links/abcd1234/handshake",
		"/links/abcd1234/handshake?action=stop",
	} {
		rr := f.do("GET", target, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code, target)
	}

	link, err := f.store.Get(context.Background(), "abcd1234")
	require.NoError(t, err)
	assert.Nil(t, link.FirstViewedAt)
}

func TestHandshakeUnknownTokenIsQuiet(t *testing.T) {
	f := newMemoryFixture(t)

	rr := f.do("GET", "/links/nothere1/handshake?action=start", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

type failingStore struct {
	ports.TokenStore
}

func (failingStore) Put(context.Context, *domain.Link) error {
	return domain.Unavailable("put link", errors.New("connection refused"))
}

func (failingStore) Get(context.Context, string) (*domain.Link, error) {
	return nil, domain.Unavailable("get link", errors.New("connection refused"))
}

func (failingStore) Close() error { return nil }

func TestStorageFailureIsInternalError(t *testing.T) {
	h, _ := newFixture(t, failingStore{})
	f := fixture{handler: h}

	rr := f.do("POST", "/links", `{"originalUrl":"https://example.com"}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "connection refused")

	rr = f.do("GET", "/links/abcd1234", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "connection refused")
}

func TestGatewayPage(t *testing.T) {
	f := newMemoryFixture(t)

	rr := f.do("GET", "/s/abcd1234", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")
	body := rr.Body.String()
	assert.Contains(t, body, "abcd1234")
	assert.Contains(t, body, "content.example")

	rr = f.do("GET", "/s/", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHealthz(t *testing.T) {
	f := newMemoryFixture(t)

	rr := f.do("GET", "/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"message":"ok"}`, rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}
