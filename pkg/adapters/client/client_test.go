package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wadjakorntonsri/go-safelink/pkg/adapters/handler"
	"github.com/wadjakorntonsri/go-safelink/pkg/adapters/repository/memory"
	"github.com/wadjakorntonsri/go-safelink/pkg/config"
	"github.com/wadjakorntonsri/go-safelink/pkg/core/domain"
	"github.com/wadjakorntonsri/go-safelink/pkg/core/services"
)

func newServer(t *testing.T) (*httptest.Server, *memory.Repository) {
	t.Helper()
	store := memory.NewRepository()
	cfg := config.Default()
	clicks := services.NewClickAccountant(store, nil, 1, 8)
	t.Cleanup(clicks.Close)
	service := services.NewLinkService(store, clicks, cfg.BaseURL)
	srv := httptest.NewServer(handler.NewRouter(cfg, service, clicks, nil, nil, nil))
	t.Cleanup(srv.Close)
	return srv, store
}

func TestClientRoundTrip(t *testing.T) {
	srv, store := newServer(t)
	c := New(srv.URL+"/", nil)
	ctx := context.Background()

	issued, err := c.Issue(ctx, "https://example.com/landing")
	require.NoError(t, err)
	require.NotEmpty(t, issued.Token)

	require.NoError(t, c.StartHandshake(ctx, issued.Token))
	link, err := store.Get(ctx, issued.Token)
	require.NoError(t, err)
	assert.NotNil(t, link.FirstViewedAt)

	dest, err := c.Resolve(ctx, issued.Token)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/landing", dest)
}

func TestClientErrors(t *testing.T) {
	srv, _ := newServer(t)
	c := New(srv.URL, nil)
	ctx := context.Background()

	_, err := c.Issue(ctx, "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = c.Resolve(ctx, "doesnotexist")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = c.Resolve(ctx, "bad!token")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestHTTPOpener(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.URL.Path == "/gone" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	o := NewHTTPOpener(srv.Client())
	require.NoError(t, o.Open(context.Background(), domain.ContentItem{URL: srv.URL + "/ok"}))
	assert.Error(t, o.Open(context.Background(), domain.ContentItem{URL: srv.URL + "/gone"}))
	assert.Equal(t, 2, hits)
}
