package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/wadjakorntonsri/go-safelink/pkg/adapters/content"
	repomemory "github.com/wadjakorntonsri/go-safelink/pkg/adapters/repository/memory"
	"github.com/wadjakorntonsri/go-safelink/pkg/config"
	"github.com/wadjakorntonsri/go-safelink/pkg/core/domain"
	"github.com/wadjakorntonsri/go-safelink/pkg/core/services"
	"github.com/wadjakorntonsri/go-safelink/pkg/logging"
)

func TestAuthMiddleware(t *testing.T) {
	cfg := &config.Config{JWTSecret: "operator-secret"}
	mw := NewMiddleware(cfg, nil)

	expired := signTestSession(t, cfg.JWTSecret, jwt.SigningMethodHS256, time.Now().Add(-time.Minute))

	tests := []struct {
		name         string
		path         string
		cookie       *http.Cookie
		wantStatus   int
		wantOperator string
	}{
		{name: "no session on api", path: "/api/v1/links/abcd1234", wantStatus: http.StatusUnauthorized},
		{name: "no session in browser", path: "/s/abcd1234", wantStatus: http.StatusTemporaryRedirect},
		{
			name:       "garbage session",
			path:       "/api/v1/links/abcd1234",
			cookie:     &http.Cookie{Name: sessionCookie, Value: "not-a-jwt"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "session under another cookie name",
			path:       "/api/v1/links/abcd1234",
			cookie:     &http.Cookie{Name: "session", Value: signTestSession(t, cfg.JWTSecret, jwt.SigningMethodHS256, time.Now().Add(time.Hour))},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "signed with another secret",
			path:       "/api/v1/links/abcd1234",
			cookie:     &http.Cookie{Name: sessionCookie, Value: signTestSession(t, "other", jwt.SigningMethodHS256, time.Now().Add(time.Hour))},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "non HS256 algorithm",
			path:       "/api/v1/links/abcd1234",
			cookie:     &http.Cookie{Name: sessionCookie, Value: signTestSession(t, cfg.JWTSecret, jwt.SigningMethodHS512, time.Now().Add(time.Hour))},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "expired session",
			path:       "/api/v1/links/abcd1234",
			cookie:     &http.Cookie{Name: sessionCookie, Value: expired},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:         "valid session",
			path:         "/api/v1/links/abcd1234",
			cookie:       &http.Cookie{Name: sessionCookie, Value: signTestSession(t, cfg.JWTSecret, jwt.SigningMethodHS256, time.Now().Add(time.Hour))},
			wantStatus:   http.StatusOK,
			wantOperator: "ops@example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}

			var operator string
			handler := mw.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				operator = UserEmail(r.Context())
				w.WriteHeader(http.StatusOK)
			}))
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("status: got %v want %v", rr.Code, tt.wantStatus)
			}
			if operator != tt.wantOperator {
				t.Errorf("operator: got %q want %q", operator, tt.wantOperator)
			}
			if tt.wantStatus == http.StatusTemporaryRedirect {
				if loc := rr.Header().Get("Location"); loc != "/auth/google/login" {
					t.Errorf("redirect: got %q", loc)
				}
			}
		})
	}
}

func TestOperatorLookup(t *testing.T) {
	cfg := config.Default()
	cfg.JWTSecret = "operator-secret"

	store := repomemory.NewRepository()
	created := time.Date(2024, 4, 5, 6, 7, 8, 0, time.UTC)
	viewed := created.Add(time.Minute)
	if err := store.Put(context.Background(), &domain.Link{
		Token: "abcd1234", OriginalURL: "https://example.com/a", CreatedAt: created, Clicks: 7, FirstViewedAt: &viewed,
	}); err != nil {
		t.Fatal(err)
	}
	clicks := services.NewClickAccountant(store, nil, 1, 4)
	defer clicks.Close()
	router := NewRouter(cfg, services.NewLinkService(store, clicks, cfg.BaseURL), clicks, content.NewStatic(nil), nil, nil)

	lookup := func(token string, withSession bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", "/api/v1/links/"+token, nil)
		if withSession {
			req.AddCookie(&http.Cookie{
				Name:  sessionCookie,
				Value: signTestSession(t, cfg.JWTSecret, jwt.SigningMethodHS256, time.Now().Add(time.Hour)),
			})
		}
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	if rr := lookup("abcd1234", false); rr.Code != http.StatusUnauthorized {
		t.Fatalf("without session: got %v", rr.Code)
	}

	rr := lookup("abcd1234", true)
	if rr.Code != http.StatusOK {
		t.Fatalf("with session: got %v: %s", rr.Code, rr.Body.String())
	}
	var got domain.Link
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode lookup body: %v", err)
	}
	if got.Token != "abcd1234" || got.OriginalURL != "https://example.com/a" || got.Clicks != 7 {
		t.Errorf("unexpected record: %+v", got)
	}
	if !got.CreatedAt.Equal(created) || got.FirstViewedAt == nil || !got.FirstViewedAt.Equal(viewed) {
		t.Errorf("unexpected timestamps: %+v", got)
	}

	if rr := lookup("missing1", true); rr.Code != http.StatusNotFound {
		t.Errorf("unknown token: got %v", rr.Code)
	}
	if rr := lookup("bad!token", true); rr.Code != http.StatusBadRequest {
		t.Errorf("malformed token: got %v", rr.Code)
	}
}

func TestRequestLogger(t *testing.T) {
	mw := NewMiddleware(&config.Config{}, nil)

	var seen string
	handler := mw.RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.RequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	t.Run("generates id", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest("GET", "/healthz", nil))

		if rr.Code != http.StatusTeapot {
			t.Errorf("status: got %v want %v", rr.Code, http.StatusTeapot)
		}
		id := rr.Header().Get("X-Request-ID")
		if id == "" || id != seen {
			t.Errorf("request id not propagated: header %q context %q", id, seen)
		}
	})

	t.Run("keeps client id", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/healthz", nil)
		req.Header.Set("X-Request-ID", "client-id")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if got := rr.Header().Get("X-Request-ID"); got != "client-id" {
			t.Errorf("got request id %q want %q", got, "client-id")
		}
	})
}

func rateLimited(t *testing.T, trustProxy bool) http.Handler {
	t.Helper()
	rate, err := limiter.NewRateFromFormatted("2-M")
	if err != nil {
		t.Fatal(err)
	}
	return RateLimit(memory.NewStore(), rate, trustProxy)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

// countAccepted sends n requests from one connection address, each with a fresh X-Forwarded-For.
func countAccepted(t *testing.T, handler http.Handler, n int) int {
	t.Helper()
	accepted := 0
	for i := 0; i < n; i++ {
		req := httptest.NewRequest("POST", "/links", nil)
		req.RemoteAddr = "203.0.113.7:1234"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i+1))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code == http.StatusOK {
			accepted++
		} else if rr.Code != http.StatusTooManyRequests {
			t.Errorf("request %d: unexpected status %d", i+1, rr.Code)
		}
	}
	return accepted
}

func TestRateLimit(t *testing.T) {
	handler := rateLimited(t, false)

	want := []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}
	for i, status := range want {
		req := httptest.NewRequest("POST", "/links", nil)
		req.RemoteAddr = "203.0.113.7:1234"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != status {
			t.Errorf("request %d: got %v want %v", i+1, rr.Code, status)
		}
	}
}

func TestRateLimitIgnoresForwardedForByDefault(t *testing.T) {
	if got := countAccepted(t, rateLimited(t, false), 20); got != 2 {
		t.Errorf("spoofed X-Forwarded-For: %d accepted, want 2", got)
	}
}

func TestRateLimitTrustsForwardedForBehindProxy(t *testing.T) {
	if got := countAccepted(t, rateLimited(t, true), 20); got != 20 {
		t.Errorf("distinct forwarded clients: %d accepted, want 20", got)
	}
}

func signTestSession(t *testing.T, secret string, method jwt.SigningMethod, expires time.Time) string {
	t.Helper()
	claims := &jwt.RegisteredClaims{
		Subject:   "ops@example.com",
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign session: %v", err)
	}
	return signed
}
