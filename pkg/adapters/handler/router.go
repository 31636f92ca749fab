package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ulule/limiter/v3"

	"github.com/wadjakorntonsri/go-safelink/pkg/config"
	"github.com/wadjakorntonsri/go-safelink/pkg/logging"
	"github.com/wadjakorntonsri/go-safelink/pkg/ports"
)

// NewRouter creates and configures the main application router.
// A nil limiterStore disables rate limiting.
func NewRouter(
	cfg *config.Config,
	service ports.LinkService,
	clicks ports.ClickAccountant,
	collection ports.ContentCollection,
	limiterStore limiter.Store,
	logger *slog.Logger,
) http.Handler {
	if logger == nil {
		logger = logging.NewNop()
	}

	// Initialize Handlers
	h := NewHTTPHandler(service, clicks, logger)
	gw := NewGatewayHandler(cfg, collection, logger)
	authHandler := NewAuthHandler(cfg, logger)

	// Initialize Middleware
	mw := NewMiddleware(cfg, logger)
	limit := func(next http.HandlerFunc) http.Handler { return next }
	if limiterStore != nil && cfg.RateLimit != "" {
		if rate, err := limiter.NewRateFromFormatted(cfg.RateLimit); err == nil {
			rl := RateLimit(limiterStore, rate, cfg.TrustProxy)
			limit = func(next http.HandlerFunc) http.Handler { return rl(next) }
		} else {
			logger.Warn("rate limiting disabled", "rate", cfg.RateLimit, "error", err)
		}
	}

	// Setup Router
	mux := http.NewServeMux()

	// Public Routes
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "ok"})
	})
	mux.Handle("POST /links", limit(h.Create))
	mux.HandleFunc("GET /links/{token}", h.Redirect)
	mux.Handle("GET /links/{token}/handshake", limit(h.Handshake))
	mux.HandleFunc("GET /s/{token}", gw.Page)
	mux.HandleFunc("GET /s/{$}", gw.Page)
	mux.HandleFunc("GET /auth/google/login", authHandler.Login)
	mux.HandleFunc("GET /auth/google/callback", authHandler.Callback)
	mux.HandleFunc("GET /auth/logout", authHandler.Logout)

	// Protected Routes
	protectedMux := http.NewServeMux()
	protectedMux.HandleFunc("GET /api/v1/links/{token}", h.Lookup)

	// protectedMux contains the full paths, so mounting at the prefix dispatches as-is.
	mux.Handle("/api/v1/", mw.AuthMiddleware(protectedMux))

	return mw.RequestLogger(mux)
}
