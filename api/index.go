package handler

import (
	"net/http"

	"github.com/wadjakorntonsri/go-safelink/pkg/adapters/content"
	"github.com/wadjakorntonsri/go-safelink/pkg/adapters/handler"
	"github.com/wadjakorntonsri/go-safelink/pkg/adapters/repository"
	"github.com/wadjakorntonsri/go-safelink/pkg/config"
	"github.com/wadjakorntonsri/go-safelink/pkg/core/services"
	"github.com/wadjakorntonsri/go-safelink/pkg/logging"
)

var mux http.Handler

func init() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: "json"})
	if err != nil {
		panic(err)
	}

	// Vercel's edge always fronts this entrypoint and sets X-Forwarded-For.
	cfg.TrustProxy = true

	// Note: On Vercel, db.sqlite is ephemeral unless using a remote SQL/Turso URL in DATABASE_URL
	store, err := repository.Open(cfg)
	if err != nil {
		panic(err)
	}
	limiterStore, err := repository.LimiterStore(store)
	if err != nil {
		panic(err)
	}

	clicks := services.NewClickAccountant(store, logger, 1, cfg.ClickQueueSize)
	service := services.NewLinkService(store, clicks, cfg.BaseURL,
		services.WithTokenGenerator(services.NewTokenGenerator(cfg.TokenBytes)),
		services.WithAttempts(cfg.IssueAttempts),
		services.WithLogger(logger),
	)
	mux = handler.NewRouter(cfg, service, clicks, content.FromConfig(cfg), limiterStore, logger)
}

// Handler is the entrypoint for Vercel
func Handler(w http.ResponseWriter, r *http.Request) {
	mux.ServeHTTP(w, r)
}
