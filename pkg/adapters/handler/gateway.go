package handler

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/wadjakorntonsri/go-safelink/pkg/config"
	"github.com/wadjakorntonsri/go-safelink/pkg/core/domain"
	"github.com/wadjakorntonsri/go-safelink/pkg/logging"
	"github.com/wadjakorntonsri/go-safelink/pkg/ports"
)

//go:embed templates/gateway.html
var templateFS embed.FS

var gatewayTemplate = template.Must(template.ParseFS(templateFS, "templates/gateway.html"))

// GatewayHandler serves the visitor page that runs the countdown and verification flow.
type GatewayHandler struct {
	countdownSeconds int
	collection       ports.ContentCollection
	logger           *slog.Logger
}

type gatewayPage struct {
	Token            string
	CountdownSeconds int
	Items            []domain.ContentItem
}

func NewGatewayHandler(cfg *config.Config, collection ports.ContentCollection, logger *slog.Logger) *GatewayHandler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &GatewayHandler{
		countdownSeconds: cfg.CountdownSeconds,
		collection:       collection,
		logger:           logger,
	}
}

// Page renders the gateway. An empty token makes the page resume from the visitor's kept token.
func (g *GatewayHandler) Page(w http.ResponseWriter, r *http.Request) {
	page := gatewayPage{
		Token:            r.PathValue("token"),
		CountdownSeconds: g.countdownSeconds,
		Items:            []domain.ContentItem{},
	}
	if g.collection != nil {
		items, err := g.collection.Items(r.Context())
		if err != nil {
			logging.FromContext(r.Context(), g.logger).Warn("content unavailable", "error", err)
		} else if items != nil {
			page.Items = items
		}
	}

	var buf bytes.Buffer
	if err := gatewayTemplate.Execute(&buf, page); err != nil {
		logging.FromContext(r.Context(), g.logger).Error("render gateway", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}
