package ports

import (
	"context"
	"time"

	"github.com/wadjakorntonsri/go-safelink/pkg/core/domain"
)

// TokenStore defines storage operations for safe-link records.
// Mutations of a single record must be atomic at the storage layer.
type TokenStore interface {
	Put(ctx context.Context, link *domain.Link) error // ErrDuplicateToken on collision
	Get(ctx context.Context, token string) (*domain.Link, error)
	IncrementClicks(ctx context.Context, token string) error
	MarkFirstViewed(ctx context.Context, token string, at time.Time) error // No-op when already set
	Dump(ctx context.Context) ([]domain.Link, error)                       // For migration
	Close() error
}

// ContentCollection lists the items a visitor may be sent to during verification.
type ContentCollection interface {
	Items(ctx context.Context) ([]domain.ContentItem, error)
}

// LinkIssuer mints tokens for destination URLs.
type LinkIssuer interface {
	Issue(ctx context.Context, originalURL string) (*domain.IssuedLink, error)
}

// RedirectResolver turns a token into its destination.
type RedirectResolver interface {
	Resolve(ctx context.Context, token string) (string, error)
}

// ClickAccountant records engagement off the critical path.
type ClickAccountant interface {
	RecordClick(token string)
	RecordHandshakeStart(ctx context.Context, token string) error
}

// LinkLookup is the operator view of a record.
type LinkLookup interface {
	Lookup(ctx context.Context, token string) (*domain.Link, error)
}

// LinkService defines the business logic operations served over HTTP.
type LinkService interface {
	LinkIssuer
	RedirectResolver
	LinkLookup
}
