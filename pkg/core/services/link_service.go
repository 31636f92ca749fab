package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wadjakorntonsri/go-safelink/pkg/core/domain"
	"github.com/wadjakorntonsri/go-safelink/pkg/ports"
)

// DefaultIssueAttempts bounds regeneration on token collision.
const DefaultIssueAttempts = 3

// lookupTimeout bounds a shared lookup, which outlives any single caller.
const lookupTimeout = 5 * time.Second

type LinkService struct {
	store    ports.TokenStore
	clicks   ports.ClickAccountant
	baseURL  string
	attempts int
	newToken func() (string, error)
	now      func() time.Time
	logger   *slog.Logger

	lookups singleflight.Group
}

type Option func(*LinkService)

// WithTokenGenerator replaces the random token source.
func WithTokenGenerator(fn func() (string, error)) Option {
	return func(s *LinkService) {
		if fn != nil {
			s.newToken = fn
		}
	}
}

func WithAttempts(n int) Option {
	return func(s *LinkService) {
		if n > 0 {
			s.attempts = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *LinkService) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *LinkService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewLinkService(store ports.TokenStore, clicks ports.ClickAccountant, baseURL string, opts ...Option) *LinkService {
	s := &LinkService{
		store:    store,
		clicks:   clicks,
		baseURL:  strings.TrimRight(baseURL, "/"),
		attempts: DefaultIssueAttempts,
		newToken: NewTokenGenerator(MinTokenBytes),
		now:      time.Now,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clicks == nil {
		s.clicks = nopAccountant{}
	}
	return s
}

// Issue validates the destination and persists a record under a fresh token.
func (s *LinkService) Issue(ctx context.Context, originalURL string) (*domain.IssuedLink, error) {
	originalURL = strings.TrimSpace(originalURL)
	if err := ValidateDestination(originalURL); err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= s.attempts; attempt++ {
		token, err := s.newToken()
		if err != nil {
			return nil, fmt.Errorf("generate token: %w", err)
		}

		link := &domain.Link{
			Token:       token,
			OriginalURL: originalURL,
			CreatedAt:   s.now().UTC(),
		}
		err = s.store.Put(ctx, link)
		if err == nil {
			s.logger.Info("link issued", "token", token)
			return &domain.IssuedLink{Token: token, SafeLink: s.SafeLink(token)}, nil
		}
		if !errors.Is(err, domain.ErrDuplicateToken) {
			return nil, err
		}
		s.logger.Warn("token collision, regenerating", "attempt", attempt)
	}

	return nil, fmt.Errorf("%w after %d attempts", domain.ErrIssuanceFailed, s.attempts)
}

// SafeLink is the gateway URL a visitor is given for token.
func (s *LinkService) SafeLink(token string) string {
	return s.baseURL + "/s/" + token
}

// Resolve returns the destination for token. The click is queued, never awaited.
func (s *LinkService) Resolve(ctx context.Context, token string) (string, error) {
	if err := ValidateToken(token); err != nil {
		return "", err
	}

	// Concurrent resolves of a hot token share one store read. The read is
	// detached from the caller so one visitor leaving cannot fail the others.
	ch := s.lookups.DoChan(token, func() (interface{}, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()
		return s.store.Get(lookupCtx, token)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	if res.Err != nil {
		return "", res.Err
	}
	link := res.Val.(*domain.Link)

	s.clicks.RecordClick(token)
	return link.OriginalURL, nil
}

// Lookup returns the full record for operators.
func (s *LinkService) Lookup(ctx context.Context, token string) (*domain.Link, error) {
	if err := ValidateToken(token); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, token)
}

// ValidateDestination accepts absolute http and https URLs only.
func ValidateDestination(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: original url is required", domain.ErrValidation)
	}
	if !isValidURL(raw) {
		return fmt.Errorf("%w: original url must be an absolute http or https url", domain.ErrValidation)
	}
	return nil
}

func isValidURL(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

type nopAccountant struct{}

func (nopAccountant) RecordClick(string) {}

func (nopAccountant) RecordHandshakeStart(context.Context, string) error { return nil }

var (
	_ ports.LinkIssuer       = (*LinkService)(nil)
	_ ports.RedirectResolver = (*LinkService)(nil)
	_ ports.LinkLookup       = (*LinkService)(nil)
	_ ports.LinkService      = (*LinkService)(nil)
)
