package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wadjakorntonsri/go-safelink/pkg/core/domain"
	"github.com/wadjakorntonsri/go-safelink/pkg/ports"
)

// Repository keeps records in process memory. Nothing survives a restart.
type Repository struct {
	mu    sync.Mutex
	links map[string]*domain.Link
}

func NewRepository() *Repository {
	return &Repository{links: make(map[string]*domain.Link)}
}

func (r *Repository) Put(ctx context.Context, link *domain.Link) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.links[link.Token]; ok {
		return domain.ErrDuplicateToken
	}
	r.links[link.Token] = clone(link)
	return nil
}

func (r *Repository) Get(ctx context.Context, token string) (*domain.Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	link, ok := r.links[token]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clone(link), nil
}

func (r *Repository) IncrementClicks(ctx context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	link, ok := r.links[token]
	if !ok {
		return domain.ErrNotFound
	}
	link.Clicks++
	return nil
}

func (r *Repository) MarkFirstViewed(ctx context.Context, token string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	link, ok := r.links[token]
	if !ok {
		return domain.ErrNotFound
	}
	if link.FirstViewedAt == nil {
		link.FirstViewedAt = &at
	}
	return nil
}

func (r *Repository) Dump(ctx context.Context) ([]domain.Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	links := make([]domain.Link, 0, len(r.links))
	for _, l := range r.links {
		links = append(links, *clone(l))
	}
	sort.Slice(links, func(i, j int) bool { return links[i].CreatedAt.Before(links[j].CreatedAt) })
	return links, nil
}

func (r *Repository) Close() error { return nil }

func clone(l *domain.Link) *domain.Link {
	cp := *l
	if l.FirstViewedAt != nil {
		at := *l.FirstViewedAt
		cp.FirstViewedAt = &at
	}
	return &cp
}

var _ ports.TokenStore = (*Repository)(nil)
