package content

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/wadjakorntonsri/go-safelink/pkg/config"
	"github.com/wadjakorntonsri/go-safelink/pkg/core/domain"
	"github.com/wadjakorntonsri/go-safelink/pkg/ports"
)

const DefaultFeedTTL = time.Minute

// Static serves a fixed list of items.
type Static struct {
	items []domain.ContentItem
}

func NewStatic(urls []string) *Static {
	s := &Static{}
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			s.items = append(s.items, domain.ContentItem{Title: u, URL: u})
		}
	}
	return s
}

func (s *Static) Items(ctx context.Context) ([]domain.ContentItem, error) {
	out := make([]domain.ContentItem, len(s.items))
	copy(out, s.items)
	return out, nil
}

// Feed reads a JSON array of {"title","url"} from a remote endpoint and caches it.
type Feed struct {
	url    string
	client *http.Client
	ttl    time.Duration

	mu        sync.Mutex
	items     []domain.ContentItem
	fetchedAt time.Time
	now       func() time.Time
}

func NewFeed(url string, client *http.Client, ttl time.Duration) *Feed {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if ttl <= 0 {
		ttl = DefaultFeedTTL
	}
	return &Feed{url: url, client: client, ttl: ttl, now: time.Now}
}

func (f *Feed) Items(ctx context.Context) ([]domain.ContentItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.items != nil && f.now().Sub(f.fetchedAt) < f.ttl {
		return f.snapshot(), nil
	}

	items, err := f.fetch(ctx)
	if err != nil {
		if f.items != nil {
			// Fall back to the last good fetch.
			return f.snapshot(), nil
		}
		return nil, err
	}
	f.items = items
	f.fetchedAt = f.now()
	return f.snapshot(), nil
}

func (f *Feed) fetch(ctx context.Context) ([]domain.ContentItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch content feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch content feed: unexpected status %d", resp.StatusCode)
	}

	var raw []domain.ContentItem
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode content feed: %w", err)
	}

	items := make([]domain.ContentItem, 0, len(raw))
	for _, it := range raw {
		if strings.TrimSpace(it.URL) == "" {
			continue
		}
		items = append(items, it)
	}
	return items, nil
}

func (f *Feed) snapshot() []domain.ContentItem {
	out := make([]domain.ContentItem, len(f.items))
	copy(out, f.items)
	return out
}

// FromConfig prefers the feed when one is configured.
func FromConfig(cfg *config.Config) ports.ContentCollection {
	if cfg.ContentFeedURL != "" {
		return NewFeed(cfg.ContentFeedURL, nil, DefaultFeedTTL)
	}
	return NewStatic(cfg.ContentURLs)
}

var (
	_ ports.ContentCollection = (*Static)(nil)
	_ ports.ContentCollection = (*Feed)(nil)
)
