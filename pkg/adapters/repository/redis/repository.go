package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wadjakorntonsri/go-safelink/pkg/core/domain"
	"github.com/wadjakorntonsri/go-safelink/pkg/ports"
)

const keyPrefix = "safelink:link:"

// Each script touches one hash, so Redis runs it atomically.
var (
	putScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], 'original_url', ARGV[1], 'created_at', ARGV[2], 'clicks', ARGV[3])
if ARGV[4] ~= '' then
  redis.call('HSET', KEYS[1], 'first_viewed_at', ARGV[4])
end
return 1`)

	incrScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
return redis.call('HINCRBY', KEYS[1], 'clicks', 1)`)

	markScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
return redis.call('HSETNX', KEYS[1], 'first_viewed_at', ARGV[1])`)
)

type RedisRepository struct {
	client *redis.Client
}

func NewRedisRepository(redisURL string) (*RedisRepository, error) {
	opt, err := parseOptions(redisURL)
	if err != nil {
		return nil, err
	}
	opt.PoolSize = 10
	opt.MinIdleConns = 2

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisRepository{client: client}, nil
}

// parseOptions accepts a redis:// URL or a bare host:port.
func parseOptions(redisURL string) (*redis.Options, error) {
	if strings.Contains(redisURL, "://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return opt, nil
	}
	return &redis.Options{Addr: redisURL}, nil
}

// Client exposes the connection for other Redis-backed components.
func (r *RedisRepository) Client() *redis.Client {
	return r.client
}

func (r *RedisRepository) Put(ctx context.Context, link *domain.Link) error {
	firstViewed := ""
	if link.FirstViewedAt != nil {
		firstViewed = link.FirstViewedAt.UTC().Format(time.RFC3339Nano)
	}

	created, err := putScript.Run(ctx, r.client, []string{keyPrefix + link.Token},
		link.OriginalURL,
		link.CreatedAt.UTC().Format(time.RFC3339Nano),
		link.Clicks,
		firstViewed,
	).Int()
	if err != nil {
		return domain.Unavailable("put link", err)
	}
	if created == 0 {
		return domain.ErrDuplicateToken
	}
	return nil
}

func (r *RedisRepository) Get(ctx context.Context, token string) (*domain.Link, error) {
	fields, err := r.client.HGetAll(ctx, keyPrefix+token).Result()
	if err != nil {
		return nil, domain.Unavailable("get link", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrNotFound
	}
	link, err := decode(token, fields)
	if err != nil {
		return nil, domain.Unavailable("get link", err)
	}
	return link, nil
}

func (r *RedisRepository) IncrementClicks(ctx context.Context, token string) error {
	n, err := incrScript.Run(ctx, r.client, []string{keyPrefix + token}).Int64()
	if err != nil {
		return domain.Unavailable("increment clicks", err)
	}
	if n < 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *RedisRepository) MarkFirstViewed(ctx context.Context, token string, at time.Time) error {
	n, err := markScript.Run(ctx, r.client, []string{keyPrefix + token}, at.UTC().Format(time.RFC3339Nano)).Int64()
	if err != nil {
		return domain.Unavailable("mark first viewed", err)
	}
	if n < 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *RedisRepository) Dump(ctx context.Context) ([]domain.Link, error) {
	var links []domain.Link
	iter := r.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		token := strings.TrimPrefix(iter.Val(), keyPrefix)
		link, err := r.Get(ctx, token)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		links = append(links, *link)
	}
	if err := iter.Err(); err != nil {
		return nil, domain.Unavailable("dump links", err)
	}
	sort.Slice(links, func(i, j int) bool { return links[i].CreatedAt.Before(links[j].CreatedAt) })
	return links, nil
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}

func decode(token string, fields map[string]string) (*domain.Link, error) {
	link := &domain.Link{Token: token, OriginalURL: fields["original_url"]}

	createdAt, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return nil, fmt.Errorf("decode created_at: %w", err)
	}
	link.CreatedAt = createdAt

	if raw := fields["clicks"]; raw != "" {
		clicks, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decode clicks: %w", err)
		}
		link.Clicks = clicks
	}

	if raw := fields["first_viewed_at"]; raw != "" {
		at, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("decode first_viewed_at: %w", err)
		}
		link.FirstViewedAt = &at
	}
	return link, nil
}

var _ ports.TokenStore = (*RedisRepository)(nil)
