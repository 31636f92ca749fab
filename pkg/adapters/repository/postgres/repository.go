package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/wadjakorntonsri/go-safelink/pkg/core/domain"
	"github.com/wadjakorntonsri/go-safelink/pkg/ports"
)

const uniqueViolation = "23505"

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(databaseURL string) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &PostgresRepository{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS links (
		id BIGSERIAL PRIMARY KEY,
		token TEXT NOT NULL UNIQUE,
		original_url TEXT NOT NULL,
		clicks BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		first_viewed_at TIMESTAMPTZ
	)`
	_, err := db.ExecContext(ctx, query)
	return err
}

func (p *PostgresRepository) Put(ctx context.Context, link *domain.Link) error {
	query := `INSERT INTO links (token, original_url, clicks, created_at, first_viewed_at)
	          VALUES ($1, $2, $3, $4, $5)`

	_, err := p.db.ExecContext(ctx, query, link.Token, link.OriginalURL, link.Clicks, link.CreatedAt, link.FirstViewedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return domain.ErrDuplicateToken
		}
		return domain.Unavailable("put link", err)
	}
	return nil
}

func (p *PostgresRepository) Get(ctx context.Context, token string) (*domain.Link, error) {
	query := `SELECT token, original_url, clicks, created_at, first_viewed_at
	          FROM links WHERE token = $1`

	link, err := scanLink(p.db.QueryRowContext(ctx, query, token))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.Unavailable("get link", err)
	}
	return link, nil
}

func (p *PostgresRepository) IncrementClicks(ctx context.Context, token string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE links SET clicks = clicks + 1 WHERE token = $1`, token)
	if err != nil {
		return domain.Unavailable("increment clicks", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Unavailable("increment clicks", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (p *PostgresRepository) MarkFirstViewed(ctx context.Context, token string, at time.Time) error {
	// first_viewed_at is only written while NULL; the existence check separates "already set" from "missing".
	query := `WITH marked AS (
	              UPDATE links SET first_viewed_at = $2
	              WHERE token = $1 AND first_viewed_at IS NULL
	              RETURNING 1
	          )
	          SELECT EXISTS (SELECT 1 FROM marked) OR EXISTS (SELECT 1 FROM links WHERE token = $1)`

	var found bool
	if err := p.db.QueryRowContext(ctx, query, token, at).Scan(&found); err != nil {
		return domain.Unavailable("mark first viewed", err)
	}
	if !found {
		return domain.ErrNotFound
	}
	return nil
}

func (p *PostgresRepository) Dump(ctx context.Context) ([]domain.Link, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT token, original_url, clicks, created_at, first_viewed_at FROM links ORDER BY id`)
	if err != nil {
		return nil, domain.Unavailable("dump links", err)
	}
	defer rows.Close()

	var links []domain.Link
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, domain.Unavailable("dump links", err)
		}
		links = append(links, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Unavailable("dump links", err)
	}
	return links, nil
}

func (p *PostgresRepository) Close() error {
	return p.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanLink(row scanner) (*domain.Link, error) {
	var link domain.Link
	var firstViewed sql.NullTime
	if err := row.Scan(&link.Token, &link.OriginalURL, &link.Clicks, &link.CreatedAt, &firstViewed); err != nil {
		return nil, err
	}
	if firstViewed.Valid {
		link.FirstViewedAt = &firstViewed.Time
	}
	return &link, nil
}

var _ ports.TokenStore = (*PostgresRepository)(nil)
