package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "github.com/tursodatabase/libsql-client-go/libsql" // Turso driver
	msqlite "modernc.org/sqlite"                         // Local SQLite driver
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/wadjakorntonsri/go-safelink/pkg/core/domain"
	"github.com/wadjakorntonsri/go-safelink/pkg/ports"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbURL string) (*SQLiteRepository, error) {
	driverName := "sqlite"
	if strings.Contains(dbURL, "libsql://") || strings.Contains(dbURL, "wss://") {
		driverName = "libsql"
	}

	db, err := sql.Open(driverName, dbURL)
	if err != nil {
		return nil, err
	}
	if driverName == "sqlite" {
		// A single writer avoids SQLITE_BUSY; increments still go through one atomic UPDATE.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteRepository{db: db}, nil
}

func migrate(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS links (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		token TEXT NOT NULL UNIQUE,
		original_url TEXT NOT NULL,
		clicks INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		first_viewed_at DATETIME
	);
	`
	_, err := db.Exec(query)
	return err
}

func (r *SQLiteRepository) Put(ctx context.Context, link *domain.Link) error {
	query := `INSERT INTO links (token, original_url, clicks, created_at, first_viewed_at) VALUES (?, ?, ?, ?, ?)`

	var firstViewed sql.NullTime
	if link.FirstViewedAt != nil {
		firstViewed = sql.NullTime{Time: *link.FirstViewedAt, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query, link.Token, link.OriginalURL, link.Clicks, link.CreatedAt, firstViewed)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateToken
		}
		return domain.Unavailable("put link", err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, token string) (*domain.Link, error) {
	query := `SELECT token, original_url, clicks, created_at, first_viewed_at FROM links WHERE token = ?`

	link, err := scanLink(r.db.QueryRowContext(ctx, query, token))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.Unavailable("get link", err)
	}
	return link, nil
}

func (r *SQLiteRepository) IncrementClicks(ctx context.Context, token string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE links SET clicks = clicks + 1 WHERE token = ?`, token)
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

func (r *SQLiteRepository) MarkFirstViewed(ctx context.Context, token string, at time.Time) error {
	query := `UPDATE links SET first_viewed_at = ? WHERE token = ? AND first_viewed_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, at, token)
	if err != nil {
		return domain.Unavailable("mark first viewed", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Unavailable("mark first viewed", err)
	}
	if n > 0 {
		return nil
	}

	// Nothing updated: either already marked or no such token.
	var one int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM links WHERE token = ?`, token).Scan(&one)
	if err == sql.ErrNoRows {
		return domain.ErrNotFound
	}
	if err != nil {
		return domain.Unavailable("mark first viewed", err)
	}
	return nil
}

func (r *SQLiteRepository) Dump(ctx context.Context) ([]domain.Link, error) {
	query := `SELECT token, original_url, clicks, created_at, first_viewed_at FROM links ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
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

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
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

func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	// libsql reports constraint failures as plain text
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Ensure interface compliance
var _ ports.TokenStore = (*SQLiteRepository)(nil)
