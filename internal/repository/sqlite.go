package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SergeiKhy/minilinks/internal/models"
	_ "github.com/tursodatabase/libsql-client-go/libsql" // удалённый libSQL (Turso)
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type SQLiteDB struct {
	DB *sql.DB
}

// NewSQLiteDB открывает локальный файл SQLite или удалённую базу libSQL
// (libsql://, wss://) и создаёт таблицу links при необходимости.
func NewSQLiteDB(ctx context.Context, dsn string) (*SQLiteDB, error) {
	driverName := "sqlite"
	if strings.HasPrefix(dsn, "libsql://") || strings.HasPrefix(dsn, "wss://") {
		driverName = "libsql"
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if driverName == "sqlite" {
		// Один писатель: SQLite блокирует файл целиком
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	query := `
	CREATE TABLE IF NOT EXISTS links (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		note TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		clicks INTEGER NOT NULL DEFAULT 0
	)`
	if _, err := db.ExecContext(ctx, query); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create links table: %w", err)
	}

	return &SQLiteDB{DB: db}, nil
}

func (db *SQLiteDB) Close() error {
	return db.DB.Close()
}

type sqliteLinkRepository struct {
	db *SQLiteDB
}

func NewSQLiteLinkRepository(db *SQLiteDB) LinkRepository {
	return &sqliteLinkRepository{db: db}
}

func (r *sqliteLinkRepository) Create(ctx context.Context, link *models.Link) error {
	query := `INSERT INTO links (id, url, note, created_at, updated_at, clicks) VALUES (?, ?, ?, ?, ?, ?)`

	_, err := r.db.DB.ExecContext(ctx, query,
		link.ID,
		link.URL,
		link.Note,
		link.CreatedAt,
		link.UpdatedAt,
		link.Clicks,
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return ErrIDExists
		}
		return fmt.Errorf("failed to create link: %w", err)
	}
	return nil
}

func (r *sqliteLinkRepository) GetByID(ctx context.Context, id string) (*models.Link, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE id = ?`

	link, err := scanSQLLink(r.db.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, wrapSQLNoRows(err, "failed to get link")
	}
	return link, nil
}

func (r *sqliteLinkRepository) Update(ctx context.Context, id string, update *models.LinkUpdate) (*models.Link, error) {
	query := `
		UPDATE links
		SET url = COALESCE(?, url),
			note = COALESCE(?, note),
			updated_at = MAX(?, created_at)
		WHERE id = ?
		RETURNING ` + linkColumns

	link, err := scanSQLLink(r.db.DB.QueryRowContext(ctx, query, update.URL, update.Note, update.UpdatedAt, id))
	if err != nil {
		return nil, wrapSQLNoRows(err, "failed to update link")
	}
	return link, nil
}

func (r *sqliteLinkRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.DB.ExecContext(ctx, `DELETE FROM links WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}
	if affected == 0 {
		return ErrLinkNotFound
	}
	return nil
}

func (r *sqliteLinkRepository) IncrementClicks(ctx context.Context, id string) (*models.Link, error) {
	query := `UPDATE links SET clicks = clicks + 1 WHERE id = ? RETURNING ` + linkColumns

	link, err := scanSQLLink(r.db.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, wrapSQLNoRows(err, "failed to increment clicks")
	}
	return link, nil
}

func scanSQLLink(row *sql.Row) (*models.Link, error) {
	link := &models.Link{}
	var note sql.NullString
	err := row.Scan(
		&link.ID,
		&link.URL,
		&note,
		&link.CreatedAt,
		&link.UpdatedAt,
		&link.Clicks,
	)
	if err != nil {
		return nil, err
	}
	if note.Valid {
		link.Note = &note.String
	}
	return link, nil
}

func wrapSQLNoRows(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrLinkNotFound
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
			return true
		}
	}
	// libSQL возвращает ошибку сервера текстом
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
