package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/SergeiKhy/minilinks/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrLinkNotFound = errors.New("link not found")
	ErrIDExists     = errors.New("link id already exists")
)

// LinkRepository хранилище ссылок. Каждая операция атомарна
// относительно конкурентных вызовов с тем же id.
type LinkRepository interface {
	Create(ctx context.Context, link *models.Link) error
	GetByID(ctx context.Context, id string) (*models.Link, error)
	Update(ctx context.Context, id string, update *models.LinkUpdate) (*models.Link, error)
	Delete(ctx context.Context, id string) error
	IncrementClicks(ctx context.Context, id string) (*models.Link, error)
}

const linkColumns = `id, url, note, created_at, updated_at, clicks`

type linkRepository struct {
	db *PostgresDB
}

func NewLinkRepository(db *PostgresDB) LinkRepository {
	return &linkRepository{db: db}
}

func (r *linkRepository) Create(ctx context.Context, link *models.Link) error {
	query := `
		INSERT INTO links (id, url, note, created_at, updated_at, clicks)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		link.ID,
		link.URL,
		link.Note,
		link.CreatedAt,
		link.UpdatedAt,
		link.Clicks,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrIDExists
		}
		return fmt.Errorf("failed to create link: %w", err)
	}

	return nil
}

func (r *linkRepository) GetByID(ctx context.Context, id string) (*models.Link, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE id = $1`

	link, err := scanLink(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, wrapNoRows(err, "failed to get link")
	}
	return link, nil
}

// Update меняет только переданные поля. updated_at не может стать меньше created_at.
func (r *linkRepository) Update(ctx context.Context, id string, update *models.LinkUpdate) (*models.Link, error) {
	query := `
		UPDATE links
		SET url = COALESCE($2, url),
			note = COALESCE($3, note),
			updated_at = GREATEST($4::BIGINT, created_at)
		WHERE id = $1
		RETURNING ` + linkColumns

	link, err := scanLink(r.db.Pool.QueryRow(ctx, query, id, update.URL, update.Note, update.UpdatedAt))
	if err != nil {
		return nil, wrapNoRows(err, "failed to update link")
	}
	return link, nil
}

func (r *linkRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM links WHERE id = $1`

	result, err := r.db.Pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrLinkNotFound
	}

	return nil
}

// IncrementClicks увеличивает счётчик и возвращает запись одним выражением,
// блокировка строки сериализует параллельные переходы
func (r *linkRepository) IncrementClicks(ctx context.Context, id string) (*models.Link, error) {
	query := `
		UPDATE links
		SET clicks = clicks + 1
		WHERE id = $1
		RETURNING ` + linkColumns

	link, err := scanLink(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, wrapNoRows(err, "failed to increment clicks")
	}
	return link, nil
}

func scanLink(row pgx.Row) (*models.Link, error) {
	link := &models.Link{}
	err := row.Scan(
		&link.ID,
		&link.URL,
		&link.Note,
		&link.CreatedAt,
		&link.UpdatedAt,
		&link.Clicks,
	)
	if err != nil {
		return nil, err
	}
	return link, nil
}

func wrapNoRows(err error, msg string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrLinkNotFound
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Проверка на нарушение уникальности (SQLSTATE 23505)
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
