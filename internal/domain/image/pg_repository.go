package image

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS images (
	id BIGSERIAL PRIMARY KEY,
	original_url TEXT NOT NULL,
	processed_url TEXT,
	status TEXT NOT NULL DEFAULT 'pending',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_images_status ON images(status);`

const pgColumns = `id, original_url, processed_url, status, created_at`

// PgRepository implements Repository with hand-written SQL over a pgx pool.
type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// EnsureSchema creates the images table if needed.
func (r *PgRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, pgSchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (r *PgRepository) List(ctx context.Context) ([]Image, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+pgColumns+` FROM images ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("select images: %w", err)
	}
	return collectImages(rows)
}

func (r *PgRepository) GetByID(ctx context.Context, id int64) (*Image, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+pgColumns+` FROM images WHERE id=$1`, id)
	img, err := scanImage(row)
	if err != nil {
		return nil, err
	}
	return img, nil
}

func (r *PgRepository) Create(ctx context.Context, img *Image) error {
	if img.Status == "" {
		img.Status = StatusPending
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO images (original_url, processed_url, status, created_at)
		VALUES ($1,$2,$3,$4)
		RETURNING `+pgColumns,
		img.OriginalURL, img.ProcessedURL, img.Status, time.Now().UTC())
	created, err := scanImage(row)
	if err != nil {
		return fmt.Errorf("insert image: %w", err)
	}
	*img = *created
	return nil
}

func (r *PgRepository) Update(ctx context.Context, id int64, p Patch) (*Image, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	img, err := scanImage(tx.QueryRow(ctx, `SELECT `+pgColumns+` FROM images WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	if err := img.Apply(p); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `UPDATE images SET processed_url=$1, status=$2 WHERE id=$3`,
		img.ProcessedURL, img.Status, id); err != nil {
		return nil, fmt.Errorf("update image: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return img, nil
}

func (r *PgRepository) ClaimPending(ctx context.Context, id int64) (*Image, error) {
	img, err := scanImage(r.pool.QueryRow(ctx,
		`UPDATE images SET status=$1 WHERE id=$2 AND status=$3 RETURNING `+pgColumns,
		StatusProcessing, id, StatusPending))
	if errors.Is(err, ErrImageNotFound) {
		if _, err := r.GetByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrNotPending
	}
	if err != nil {
		return nil, err
	}
	return img, nil
}

func (r *PgRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM images WHERE id=$1`, id); err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	return nil
}

func (r *PgRepository) ListStale(ctx context.Context, status Status, olderThan time.Time) ([]Image, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+pgColumns+` FROM images WHERE status=$1 AND created_at < $2 ORDER BY id`,
		status, olderThan)
	if err != nil {
		return nil, fmt.Errorf("select stale images: %w", err)
	}
	return collectImages(rows)
}

func scanImage(row pgx.Row) (*Image, error) {
	var (
		img    Image
		status string
	)
	if err := row.Scan(&img.ID, &img.OriginalURL, &img.ProcessedURL, &status, &img.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrImageNotFound
		}
		return nil, fmt.Errorf("scan image: %w", err)
	}
	img.Status = Status(status)
	return &img, nil
}

func collectImages(rows pgx.Rows) ([]Image, error) {
	defer rows.Close()
	images := make([]Image, 0)
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, *img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate images: %w", err)
	}
	return images, nil
}
