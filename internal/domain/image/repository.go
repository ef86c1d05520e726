package image

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is the Record Store over the images table.
type Repository interface {
	List(ctx context.Context) ([]Image, error)
	GetByID(ctx context.Context, id int64) (*Image, error)
	Create(ctx context.Context, img *Image) error
	Update(ctx context.Context, id int64, p Patch) (*Image, error)
	// ClaimPending moves a pending record to processing in one conditional
	// write. It returns ErrNotPending when the record has another status.
	ClaimPending(ctx context.Context, id int64) (*Image, error)
	Delete(ctx context.Context, id int64) error
	ListStale(ctx context.Context, status Status, olderThan time.Time) ([]Image, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns the gorm-backed Record Store.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// Migrate creates or updates the images table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Image{})
}

func (r *repository) List(ctx context.Context) ([]Image, error) {
	images := make([]Image, 0)
	err := r.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Find(&images).Error
	return images, err
}

func (r *repository) GetByID(ctx context.Context, id int64) (*Image, error) {
	var img Image
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&img).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrImageNotFound
	}
	if err != nil {
		return nil, err
	}
	return &img, nil
}

func (r *repository) Create(ctx context.Context, img *Image) error {
	img.ID = 0
	if img.Status == "" {
		img.Status = StatusPending
	}
	img.CreatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Create(img).Error
}

func (r *repository) Update(ctx context.Context, id int64, p Patch) (*Image, error) {
	var out Image
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&out).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrImageNotFound
			}
			return err
		}
		if err := out.Apply(p); err != nil {
			return err
		}
		return tx.Model(&Image{}).Where("id = ?", id).Updates(map[string]interface{}{
			"processed_url": out.ProcessedURL,
			"status":        out.Status,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *repository) ClaimPending(ctx context.Context, id int64) (*Image, error) {
	res := r.db.WithContext(ctx).Model(&Image{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Update("status", StatusProcessing)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrNotPending
	}
	return r.GetByID(ctx, id)
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&Image{}).Error
}

func (r *repository) ListStale(ctx context.Context, status Status, olderThan time.Time) ([]Image, error) {
	var images []Image
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", status, olderThan).
		Order("id ASC").
		Find(&images).Error
	return images, err
}
