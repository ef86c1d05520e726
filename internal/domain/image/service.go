package image

import (
	"context"
	"errors"
	"strings"
	"time"

	"cutout/internal/pkg/logging"
)

// Dispatcher hands a pending image to server-side background removal.
type Dispatcher interface {
	Dispatch(ctx context.Context, imageID int64) error
}

type Service struct {
	repo       Repository
	dispatcher Dispatcher
}

func NewService(repo Repository, dispatcher Dispatcher) *Service {
	return &Service{repo: repo, dispatcher: dispatcher}
}

func (s *Service) List(ctx context.Context) ([]Image, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, id int64) (*Image, error) {
	return s.repo.GetByID(ctx, id)
}

// Create stores a new record. Status defaults to pending; a record can never
// start completed because processedUrl is not accepted at creation.
func (s *Service) Create(ctx context.Context, originalURL string, status *Status) (*Image, error) {
	img := &Image{
		OriginalURL: strings.TrimSpace(originalURL),
		Status:      StatusPending,
	}
	if status != nil {
		if *status == StatusCompleted {
			return nil, ErrCreateCompleted
		}
		img.Status = *status
	}
	if err := s.repo.Create(ctx, img); err != nil {
		return nil, err
	}
	return img, nil
}

func (s *Service) Update(ctx context.Context, id int64, p Patch) (*Image, error) {
	return s.repo.Update(ctx, id, p)
}

// Delete removes the record. Deleting an unknown id is not an error.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

// Process dispatches server-side background removal for a pending image.
func (s *Service) Process(ctx context.Context, id int64) (*Image, error) {
	if s.dispatcher == nil {
		return nil, ErrDispatchUnavailable
	}
	img, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if img.Status != StatusPending {
		return nil, ErrNotPending
	}
	if err := s.dispatcher.Dispatch(ctx, id); err != nil {
		return nil, err
	}
	return img, nil
}

// FailStale marks records stuck in processing for longer than maxAge as failed.
// It returns the number of records changed.
func (s *Service) FailStale(ctx context.Context, maxAge time.Duration) (int, error) {
	stale, err := s.repo.ListStale(ctx, StatusProcessing, time.Now().UTC().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	failed := StatusFailed
	n := 0
	for _, img := range stale {
		if _, err := s.repo.Update(ctx, img.ID, Patch{Status: &failed}); err != nil {
			var te *TransitionError
			if errors.Is(err, ErrImageNotFound) || errors.As(err, &te) {
				// finished or deleted meanwhile
				continue
			}
			return n, err
		}
		logging.FromContext(ctx).Info("marked stale image failed", "image_id", img.ID, "created_at", img.CreatedAt)
		n++
	}
	return n, nil
}
