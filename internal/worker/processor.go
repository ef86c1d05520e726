package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"cutout/internal/domain/image"
	"cutout/internal/domain/upload"
	"cutout/internal/pkg/logging"
	"cutout/internal/processing"
	"cutout/internal/queue"
)

// Processor runs background removal for one stored image.
type Processor struct {
	repo    image.Repository
	uploads *upload.Service
	remover processing.Remover
}

// NewProcessor constructs a worker processor.
func NewProcessor(repo image.Repository, uploads *upload.Service, remover processing.Remover) *Processor {
	return &Processor{repo: repo, uploads: uploads, remover: remover}
}

// Handler registers the remove-background job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.RemoveBackgroundTask, p.handleRemoveBackground)
	return mux
}

func (p *Processor) handleRemoveBackground(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.ParseRemoveBackgroundPayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return p.Process(ctx, payload.ImageID)
}

// Process claims a pending record, removes the background of its original,
// stores "<name>-nobg.png" and marks it completed. Records that are no longer
// pending are skipped, so a duplicate job is a no-op. Any failure after the
// claim marks the record failed.
func (p *Processor) Process(ctx context.Context, id int64) error {
	log := logging.FromContext(ctx).With("image_id", id)

	img, err := p.repo.ClaimPending(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, image.ErrImageNotFound):
			log.Info("image deleted before processing")
			return nil
		case errors.Is(err, image.ErrNotPending):
			log.Info("image already claimed or finished, skipping")
			return nil
		}
		return fmt.Errorf("claim image: %w", err)
	}

	failure := func(err error) error {
		log.Error("background removal failed", "error", err)
		failed := image.StatusFailed
		if _, uerr := p.repo.Update(context.WithoutCancel(ctx), id, image.Patch{Status: &failed}); uerr != nil {
			log.Error("mark failed", "error", uerr)
		}
		return err
	}

	key, err := upload.KeyFromURL(img.OriginalURL)
	if err != nil {
		return failure(fmt.Errorf("resolve original %q: %w", img.OriginalURL, err))
	}
	rc, _, err := p.uploads.Open(ctx, key)
	if err != nil {
		return failure(fmt.Errorf("open original: %w", err))
	}
	data, err := processing.RemoveBytes(ctx, p.remover, rc, func(f float64) {
		log.Debug("removal progress", "fraction", f)
	})
	_ = rc.Close()
	if err != nil {
		return failure(err)
	}

	up, err := p.uploads.Put(ctx, upload.DerivedKey(key, "-nobg", ".png"), bytes.NewReader(data), int64(len(data)), "image/png")
	if err != nil {
		return failure(fmt.Errorf("store processed: %w", err))
	}

	completed := image.StatusCompleted
	if _, err := p.repo.Update(ctx, id, image.Patch{Status: &completed, ProcessedURL: &up.URL}); err != nil {
		if derr := p.uploads.Delete(context.WithoutCancel(ctx), up.Key); derr != nil {
			log.Error("remove orphaned processed image", "key", up.Key, "error", derr)
		}
		return failure(fmt.Errorf("mark completed: %w", err))
	}
	log.Info("image processed", "processed_url", up.URL, "bytes", len(data))
	return nil
}
