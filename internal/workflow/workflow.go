package workflow

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"cutout/internal/client"
	"cutout/internal/domain/image"
	"cutout/internal/processing"
)

// State is the step the workflow is in.
type State string

const (
	StateIdle               State = "idle"
	StateUploadingOriginal  State = "uploading-original"
	StateRecordCreated      State = "record-created"
	StateRemovingBackground State = "removing-background"
	StateUploadingProcessed State = "uploading-processed"
	StateRecordUpdated      State = "record-updated"
)

// Removal progress never reports past this until the result is uploaded.
const removalProgressCeiling = 0.9

// API is the slice of the client data layer the workflow drives.
type API interface {
	Upload(ctx context.Context, filename string, r io.Reader) (string, error)
	Create(ctx context.Context, in client.CreateInput) (*image.Image, error)
	Update(ctx context.Context, id int64, in client.UpdateInput) (*image.Image, error)
}

type Options struct {
	// MarkFailed patches the record to failed when removal or the processed
	// upload fails. Off by default: the record then stays processing.
	MarkFailed bool
	// OnState observes every state change.
	OnState func(State)
	// Progress receives overall completion in [0, 1], never decreasing.
	Progress processing.Progress
}

// Workflow runs upload -> create -> remove -> upload -> update for one file.
type Workflow struct {
	api     API
	remover processing.Remover
	opts    Options
	logger  *slog.Logger
}

func New(api API, remover processing.Remover, opts Options, logger *slog.Logger) *Workflow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{api: api, remover: remover, opts: opts, logger: logger}
}

// Run processes the staged file and returns the completed record. When the
// original upload fails no record is created.
func (w *Workflow) Run(ctx context.Context, filename string, data []byte) (*image.Image, error) {
	progress := monotonic(w.opts.Progress)
	defer w.enter(StateIdle)

	w.enter(StateIdle)
	progress(0.1)

	w.enter(StateUploadingOriginal)
	originalURL, err := w.api.Upload(ctx, filename, bytes.NewReader(data))
	if err != nil {
		return nil, &UploadError{Stage: "original", Err: err}
	}

	processingStatus := image.StatusProcessing
	img, err := w.api.Create(ctx, client.CreateInput{OriginalURL: originalURL, Status: &processingStatus})
	if err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}
	w.enter(StateRecordCreated)
	w.logger.Info("image record created", "image_id", img.ID, "original_url", originalURL)
	progress(0.3)

	w.enter(StateRemovingBackground)
	out, err := processing.RemoveBytes(ctx, w.remover, bytes.NewReader(data), func(f float64) {
		progress(min(removalProgressCeiling, 0.3+f*0.6))
	})
	if err != nil {
		w.fail(ctx, img.ID)
		return img, &ProcessingError{ImageID: img.ID, Err: err}
	}
	progress(0.95)

	w.enter(StateUploadingProcessed)
	processedURL, err := w.api.Upload(ctx, processedName(filename), bytes.NewReader(out))
	if err != nil {
		w.fail(ctx, img.ID)
		return img, &UploadError{Stage: "processed", Err: err}
	}

	completed := image.StatusCompleted
	updated, err := w.api.Update(ctx, img.ID, client.UpdateInput{ProcessedURL: &processedURL, Status: &completed})
	if err != nil {
		w.fail(ctx, img.ID)
		return img, fmt.Errorf("update record: %w", err)
	}
	w.enter(StateRecordUpdated)
	w.logger.Info("image record completed", "image_id", img.ID, "processed_url", processedURL)
	progress(1)
	return updated, nil
}

func (w *Workflow) enter(s State) {
	if w.opts.OnState != nil {
		w.opts.OnState(s)
	}
}

// fail best-effort marks the record failed when the caller opted in.
func (w *Workflow) fail(ctx context.Context, id int64) {
	if !w.opts.MarkFailed {
		return
	}
	failed := image.StatusFailed
	if _, err := w.api.Update(context.WithoutCancel(ctx), id, client.UpdateInput{Status: &failed}); err != nil {
		w.logger.Warn("mark image failed", "image_id", id, "error", err)
	}
}

func monotonic(p processing.Progress) processing.Progress {
	if p == nil {
		return func(float64) {}
	}
	var (
		mu   sync.Mutex
		last float64
	)
	return func(f float64) {
		f = max(0, min(1, f))
		mu.Lock()
		defer mu.Unlock()
		if f < last {
			return
		}
		last = f
		p(f)
	}
}

func processedName(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base)) + "-nobg.png"
}
