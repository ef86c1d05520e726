package gallery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"cutout/internal/client"
	"cutout/internal/domain/image"
)

// ErrNoProcessedImage is returned when downloading a record that has no result yet.
var ErrNoProcessedImage = errors.New("image has no processed result")

// Badge is the status marker shown on a card.
type Badge string

const (
	BadgeCompleted  Badge = "done"
	BadgeInProgress Badge = "working..."
	BadgeFailed     Badge = "failed"
)

// BadgeFor maps a record status to its badge.
func BadgeFor(s image.Status) Badge {
	switch s {
	case image.StatusCompleted:
		return BadgeCompleted
	case image.StatusFailed:
		return BadgeFailed
	default:
		return BadgeInProgress
	}
}

// Card is one gallery entry.
type Card struct {
	ID           int64
	Badge        Badge
	OriginalURL  string
	ProcessedURL string
	CreatedAt    time.Time
}

// Comparable reports whether the card shows a before/after pair.
func (c Card) Comparable() bool {
	return c.Badge == BadgeCompleted && c.ProcessedURL != ""
}

// Store is the data layer the gallery reads and mutates.
type Store interface {
	List(ctx context.Context) ([]image.Image, error)
	Delete(ctx context.Context, id int64) error
	Download(ctx context.Context, rawURL string) (io.ReadCloser, error)
	Invalidate()
}

type Gallery struct {
	store Store
	now   func() time.Time
}

func New(store Store) *Gallery {
	return &Gallery{store: store, now: time.Now}
}

// Sort orders images newest first, breaking ties by id descending.
func Sort(images []image.Image) {
	sort.SliceStable(images, func(i, j int) bool {
		a, b := images[i], images[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}

// Cards fetches the records and turns them into sorted cards.
func (g *Gallery) Cards(ctx context.Context) ([]Card, error) {
	images, err := g.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	Sort(images)
	cards := make([]Card, 0, len(images))
	for _, img := range images {
		c := Card{
			ID:          img.ID,
			Badge:       BadgeFor(img.Status),
			OriginalURL: img.OriginalURL,
			CreatedAt:   img.CreatedAt,
		}
		if img.ProcessedURL != nil {
			c.ProcessedURL = *img.ProcessedURL
		}
		cards = append(cards, c)
	}
	return cards, nil
}

// Render writes cards as an aligned table.
func (g *Gallery) Render(w io.Writer, cards []Card) error {
	if len(cards) == 0 {
		_, err := fmt.Fprintln(w, "No images yet. Upload an image to remove its background.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tCREATED\tORIGINAL\tPROCESSED")
	for _, c := range cards {
		processed := "-"
		if c.Comparable() {
			processed = c.ProcessedURL
		}
		created := "just now"
		if !c.CreatedAt.IsZero() {
			created = humanize.RelTime(c.CreatedAt, g.now(), "ago", "from now")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", c.ID, c.Badge, created, c.OriginalURL, processed)
	}
	return tw.Flush()
}

// Delete removes a record. A record that is already gone counts as deleted.
func (g *Gallery) Delete(ctx context.Context, id int64) error {
	if err := g.store.Delete(ctx, id); err != nil && !errors.Is(err, client.ErrNotFound) {
		return fmt.Errorf("delete image %d: %w", id, err)
	}
	g.store.Invalidate()
	return nil
}

// Download saves the processed result as removed-bg-<id>.png in dir and
// returns the written path.
func (g *Gallery) Download(ctx context.Context, img image.Image, dir string) (string, error) {
	if img.ProcessedURL == nil || *img.ProcessedURL == "" {
		return "", ErrNoProcessedImage
	}
	rc, err := g.store.Download(ctx, *img.ProcessedURL)
	if err != nil {
		return "", fmt.Errorf("fetch processed image: %w", err)
	}
	defer rc.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}
	path := filepath.Join(dir, DownloadName(img.ID))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close file: %w", err)
	}
	return path, nil
}

// DownloadName is the file name a processed image is saved under.
func DownloadName(id int64) string {
	return "removed-bg-" + strconv.FormatInt(id, 10) + ".png"
}
