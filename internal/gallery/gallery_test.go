package gallery

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"cutout/internal/client"
	"cutout/internal/domain/image"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) List(ctx context.Context) ([]image.Image, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]image.Image), args.Error(1)
}

func (m *MockStore) Delete(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockStore) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	args := m.Called(ctx, rawURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockStore) Invalidate() {
	m.Called()
}

func strPtr(s string) *string { return &s }

func TestSort_NewestFirstThenID(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	images := []image.Image{
		{ID: 1, CreatedAt: base},
		{ID: 3, CreatedAt: base.Add(time.Minute)},
		{ID: 2, CreatedAt: base},
		{ID: 4, CreatedAt: base.Add(-time.Hour)},
	}
	Sort(images)

	ids := make([]int64, len(images))
	for i, img := range images {
		ids[i] = img.ID
	}
	assert.Equal(t, []int64{3, 2, 1, 4}, ids)
}

func TestBadgeFor(t *testing.T) {
	assert.Equal(t, BadgeInProgress, BadgeFor(image.StatusPending))
	assert.Equal(t, BadgeInProgress, BadgeFor(image.StatusProcessing))
	assert.Equal(t, BadgeCompleted, BadgeFor(image.StatusCompleted))
	assert.Equal(t, BadgeFailed, BadgeFor(image.StatusFailed))
}

func TestGallery_CardsAndRender(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := new(MockStore)
	store.On("List", mock.Anything).Return([]image.Image{
		{ID: 1, OriginalURL: "/uploads/a.png", Status: image.StatusFailed, CreatedAt: now.Add(-3 * time.Hour)},
		{ID: 2, OriginalURL: "/uploads/b.png", Status: image.StatusCompleted, ProcessedURL: strPtr("/uploads/b-nobg.png"), CreatedAt: now.Add(-time.Minute)},
	}, nil)

	g := New(store)
	g.now = func() time.Time { return now }

	cards, err := g.Cards(context.Background())
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, int64(2), cards[0].ID)
	assert.True(t, cards[0].Comparable())
	assert.False(t, cards[1].Comparable())

	var buf bytes.Buffer
	require.NoError(t, g.Render(&buf, cards))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "STATUS")
	assert.Contains(t, lines[1], "/uploads/b-nobg.png")
	assert.Contains(t, lines[1], "1 minute ago")
	assert.Contains(t, lines[2], string(BadgeFailed))
	assert.Contains(t, lines[2], "3 hours ago")
}

func TestGallery_RenderEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(new(MockStore)).Render(&buf, nil))
	assert.Contains(t, buf.String(), "No images yet")
}

func TestGallery_DeleteInvalidates(t *testing.T) {
	store := new(MockStore)
	store.On("Delete", mock.Anything, int64(4)).Return(&client.APIError{StatusCode: 404}).Once()
	store.On("Invalidate").Return().Once()

	require.NoError(t, New(store).Delete(context.Background(), 4))
	store.AssertExpectations(t)
}

func TestGallery_DeleteError(t *testing.T) {
	store := new(MockStore)
	store.On("Delete", mock.Anything, int64(4)).Return(&client.APIError{StatusCode: 500})

	assert.Error(t, New(store).Delete(context.Background(), 4))
	store.AssertNotCalled(t, "Invalidate")
}

func TestGallery_Download(t *testing.T) {
	dir := t.TempDir()
	store := new(MockStore)
	store.On("Download", mock.Anything, "/uploads/b-nobg.png").
		Return(io.NopCloser(strings.NewReader("png bytes")), nil)
	g := New(store)

	path, err := g.Download(context.Background(), image.Image{ID: 9, ProcessedURL: strPtr("/uploads/b-nobg.png")}, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "removed-bg-9.png"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "png bytes", string(data))

	_, err = g.Download(context.Background(), image.Image{ID: 10}, dir)
	assert.ErrorIs(t, err, ErrNoProcessedImage)
}
