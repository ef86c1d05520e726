package image

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"cutout/internal/database"
)

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, imageID int64) error {
	args := m.Called(ctx, imageID)
	return args.Error(0)
}

func newTestRepository(t *testing.T) Repository {
	t.Helper()
	name := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, t.Name())
	db, err := database.Connect(fmt.Sprintf("file:images_%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	t.Cleanup(func() { _ = database.Close(db) })
	return NewRepository(db)
}

func TestService_CreateDefaultsToPending(t *testing.T) {
	svc := NewService(newTestRepository(t), nil)

	img, err := svc.Create(context.Background(), " /uploads/a.png ", nil)
	require.NoError(t, err)
	assert.NotZero(t, img.ID)
	assert.Equal(t, "/uploads/a.png", img.OriginalURL)
	assert.Equal(t, StatusPending, img.Status)
	assert.Nil(t, img.ProcessedURL)
	assert.False(t, img.CreatedAt.IsZero())
}

func TestService_CreateRejectsCompleted(t *testing.T) {
	svc := NewService(newTestRepository(t), nil)

	_, err := svc.Create(context.Background(), "/uploads/a.png", statusPtr(StatusCompleted))
	assert.ErrorIs(t, err, ErrCreateCompleted)
}

func TestService_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newTestRepository(t), nil)

	a, err := svc.Create(ctx, "/uploads/a.png", nil)
	require.NoError(t, err)
	b, err := svc.Create(ctx, "/uploads/b.png", nil)
	require.NoError(t, err)

	images, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.Equal(t, b.ID, images[0].ID)
	assert.Equal(t, a.ID, images[1].ID)
}

func TestService_UpdateLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newTestRepository(t), nil)

	img, err := svc.Create(ctx, "/uploads/a.png", nil)
	require.NoError(t, err)

	updated, err := svc.Update(ctx, img.ID, Patch{Status: statusPtr(StatusProcessing)})
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, updated.Status)

	updated, err = svc.Update(ctx, img.ID, Patch{Status: statusPtr(StatusCompleted), ProcessedURL: strPtr("/uploads/a-nobg.png")})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, updated.Status)

	got, err := svc.Get(ctx, img.ID)
	require.NoError(t, err)
	assert.Equal(t, "/uploads/a-nobg.png", *got.ProcessedURL)
	assert.Equal(t, "/uploads/a.png", got.OriginalURL)

	_, err = svc.Update(ctx, img.ID, Patch{Status: statusPtr(StatusPending)})
	var te *TransitionError
	assert.ErrorAs(t, err, &te)
}

func TestService_UpdateUnknown(t *testing.T) {
	svc := NewService(newTestRepository(t), nil)
	_, err := svc.Update(context.Background(), 999, Patch{Status: statusPtr(StatusFailed)})
	assert.ErrorIs(t, err, ErrImageNotFound)
}

func TestService_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newTestRepository(t), nil)

	img, err := svc.Create(ctx, "/uploads/a.png", nil)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, img.ID))
	require.NoError(t, svc.Delete(ctx, img.ID))
	_, err = svc.Get(ctx, img.ID)
	assert.ErrorIs(t, err, ErrImageNotFound)
}

func TestService_Process(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	t.Run("no dispatcher", func(t *testing.T) {
		_, err := NewService(repo, nil).Process(ctx, 1)
		assert.ErrorIs(t, err, ErrDispatchUnavailable)
	})

	t.Run("pending is dispatched", func(t *testing.T) {
		d := new(MockDispatcher)
		svc := NewService(repo, d)
		img, err := svc.Create(ctx, "/uploads/a.png", nil)
		require.NoError(t, err)
		d.On("Dispatch", mock.Anything, img.ID).Return(nil).Once()

		got, err := svc.Process(ctx, img.ID)
		require.NoError(t, err)
		assert.Equal(t, img.ID, got.ID)
		d.AssertExpectations(t)
	})

	t.Run("not pending", func(t *testing.T) {
		d := new(MockDispatcher)
		svc := NewService(repo, d)
		img, err := svc.Create(ctx, "/uploads/a.png", statusPtr(StatusProcessing))
		require.NoError(t, err)

		_, err = svc.Process(ctx, img.ID)
		assert.ErrorIs(t, err, ErrNotPending)
		d.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
	})

	t.Run("queue full", func(t *testing.T) {
		d := new(MockDispatcher)
		svc := NewService(repo, d)
		img, err := svc.Create(ctx, "/uploads/a.png", nil)
		require.NoError(t, err)
		d.On("Dispatch", mock.Anything, img.ID).Return(ErrQueueFull)

		_, err = svc.Process(ctx, img.ID)
		assert.True(t, errors.Is(err, ErrQueueFull))
	})
}

func TestService_FailStale(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newTestRepository(t), nil)

	stuck, err := svc.Create(ctx, "/uploads/a.png", statusPtr(StatusProcessing))
	require.NoError(t, err)
	pending, err := svc.Create(ctx, "/uploads/b.png", nil)
	require.NoError(t, err)

	n, err := svc.FailStale(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = svc.FailStale(ctx, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := svc.Get(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)

	got, err = svc.Get(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
}
