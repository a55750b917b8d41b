package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/geocheck/attendance-server-go/internal/blobstore"
	apperrors "github.com/geocheck/attendance-server-go/internal/errors"
	"github.com/geocheck/attendance-server-go/internal/model"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Get(ctx context.Context, key string) (blobstore.Blob, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(blobstore.Blob), args.Error(1)
}

func (m *MockStore) Put(ctx context.Context, key string, data []byte, expected int64) (int64, error) {
	args := m.Called(ctx, key, data, expected)
	return args.Get(0).(int64), args.Error(1)
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 50, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}
}

func sequentialCodes(codes ...string) func() (string, error) {
	i := 0
	return func() (string, error) {
		if i >= len(codes) {
			return "", errors.New("out of codes")
		}
		c := codes[i]
		i++
		return c, nil
	}
}

func TestSessionRepository_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository(blobstore.NewMemoryStore(), fastRetry())

	first, err := repo.Create(ctx, model.Session{ID: "s1", Subject: "Math", Active: true}, sequentialCodes("AAAAAA"))
	require.NoError(t, err)
	assert.Equal(t, "AAAAAA", first.Code)

	second, err := repo.Create(ctx, model.Session{ID: "s2", Subject: "Art", Active: true}, sequentialCodes("BBBBBB"))
	require.NoError(t, err)
	assert.Equal(t, "BBBBBB", second.Code)

	t.Run("list is newest first", func(t *testing.T) {
		all, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "s2", all[0].ID)
		assert.Equal(t, "s1", all[1].ID)
	})

	t.Run("find by id", func(t *testing.T) {
		s, err := repo.FindByID(ctx, "s1")
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.Equal(t, "Math", s.Subject)

		s, err = repo.FindByID(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, s)
	})

	t.Run("find by code normalizes input", func(t *testing.T) {
		s, err := repo.FindByCode(ctx, "  bbbbbb ")
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.Equal(t, "s2", s.ID)

		s, err = repo.FindByCode(ctx, "")
		require.NoError(t, err)
		assert.Nil(t, s)
	})
}

func TestSessionRepository_CodeCollision(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository(blobstore.NewMemoryStore(), fastRetry())

	_, err := repo.Create(ctx, model.Session{ID: "s1", Active: true}, sequentialCodes("AAAAAA"))
	require.NoError(t, err)

	t.Run("retries with a fresh code", func(t *testing.T) {
		s, err := repo.Create(ctx, model.Session{ID: "s2"}, sequentialCodes("AAAAAA", "AAAAAA", "CCCCCC"))
		require.NoError(t, err)
		assert.Equal(t, "CCCCCC", s.Code)
	})

	t.Run("codes of ended sessions stay reserved", func(t *testing.T) {
		_, _, err := repo.Deactivate(ctx, "s1")
		require.NoError(t, err)

		s, err := repo.Create(ctx, model.Session{ID: "s3"}, sequentialCodes("AAAAAA", "DDDDDD"))
		require.NoError(t, err)
		assert.Equal(t, "DDDDDD", s.Code)
	})

	t.Run("gives up after bounded attempts", func(t *testing.T) {
		calls := 0
		gen := func() (string, error) {
			calls++
			return "AAAAAA", nil
		}
		_, err := repo.Create(ctx, model.Session{ID: "s4"}, gen)
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeStore))
		assert.Equal(t, MaxCodeAttempts, calls)

		s, err := repo.FindByID(ctx, "s4")
		require.NoError(t, err)
		assert.Nil(t, s)
	})
}

func TestSessionRepository_Deactivate(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository(blobstore.NewMemoryStore(), fastRetry())
	_, err := repo.Create(ctx, model.Session{ID: "s1", Active: true}, sequentialCodes("AAAAAA"))
	require.NoError(t, err)

	s, changed, err := repo.Deactivate(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.False(t, s.Active)

	_, changed, err = repo.Deactivate(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, changed, "second end is a no-op")

	s, changed, err = repo.Deactivate(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Nil(t, s)
}

func TestSessionRepository_DeactivateElapsed(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository(blobstore.NewMemoryStore(), fastRetry())
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := repo.Create(ctx, model.Session{ID: "past", Active: true, EndTime: now.Add(-time.Minute)}, sequentialCodes("AAAAAA"))
	require.NoError(t, err)
	_, err = repo.Create(ctx, model.Session{ID: "live", Active: true, EndTime: now.Add(time.Hour)}, sequentialCodes("BBBBBB"))
	require.NoError(t, err)

	swept, err := repo.DeactivateElapsed(ctx, now)
	require.NoError(t, err)
	require.Len(t, swept, 1)
	assert.Equal(t, "past", swept[0].ID)

	live, err := repo.FindByID(ctx, "live")
	require.NoError(t, err)
	assert.True(t, live.Active)

	swept, err = repo.DeactivateElapsed(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, swept)
}

func TestLedgerRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewLedgerRepository(blobstore.NewMemoryStore(), fastRetry())

	t.Run("empty ledger for unknown session", func(t *testing.T) {
		l, err := repo.Get(ctx, "s1")
		require.NoError(t, err)
		assert.Equal(t, "s1", l.SessionID)
		assert.Empty(t, l.Pending)
		assert.Empty(t, l.Approved)
	})

	t.Run("update persists", func(t *testing.T) {
		_, err := repo.Update(ctx, "s1", func(l *model.Ledger) error {
			l.Pending = append(l.Pending, model.PendingCheckin{ID: "s1:a"})
			return nil
		})
		require.NoError(t, err)

		l, err := repo.Get(ctx, "s1")
		require.NoError(t, err)
		require.Len(t, l.Pending, 1)
	})

	t.Run("business error leaves ledger untouched", func(t *testing.T) {
		_, err := repo.Update(ctx, "s1", func(l *model.Ledger) error {
			l.Pending = nil
			return apperrors.CapacityExceeded(1)
		})
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeCapacityExceeded))

		l, err := repo.Get(ctx, "s1")
		require.NoError(t, err)
		assert.Len(t, l.Pending, 1)
	})

	t.Run("commit then error persists and reports", func(t *testing.T) {
		_, err := repo.Update(ctx, "s1", func(l *model.Ledger) error {
			l.RemovePending(0)
			return CommitThen(apperrors.DuplicateApproval())
		})
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeDuplicateApproval))

		l, err := repo.Get(ctx, "s1")
		require.NoError(t, err)
		assert.Empty(t, l.Pending)
	})
}

func TestLedgerRepository_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	// separate repositories do not share a lock, so writers race on the CAS
	repos := []LedgerRepository{
		NewLedgerRepository(store, fastRetry()),
		NewLedgerRepository(store, fastRetry()),
		NewLedgerRepository(store, fastRetry()),
	}

	const n = 30
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			repo := repos[i%len(repos)]
			_, err := repo.Update(ctx, "s1", func(l *model.Ledger) error {
				l.Pending = append(l.Pending, model.PendingCheckin{ID: fmt.Sprintf("s1:%d", i)})
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	l, err := repos[0].Get(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, l.Pending, n)
}

func TestDocument_StoreFaults(t *testing.T) {
	ctx := context.Background()

	t.Run("persistent conflicts surface as store error", func(t *testing.T) {
		store := new(MockStore)
		store.On("Get", mock.Anything, "checkins:s1").Return(blobstore.Blob{}, nil)
		store.On("Put", mock.Anything, "checkins:s1", mock.Anything, int64(0)).Return(int64(0), blobstore.ErrVersionConflict)

		repo := NewLedgerRepository(store, RetryConfig{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond})
		_, err := repo.Update(ctx, "s1", func(l *model.Ledger) error {
			return CommitThen(apperrors.NotFound("Session"))
		})

		assert.True(t, apperrors.Is(err, apperrors.ErrCodeStore), "a write that never committed must not report the business outcome")
		store.AssertNumberOfCalls(t, "Put", 3)
	})

	t.Run("transient read failure is retried", func(t *testing.T) {
		store := new(MockStore)
		store.On("Get", mock.Anything, "checkins:s1").Return(blobstore.Blob{}, errors.New("connection reset")).Once()
		store.On("Get", mock.Anything, "checkins:s1").Return(blobstore.Blob{}, nil)
		store.On("Put", mock.Anything, "checkins:s1", mock.Anything, int64(0)).Return(int64(1), nil)

		repo := NewLedgerRepository(store, fastRetry())
		_, err := repo.Update(ctx, "s1", func(l *model.Ledger) error { return nil })
		require.NoError(t, err)
		store.AssertExpectations(t)
	})

	t.Run("no change skips the write", func(t *testing.T) {
		store := new(MockStore)
		store.On("Get", mock.Anything, "checkins:s1").Return(blobstore.Blob{}, nil)

		repo := NewLedgerRepository(store, fastRetry())
		_, err := repo.Update(ctx, "s1", func(l *model.Ledger) error { return ErrNoChange })
		require.NoError(t, err)
		store.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("plain read failure is a store error", func(t *testing.T) {
		store := new(MockStore)
		store.On("Get", mock.Anything, "checkins:s1").Return(blobstore.Blob{}, errors.New("down"))

		repo := NewLedgerRepository(store, fastRetry())
		_, err := repo.Get(ctx, "s1")
		assert.True(t, apperrors.Is(err, apperrors.ErrCodeStore))
	})
}
