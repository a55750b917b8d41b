package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"

	"github.com/geocheck/attendance-server-go/internal/blobstore"
	apperrors "github.com/geocheck/attendance-server-go/internal/errors"
	"github.com/geocheck/attendance-server-go/internal/metrics"
)

// ErrNoChange returned from an update function skips the write.
var ErrNoChange = errors.New("repository: no change")

// commitThen is returned by update functions that must persist their change
// and still report err to the caller.
type commitThen struct {
	err error
}

func (c *commitThen) Error() string { return c.err.Error() }
func (c *commitThen) Unwrap() error { return c.err }

// CommitThen makes an update function persist its mutation and then return
// err from Update.
func CommitThen(err error) error {
	return &commitThen{err: err}
}

type RetryConfig struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     8,
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     250 * time.Millisecond,
	}
}

const lockStripes = 64

// stripedLock serializes writers to the same key within this process so
// single-instance deployments rarely hit version conflicts.
type stripedLock struct {
	mu [lockStripes]sync.Mutex
}

func (l *stripedLock) forKey(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &l.mu[h.Sum32()%lockStripes]
}

// document is a JSON value of type T stored under one blob key.
type document[T any] struct {
	store      blobstore.Store
	locks      *stripedLock
	retry      RetryConfig
	collection string
}

func (d *document[T]) load(ctx context.Context, key string) (T, error) {
	var v T
	b, err := d.store.Get(ctx, key)
	if err != nil {
		return v, apperrors.Store(err)
	}
	if !b.Exists() {
		return v, nil
	}
	if err := json.Unmarshal(b.Data, &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", key, err)
	}
	return v, nil
}

// update applies fn to the latest value under key and writes the result with
// a compare-and-swap, retrying on conflict. fn may run more than once and
// must only mutate the value it is given.
func (d *document[T]) update(ctx context.Context, key string, fn func(*T) error) (T, error) {
	mu := d.locks.forKey(key)
	mu.Lock()
	defer mu.Unlock()

	var fnErr error
	operation := func() (T, error) {
		var v T
		fnErr = nil

		b, err := blobstore.ReadForUpdate(ctx, d.store, key)
		if err != nil {
			return v, err
		}
		if b.Exists() {
			if err := json.Unmarshal(b.Data, &v); err != nil {
				return v, backoff.Permanent(fmt.Errorf("decode %s: %w", key, err))
			}
		}

		var after *commitThen
		if err := fn(&v); err != nil {
			switch {
			case errors.Is(err, ErrNoChange):
				return v, nil
			case errors.As(err, &after):
				fnErr = after.err
			default:
				fnErr = err
				return v, backoff.Permanent(err)
			}
		}

		data, err := json.Marshal(v)
		if err != nil {
			return v, backoff.Permanent(fmt.Errorf("encode %s: %w", key, err))
		}
		if _, err := d.store.Put(ctx, key, data, b.Version); err != nil {
			fnErr = nil
			if errors.Is(err, blobstore.ErrVersionConflict) {
				metrics.StoreConflicts.WithLabelValues(d.collection).Inc()
				log.Debug().Str("key", key).Msg("version conflict, retrying")
			}
			return v, err
		}
		return v, nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = d.retry.InitialInterval
	eb.MaxInterval = d.retry.MaxInterval

	v, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(d.retry.MaxAttempts),
	)
	if fnErr != nil {
		return v, fnErr
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return v, ctxErr
		}
		if apperrors.IsAppError(err) {
			return v, err
		}
		log.Error().Err(err).Str("key", key).Msg("store update failed")
		return v, apperrors.Store(err)
	}
	return v, nil
}
