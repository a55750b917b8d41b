package repository

import (
	"context"

	"github.com/geocheck/attendance-server-go/internal/blobstore"
	"github.com/geocheck/attendance-server-go/internal/model"
)

const ledgerKeyPrefix = "checkins:"

// LedgerRepository stores the pending and approved check-ins of each session
// under one key, so a decision on a pending entry commits atomically.
type LedgerRepository interface {
	// Get returns the ledger for sessionID, empty if nothing was stored.
	Get(ctx context.Context, sessionID string) (*model.Ledger, error)
	// Update applies fn to the latest ledger and stores the result. fn may be
	// called more than once. Returning ErrNoChange skips the write and
	// CommitThen(err) writes and then returns err.
	Update(ctx context.Context, sessionID string, fn func(*model.Ledger) error) (*model.Ledger, error)
}

type ledgerRepo struct {
	doc *document[model.Ledger]
}

func NewLedgerRepository(store blobstore.Store, retry RetryConfig) LedgerRepository {
	return &ledgerRepo{doc: &document[model.Ledger]{
		store:      store,
		locks:      &stripedLock{},
		retry:      retry,
		collection: "checkins",
	}}
}

func ledgerKey(sessionID string) string {
	return ledgerKeyPrefix + sessionID
}

func (r *ledgerRepo) Get(ctx context.Context, sessionID string) (*model.Ledger, error) {
	l, err := r.doc.load(ctx, ledgerKey(sessionID))
	if err != nil {
		return nil, err
	}
	l.SessionID = sessionID
	return &l, nil
}

func (r *ledgerRepo) Update(ctx context.Context, sessionID string, fn func(*model.Ledger) error) (*model.Ledger, error) {
	l, err := r.doc.update(ctx, ledgerKey(sessionID), func(l *model.Ledger) error {
		l.SessionID = sessionID
		return fn(l)
	})
	if err != nil {
		return nil, err
	}
	return &l, nil
}
