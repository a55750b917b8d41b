package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/geocheck/attendance-server-go/internal/blobstore"
	apperrors "github.com/geocheck/attendance-server-go/internal/errors"
	"github.com/geocheck/attendance-server-go/internal/model"
)

const (
	sessionsKey = "sessions"

	// MaxCodeAttempts bounds how many generated codes Create tries before
	// giving up on a unique one.
	MaxCodeAttempts = 10
)

var errCodeSpaceExhausted = errors.New("no unique session code after retries")

type SessionRepository interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
	FindByCode(ctx context.Context, code string) (*model.Session, error)
	// List returns every session, newest first.
	List(ctx context.Context) ([]model.Session, error)
	// Create assigns session a code from newCode that no other session has
	// ever used and stores it first in the list.
	Create(ctx context.Context, session model.Session, newCode func() (string, error)) (*model.Session, error)
	// Deactivate clears the active flag. It reports whether the session
	// changed; an unknown id yields (nil, false, nil).
	Deactivate(ctx context.Context, id string) (*model.Session, bool, error)
	// DeactivateElapsed clears the active flag on every session whose end
	// time is before now and returns the ones it changed.
	DeactivateElapsed(ctx context.Context, now time.Time) ([]model.Session, error)
}

type sessionRepo struct {
	doc *document[[]model.Session]
}

func NewSessionRepository(store blobstore.Store, retry RetryConfig) SessionRepository {
	return &sessionRepo{doc: &document[[]model.Session]{
		store:      store,
		locks:      &stripedLock{},
		retry:      retry,
		collection: "sessions",
	}}
}

// NormalizeCode trims and upper-cases a session code as typed by a user.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (r *sessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	sessions, err := r.doc.load(ctx, sessionsKey)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		if sessions[i].ID == id {
			return &sessions[i], nil
		}
	}
	return nil, nil
}

func (r *sessionRepo) FindByCode(ctx context.Context, code string) (*model.Session, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, nil
	}
	sessions, err := r.doc.load(ctx, sessionsKey)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		if sessions[i].Code == code {
			return &sessions[i], nil
		}
	}
	return nil, nil
}

func (r *sessionRepo) List(ctx context.Context) ([]model.Session, error) {
	return r.doc.load(ctx, sessionsKey)
}

func (r *sessionRepo) Create(ctx context.Context, session model.Session, newCode func() (string, error)) (*model.Session, error) {
	var created model.Session
	_, err := r.doc.update(ctx, sessionsKey, func(sessions *[]model.Session) error {
		taken := make(map[string]struct{}, len(*sessions))
		for _, s := range *sessions {
			taken[s.Code] = struct{}{}
		}

		created = session
		created.Code = ""
		for attempt := 0; attempt < MaxCodeAttempts; attempt++ {
			code, err := newCode()
			if err != nil {
				return err
			}
			if _, dup := taken[code]; !dup {
				created.Code = code
				break
			}
		}
		if created.Code == "" {
			return apperrors.Store(errCodeSpaceExhausted)
		}

		*sessions = append([]model.Session{created}, *sessions...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (r *sessionRepo) Deactivate(ctx context.Context, id string) (*model.Session, bool, error) {
	var (
		found   *model.Session
		changed bool
	)
	_, err := r.doc.update(ctx, sessionsKey, func(sessions *[]model.Session) error {
		found, changed = nil, false
		for i := range *sessions {
			s := &(*sessions)[i]
			if s.ID != id {
				continue
			}
			if s.Active {
				s.Active = false
				changed = true
			}
			cp := *s
			found = &cp
			break
		}
		if !changed {
			return ErrNoChange
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return found, changed, nil
}

func (r *sessionRepo) DeactivateElapsed(ctx context.Context, now time.Time) ([]model.Session, error) {
	var swept []model.Session
	_, err := r.doc.update(ctx, sessionsKey, func(sessions *[]model.Session) error {
		swept = nil
		for i := range *sessions {
			s := &(*sessions)[i]
			if s.Active && s.Elapsed(now) {
				s.Active = false
				swept = append(swept, *s)
			}
		}
		if len(swept) == 0 {
			return ErrNoChange
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return swept, nil
}
