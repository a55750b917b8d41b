package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apperrors "github.com/geocheck/attendance-server-go/internal/errors"
	"github.com/geocheck/attendance-server-go/internal/geo"
	"github.com/geocheck/attendance-server-go/internal/model"
	"github.com/geocheck/attendance-server-go/internal/repository"
	"github.com/geocheck/attendance-server-go/internal/sse"
)

var localTimeLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
}

type SessionService struct {
	sessions   repository.SessionRepository
	ledgers    repository.LedgerRepository
	notifier   Notifier
	defaultLoc *time.Location
	now        func() time.Time
	newCode    func() (string, error)
}

func NewSessionService(
	sessions repository.SessionRepository,
	ledgers repository.LedgerRepository,
	notifier Notifier,
	defaultLoc *time.Location,
) *SessionService {
	if defaultLoc == nil {
		defaultLoc = time.UTC
	}
	return &SessionService{
		sessions:   sessions,
		ledgers:    ledgers,
		notifier:   notifierOrNoop(notifier),
		defaultLoc: defaultLoc,
		now:        time.Now,
		newCode:    generateSessionCode,
	}
}

// SessionSummary is a session together with its approval count.
type SessionSummary struct {
	model.Session
	ApprovedCount int `json:"approvedCount"`
}

func (s *SessionService) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	subject := strings.TrimSpace(params.Subject)
	if subject == "" {
		return nil, apperrors.MissingRequired("subject")
	}
	if strings.TrimSpace(params.Owner.ID) == "" || strings.TrimSpace(params.Owner.Name) == "" {
		return nil, apperrors.ValidationError("owner id and name are required")
	}
	if err := validateGeofence(params.Geofence); err != nil {
		return nil, err
	}

	loc := s.defaultLoc
	if params.Timezone != "" {
		l, err := time.LoadLocation(params.Timezone)
		if err != nil {
			return nil, apperrors.InvalidInput("timezone", err.Error())
		}
		loc = l
	}

	start, err := parseLocalTime(params.StartLocal, loc)
	if err != nil {
		return nil, apperrors.InvalidInput("startLocal", err.Error())
	}
	end, err := parseLocalTime(params.EndLocal, loc)
	if err != nil {
		return nil, apperrors.InvalidInput("endLocal", err.Error())
	}
	if !start.Before(end) {
		return nil, apperrors.ValidationError("start time must be before end time")
	}

	lateAfter := model.DefaultLateAfterMinutes
	if params.LateAfterMinutes != nil {
		if *params.LateAfterMinutes < 0 {
			return nil, apperrors.InvalidInput("lateAfterMinutes", "must not be negative")
		}
		if *params.LateAfterMinutes > model.MaxLateAfterMinutes {
			return nil, apperrors.InvalidInput("lateAfterMinutes", fmt.Sprintf("must be at most %d", model.MaxLateAfterMinutes))
		}
		lateAfter = *params.LateAfterMinutes
	}

	var maxApprovals *int
	if params.MaxApprovals != nil && *params.MaxApprovals > 0 {
		m := *params.MaxApprovals
		maxApprovals = &m
	}

	session, err := s.sessions.Create(ctx, model.Session{
		ID:               uuid.NewString(),
		Subject:          subject,
		Geofence:         params.Geofence,
		StartTime:        start.UTC(),
		EndTime:          end.UTC(),
		Timezone:         loc.String(),
		LateAfterMinutes: lateAfter,
		MaxApprovals:     maxApprovals,
		OwnerID:          params.Owner.ID,
		OwnerName:        params.Owner.Name,
		Active:           true,
		CreatedAt:        s.now().UTC(),
	}, s.newCode)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	log.Info().
		Str("sessionId", session.ID).
		Str("code", session.Code).
		Str("ownerId", session.OwnerID).
		Time("startTime", session.StartTime).
		Time("endTime", session.EndTime).
		Msg("session created")

	return session, nil
}

func (s *SessionService) Get(ctx context.Context, id string) (*model.Session, error) {
	return s.sessions.FindByID(ctx, id)
}

func (s *SessionService) GetByCode(ctx context.Context, code string) (*model.Session, error) {
	return s.sessions.FindByCode(ctx, code)
}

// ListByOwner returns the owner's sessions, newest first.
func (s *SessionService) ListByOwner(ctx context.Context, ownerID string) ([]model.Session, error) {
	all, err := s.sessions.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Session, 0)
	for _, sess := range all {
		if sess.OwnerID == ownerID {
			out = append(out, sess)
		}
	}
	return out, nil
}

// ListActive returns sessions open for check-in right now, optionally
// limited to one owner.
func (s *SessionService) ListActive(ctx context.Context, ownerID string) ([]model.Session, error) {
	all, err := s.sessions.List(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]model.Session, 0)
	for _, sess := range all {
		if ownerID != "" && sess.OwnerID != ownerID {
			continue
		}
		if sess.OpenAt(now) {
			out = append(out, sess)
		}
	}
	return out, nil
}

// List returns every session, newest first.
func (s *SessionService) List(ctx context.Context) ([]model.Session, error) {
	return s.sessions.List(ctx)
}

// Summarize attaches the approval count to each session.
func (s *SessionService) Summarize(ctx context.Context, sessions []model.Session) ([]SessionSummary, error) {
	out := make([]SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		l, err := s.ledgers.Get(ctx, sess.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, SessionSummary{Session: sess, ApprovedCount: len(l.Approved)})
	}
	return out, nil
}

// End deactivates a session. Ending an ended or unknown session succeeds
// without change; the returned session is nil for an unknown id.
func (s *SessionService) End(ctx context.Context, id string) (*model.Session, error) {
	session, changed, err := s.sessions.Deactivate(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("end session: %w", err)
	}
	if !changed {
		if session == nil {
			return s.sessions.FindByID(ctx, id)
		}
		return session, nil
	}

	log.Info().Str("sessionId", id).Msg("session ended")
	s.notifier.Notify(ctx, session.OwnerID, sse.EventSessionEnded, session)
	return session, nil
}

// SweepElapsed deactivates every active session whose end time has passed.
func (s *SessionService) SweepElapsed(ctx context.Context) ([]model.Session, error) {
	swept, err := s.sessions.DeactivateElapsed(ctx, s.now())
	if err != nil {
		return nil, err
	}
	for i := range swept {
		s.notifier.Notify(ctx, swept[i].OwnerID, sse.EventSessionEnded, swept[i])
	}
	return swept, nil
}

func validateGeofence(g model.Geofence) error {
	if !geo.ValidCoordinate(g.Lat, g.Lng) {
		return apperrors.InvalidInput("geofence", "center must be a valid latitude/longitude")
	}
	if math.IsNaN(g.RadiusM) || math.IsInf(g.RadiusM, 0) || g.RadiusM <= 0 {
		return apperrors.InvalidInput("geofence", "radius must be a positive number of meters")
	}
	return nil
}

// parseLocalTime reads a wall-clock time in loc. RFC 3339 values carry their
// own offset and are accepted as is.
func parseLocalTime(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("time is required")
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	for _, layout := range localTimeLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", value)
}
