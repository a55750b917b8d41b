package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/geocheck/attendance-server-go/internal/errors"
	"github.com/geocheck/attendance-server-go/internal/geo"
	"github.com/geocheck/attendance-server-go/internal/metrics"
	"github.com/geocheck/attendance-server-go/internal/model"
	"github.com/geocheck/attendance-server-go/internal/repository"
	"github.com/geocheck/attendance-server-go/internal/sse"
)

type CheckinService struct {
	sessions repository.SessionRepository
	ledgers  repository.LedgerRepository
	notifier Notifier
	now      func() time.Time
}

func NewCheckinService(
	sessions repository.SessionRepository,
	ledgers repository.LedgerRepository,
	notifier Notifier,
) *CheckinService {
	return &CheckinService{
		sessions: sessions,
		ledgers:  ledgers,
		notifier: notifierOrNoop(notifier),
		now:      time.Now,
	}
}

// Submit records a participant's check-in as pending. A participant has at
// most one pending entry per session; a repeat submission refreshes it.
// Submissions from outside the geofence are accepted and only affect the
// status computed at approval.
func (s *CheckinService) Submit(ctx context.Context, params model.SubmitCheckinParams) (*model.SubmitCheckinResult, error) {
	result, err := s.submit(ctx, params)
	if err != nil {
		metrics.Submissions.WithLabelValues("rejected").Inc()
		return nil, err
	}
	metrics.Submissions.WithLabelValues(string(result.Outcome)).Inc()
	return result, nil
}

func (s *CheckinService) submit(ctx context.Context, params model.SubmitCheckinParams) (*model.SubmitCheckinResult, error) {
	participant := model.Participant{
		ID:   strings.TrimSpace(params.Participant.ID),
		Name: strings.TrimSpace(params.Participant.Name),
	}
	if participant.ID == "" || participant.Name == "" {
		return nil, apperrors.ValidationError("participant id and name are required")
	}
	if params.Coords != nil && !geo.ValidCoordinate(params.Coords.Lat, params.Coords.Lng) {
		return nil, apperrors.InvalidInput("coords", "must be a valid latitude/longitude")
	}

	session, err := s.resolveSession(ctx, params.SessionID, params.Code)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}

	now := s.now().UTC()
	if !session.OpenAt(now) {
		return nil, apperrors.InactiveSession()
	}

	distance := geo.DistanceToFence(params.Coords, session.Geofence)
	accuracy := params.Accuracy
	if accuracy != nil && (math.IsNaN(*accuracy) || math.IsInf(*accuracy, 0) || *accuracy < 0) {
		accuracy = nil
	}
	coords := params.Coords
	if distance == nil {
		coords = nil
	}

	var (
		outcome model.SubmitOutcome
		pending model.PendingCheckin
	)
	_, err = s.ledgers.Update(ctx, session.ID, func(l *model.Ledger) error {
		if i := l.PendingIndexFor(participant.ID); i >= 0 {
			p := &l.Pending[i]
			p.Participant.Name = participant.Name
			p.SubmittedAt = now
			p.Coords = coords
			p.Accuracy = accuracy
			p.Distance = distance
			outcome, pending = model.SubmitUpdated, *p
			return nil
		}

		pending = model.PendingCheckin{
			ID:          model.NewPendingID(session.ID),
			SessionID:   session.ID,
			Participant: participant,
			OwnerID:     session.OwnerID,
			OwnerName:   session.OwnerName,
			SubmittedAt: now,
			Coords:      coords,
			Accuracy:    accuracy,
			Distance:    distance,
		}
		l.Pending = append(l.Pending, pending)
		outcome = model.SubmitCreated
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("submit check-in: %w", err)
	}

	logEvent := log.Info().
		Str("sessionId", session.ID).
		Str("pendingId", pending.ID).
		Str("participantId", participant.ID).
		Str("outcome", string(outcome))
	if distance != nil {
		logEvent = logEvent.Float64("distance", *distance)
	}
	logEvent.Msg("check-in submitted")

	s.notifier.Notify(ctx, session.OwnerID, sse.EventCheckinSubmitted, pending)

	return &model.SubmitCheckinResult{
		Outcome:             outcome,
		Pending:             &pending,
		LocationUnavailable: distance == nil,
	}, nil
}

// resolveSession prefers the id when both id and code are given.
func (s *CheckinService) resolveSession(ctx context.Context, sessionID, code string) (*model.Session, error) {
	if sessionID = strings.TrimSpace(sessionID); sessionID != "" {
		return s.sessions.FindByID(ctx, sessionID)
	}
	if repository.NormalizeCode(code) == "" {
		return nil, apperrors.ValidationError("sessionId or code is required")
	}
	return s.sessions.FindByCode(ctx, code)
}

// ListPending returns pending check-ins, newest first. An empty ownerID
// lists every owner's.
func (s *CheckinService) ListPending(ctx context.Context, ownerID string) ([]model.PendingCheckin, error) {
	sessions, err := s.sessions.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]model.PendingCheckin, 0)
	for _, sess := range sessions {
		if ownerID != "" && sess.OwnerID != ownerID {
			continue
		}
		l, err := s.ledgers.Get(ctx, sess.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, l.Pending...)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	return out, nil
}

// FindPending looks up one pending check-in, nil if absent.
func (s *CheckinService) FindPending(ctx context.Context, pendingID string) (*model.PendingCheckin, error) {
	sessionID, ok := model.SessionIDFromPendingID(pendingID)
	if !ok {
		return nil, nil
	}
	l, err := s.ledgers.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if i := l.PendingIndex(pendingID); i >= 0 {
		return &l.Pending[i], nil
	}
	return nil, nil
}

// ListPendingFor returns the participant's own pending check-ins, newest
// first. A non-empty sessionID limits the lookup to that session.
func (s *CheckinService) ListPendingFor(ctx context.Context, participantID, sessionID string) ([]model.PendingCheckin, error) {
	sessionIDs := []string{sessionID}
	if sessionID == "" {
		sessions, err := s.sessions.List(ctx)
		if err != nil {
			return nil, err
		}
		sessionIDs = sessionIDs[:0]
		for _, sess := range sessions {
			sessionIDs = append(sessionIDs, sess.ID)
		}
	}

	out := make([]model.PendingCheckin, 0)
	for _, id := range sessionIDs {
		l, err := s.ledgers.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if i := l.PendingIndexFor(participantID); i >= 0 {
			out = append(out, l.Pending[i])
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	return out, nil
}
