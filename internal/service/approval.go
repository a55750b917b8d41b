package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/geocheck/attendance-server-go/internal/errors"
	"github.com/geocheck/attendance-server-go/internal/geo"
	"github.com/geocheck/attendance-server-go/internal/metrics"
	"github.com/geocheck/attendance-server-go/internal/model"
	"github.com/geocheck/attendance-server-go/internal/repository"
	"github.com/geocheck/attendance-server-go/internal/sse"
)

const recordDateLayout = "2006-01-02"

type ApprovalService struct {
	sessions repository.SessionRepository
	ledgers  repository.LedgerRepository
	notifier Notifier
	now      func() time.Time
}

func NewApprovalService(
	sessions repository.SessionRepository,
	ledgers repository.LedgerRepository,
	notifier Notifier,
) *ApprovalService {
	return &ApprovalService{
		sessions: sessions,
		ledgers:  ledgers,
		notifier: notifierOrNoop(notifier),
		now:      time.Now,
	}
}

// Approve turns a pending check-in into an approved record. The capacity
// check, the duplicate check and the move from pending to approved commit
// together. A participant that already holds an approved record has the
// pending entry discarded; a full session keeps it pending.
func (s *ApprovalService) Approve(ctx context.Context, pendingID string) (*model.ApprovedRecord, error) {
	sessionID, ok := model.SessionIDFromPendingID(pendingID)
	if !ok {
		metrics.Decisions.WithLabelValues(metrics.OutcomeNotFound).Inc()
		return nil, apperrors.NotFound("Pending check-in")
	}

	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("approve: %w", err)
	}

	approvedAt := s.now().UTC()
	var record model.ApprovedRecord
	_, err = s.ledgers.Update(ctx, sessionID, func(l *model.Ledger) error {
		i := l.PendingIndex(pendingID)
		if i < 0 {
			return apperrors.NotFound("Pending check-in")
		}
		if session == nil {
			l.RemovePending(i)
			return repository.CommitThen(apperrors.NotFound("Session"))
		}

		p := l.Pending[i]
		if l.HasApproved(p.Participant.ID) {
			l.RemovePending(i)
			return repository.CommitThen(apperrors.DuplicateApproval())
		}
		if !session.HasCapacityFor(len(l.Approved)) {
			return apperrors.CapacityExceeded(*session.MaxApprovals)
		}

		record = buildRecord(session, p, approvedAt)
		l.Approved = append(l.Approved, record)
		l.RemovePending(i)
		return nil
	})
	if err != nil {
		metrics.Decisions.WithLabelValues(decisionOutcome(err)).Inc()
		return nil, fmt.Errorf("approve: %w", err)
	}
	metrics.Decisions.WithLabelValues(metrics.OutcomeApproved).Inc()

	log.Info().
		Str("sessionId", sessionID).
		Str("pendingId", pendingID).
		Str("participantId", record.ParticipantID).
		Str("status", string(record.Status)).
		Msg("check-in approved")

	s.notifier.Notify(ctx, session.OwnerID, sse.EventCheckinApproved, map[string]any{
		"pendingId": pendingID,
		"record":    record,
	})
	return &record, nil
}

// Reject discards a pending check-in.
func (s *ApprovalService) Reject(ctx context.Context, pendingID string) error {
	sessionID, ok := model.SessionIDFromPendingID(pendingID)
	if !ok {
		metrics.Decisions.WithLabelValues(metrics.OutcomeNotFound).Inc()
		return apperrors.NotFound("Pending check-in")
	}

	var removed model.PendingCheckin
	_, err := s.ledgers.Update(ctx, sessionID, func(l *model.Ledger) error {
		i := l.PendingIndex(pendingID)
		if i < 0 {
			return apperrors.NotFound("Pending check-in")
		}
		removed = l.RemovePending(i)
		return nil
	})
	if err != nil {
		metrics.Decisions.WithLabelValues(decisionOutcome(err)).Inc()
		return fmt.Errorf("reject: %w", err)
	}
	metrics.Decisions.WithLabelValues(metrics.OutcomeRejected).Inc()

	log.Info().
		Str("sessionId", sessionID).
		Str("pendingId", pendingID).
		Str("participantId", removed.Participant.ID).
		Msg("check-in rejected")

	s.notifier.Notify(ctx, removed.OwnerID, sse.EventCheckinRejected, map[string]any{
		"pendingId": pendingID,
		"sessionId": sessionID,
	})
	return nil
}

// ListRecords returns approved records matching filter. Sessions come newest
// first and records within a session in approval order.
func (s *ApprovalService) ListRecords(ctx context.Context, filter model.RecordFilter) ([]model.ApprovedRecord, error) {
	sessions, err := s.sessions.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]model.ApprovedRecord, 0)
	for _, sess := range sessions {
		if filter.SessionID != "" && sess.ID != filter.SessionID {
			continue
		}
		if filter.OwnerID != "" && sess.OwnerID != filter.OwnerID {
			continue
		}
		l, err := s.ledgers.Get(ctx, sess.ID)
		if err != nil {
			return nil, err
		}
		for _, rec := range l.Approved {
			if filter.ParticipantID != "" && rec.ParticipantID != filter.ParticipantID {
				continue
			}
			if filter.Date != "" && rec.Date != filter.Date {
				continue
			}
			if filter.Status != "" && rec.Status != filter.Status {
				continue
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

func buildRecord(session *model.Session, p model.PendingCheckin, approvedAt time.Time) model.ApprovedRecord {
	radius := session.Geofence.RadiusM
	status := geo.ComputeStatus(p.Distance, &radius, p.SubmittedAt.Sub(session.StartTime), session.LateThreshold())

	rec := model.ApprovedRecord{
		Date:            p.SubmittedAt.In(session.Location()).Format(recordDateLayout),
		When:            p.SubmittedAt,
		Subject:         session.Subject,
		Status:          status,
		ParticipantID:   p.Participant.ID,
		ParticipantName: p.Participant.Name,
		OwnerID:         session.OwnerID,
		OwnerName:       session.OwnerName,
		Accuracy:        p.Accuracy,
		Distance:        p.Distance,
		SessionID:       session.ID,
		Source:          model.SourceApproval,
		ApprovedAt:      approvedAt,
	}
	if p.Coords != nil {
		lat, lng := p.Coords.Lat, p.Coords.Lng
		rec.Lat, rec.Lng = &lat, &lng
	}
	return rec
}

func decisionOutcome(err error) string {
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeDuplicateApproval:
		return metrics.OutcomeDuplicate
	case apperrors.ErrCodeCapacityExceeded:
		return metrics.OutcomeCapacity
	case apperrors.ErrCodeNotFound:
		return metrics.OutcomeNotFound
	default:
		return "error"
	}
}
