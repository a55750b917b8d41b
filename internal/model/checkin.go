package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Coords struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type PendingCheckin struct {
	ID          string      `json:"id"`
	SessionID   string      `json:"sessionId"`
	Participant Participant `json:"participant"`
	OwnerID     string      `json:"ownerId"`
	OwnerName   string      `json:"ownerName"`
	SubmittedAt time.Time   `json:"submittedAt"`
	Coords      *Coords     `json:"coords"`
	Accuracy    *float64    `json:"accuracy"`
	Distance    *float64    `json:"distance"`
}

type ApprovedRecord struct {
	Date            string           `json:"date"`
	When            time.Time        `json:"when"`
	Subject         string           `json:"subject"`
	Status          AttendanceStatus `json:"status"`
	ParticipantID   string           `json:"participantId"`
	ParticipantName string           `json:"participantName"`
	OwnerID         string           `json:"ownerId"`
	OwnerName       string           `json:"ownerName"`
	Lat             *float64         `json:"lat"`
	Lng             *float64         `json:"lng"`
	Accuracy        *float64         `json:"accuracy"`
	Distance        *float64         `json:"distance"`
	SessionID       string           `json:"sessionId"`
	Source          RecordSource     `json:"source"`
	ApprovedAt      time.Time        `json:"approvedAt"`
}

// Ledger is the per-session check-in state. Pending and approved entries for
// one session live together so an approval commits as a single write.
type Ledger struct {
	SessionID string           `json:"sessionId"`
	Pending   []PendingCheckin `json:"pending"`
	Approved  []ApprovedRecord `json:"approved"`
}

func (l *Ledger) PendingIndex(pendingID string) int {
	for i := range l.Pending {
		if l.Pending[i].ID == pendingID {
			return i
		}
	}
	return -1
}

func (l *Ledger) PendingIndexFor(participantID string) int {
	for i := range l.Pending {
		if l.Pending[i].Participant.ID == participantID {
			return i
		}
	}
	return -1
}

func (l *Ledger) HasApproved(participantID string) bool {
	for i := range l.Approved {
		if l.Approved[i].ParticipantID == participantID {
			return true
		}
	}
	return false
}

func (l *Ledger) RemovePending(i int) PendingCheckin {
	p := l.Pending[i]
	l.Pending = append(l.Pending[:i], l.Pending[i+1:]...)
	return p
}

type SubmitCheckinParams struct {
	SessionID   string
	Code        string
	Participant Participant
	Coords      *Coords
	Accuracy    *float64
}

type SubmitCheckinResult struct {
	Outcome             SubmitOutcome   `json:"outcome"`
	Pending             *PendingCheckin `json:"pending"`
	LocationUnavailable bool            `json:"locationUnavailable"`
}

// Pending check-in ids carry their session id, "<sessionId>:<uuid>", so an
// approval can be routed to the owning ledger without a secondary index.
const pendingIDSeparator = ":"

func NewPendingID(sessionID string) string {
	return sessionID + pendingIDSeparator + uuid.NewString()
}

func SessionIDFromPendingID(pendingID string) (string, bool) {
	sessionID, rest, ok := strings.Cut(pendingID, pendingIDSeparator)
	if !ok || sessionID == "" || rest == "" {
		return "", false
	}
	return sessionID, true
}

type RecordFilter struct {
	SessionID     string
	OwnerID       string
	ParticipantID string
	Date          string
	Status        AttendanceStatus
}
