package model

import (
	"time"
)

const (
	DefaultLateAfterMinutes = 15
	// MaxLateAfterMinutes caps the late threshold at one week.
	MaxLateAfterMinutes = 7 * 24 * 60
)

type Session struct {
	ID               string    `json:"id"`
	Code             string    `json:"code"`
	Subject          string    `json:"subject"`
	Geofence         Geofence  `json:"geofence"`
	StartTime        time.Time `json:"startTime"`
	EndTime          time.Time `json:"endTime"`
	Timezone         string    `json:"timezone"`
	LateAfterMinutes int       `json:"lateAfterMinutes"`
	MaxApprovals     *int      `json:"maxApprovals,omitempty"`
	OwnerID          string    `json:"ownerId"`
	OwnerName        string    `json:"ownerName"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"createdAt"`
}

// OpenAt reports whether the session accepts check-ins at t.
func (s *Session) OpenAt(t time.Time) bool {
	return s.Active && !t.Before(s.StartTime) && !t.After(s.EndTime)
}

// Elapsed reports whether the session window has passed at t.
func (s *Session) Elapsed(t time.Time) bool {
	return t.After(s.EndTime)
}

// Location is the session's timezone, UTC if unknown.
func (s *Session) Location() *time.Location {
	if s.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (s *Session) LateThreshold() time.Duration {
	return time.Duration(s.LateAfterMinutes) * time.Minute
}

// HasCapacityFor reports whether one more approval fits under MaxApprovals
// given the number already approved.
func (s *Session) HasCapacityFor(approved int) bool {
	return s.MaxApprovals == nil || approved < *s.MaxApprovals
}

type CreateSessionParams struct {
	Subject          string
	Geofence         Geofence
	StartLocal       string
	EndLocal         string
	Timezone         string
	LateAfterMinutes *int
	MaxApprovals     *int
	Owner            Identity
}

// Identity is the acting user as supplied by the identity provider.
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role Role   `json:"role"`
}
