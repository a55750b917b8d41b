package model

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPendingID(t *testing.T) {
	t.Run("round trips the session id", func(t *testing.T) {
		id := NewPendingID("sess-1")
		assert.True(t, strings.HasPrefix(id, "sess-1:"))

		sessionID, ok := SessionIDFromPendingID(id)
		assert.True(t, ok)
		assert.Equal(t, "sess-1", sessionID)
	})

	t.Run("ids are unique", func(t *testing.T) {
		assert.NotEqual(t, NewPendingID("s"), NewPendingID("s"))
	})

	t.Run("rejects malformed ids", func(t *testing.T) {
		for _, id := range []string{"", "nocolon", ":tail", "head:"} {
			_, ok := SessionIDFromPendingID(id)
			assert.False(t, ok, id)
		}
	})
}

func TestLedger(t *testing.T) {
	l := &Ledger{
		SessionID: "s1",
		Pending: []PendingCheckin{
			{ID: "s1:a", Participant: Participant{ID: "u1"}},
			{ID: "s1:b", Participant: Participant{ID: "u2"}},
		},
		Approved: []ApprovedRecord{{ParticipantID: "u9"}},
	}

	assert.Equal(t, 1, l.PendingIndex("s1:b"))
	assert.Equal(t, -1, l.PendingIndex("s1:z"))
	assert.Equal(t, 0, l.PendingIndexFor("u1"))
	assert.Equal(t, -1, l.PendingIndexFor("u9"))
	assert.True(t, l.HasApproved("u9"))
	assert.False(t, l.HasApproved("u1"))

	removed := l.RemovePending(0)
	assert.Equal(t, "s1:a", removed.ID)
	assert.Len(t, l.Pending, 1)
	assert.Equal(t, "s1:b", l.Pending[0].ID)
}

func TestSession_OpenAt(t *testing.T) {
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	s := &Session{StartTime: start, EndTime: start.Add(time.Hour), Active: true}

	assert.True(t, s.OpenAt(start))
	assert.True(t, s.OpenAt(start.Add(time.Hour)))
	assert.False(t, s.OpenAt(start.Add(-time.Second)))
	assert.False(t, s.OpenAt(start.Add(time.Hour+time.Second)))

	s.Active = false
	assert.False(t, s.OpenAt(start.Add(time.Minute)))
}

func TestSession_HasCapacityFor(t *testing.T) {
	s := &Session{}
	assert.True(t, s.HasCapacityFor(1000))

	max := 2
	s.MaxApprovals = &max
	assert.True(t, s.HasCapacityFor(1))
	assert.False(t, s.HasCapacityFor(2))
}

func TestParseAttendanceStatus(t *testing.T) {
	tests := []struct {
		input string
		want  AttendanceStatus
		ok    bool
	}{
		{"Present", StatusPresent, true},
		{"late", StatusLate, true},
		{"ABSENT", StatusAbsent, true},
		{"tardy", "", false},
		{"", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, ok := ParseAttendanceStatus(tc.input)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}
