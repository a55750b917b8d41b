package model

import "strings"

type AttendanceStatus string

const (
	StatusPresent AttendanceStatus = "Present"
	StatusLate    AttendanceStatus = "Late"
	StatusAbsent  AttendanceStatus = "Absent"
)

// ParseAttendanceStatus matches s case-insensitively against the known
// statuses.
func ParseAttendanceStatus(s string) (AttendanceStatus, bool) {
	for _, st := range []AttendanceStatus{StatusPresent, StatusLate, StatusAbsent} {
		if strings.EqualFold(s, string(st)) {
			return st, true
		}
	}
	return "", false
}

type Role string

const (
	RolePresenter   Role = "presenter"
	RoleParticipant Role = "participant"
	RoleAdmin       Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RolePresenter, RoleParticipant, RoleAdmin:
		return true
	}
	return false
}

// CanPresent reports whether the role may create and manage sessions.
func (r Role) CanPresent() bool {
	return r == RolePresenter || r == RoleAdmin
}

type SubmitOutcome string

const (
	SubmitCreated SubmitOutcome = "created"
	SubmitUpdated SubmitOutcome = "updated"
)

// RecordSource tags where an ApprovedRecord came from.
type RecordSource string

const (
	SourceApproval RecordSource = "approval"
)
