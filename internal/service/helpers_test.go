package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/geocheck/attendance-server-go/internal/blobstore"
	"github.com/geocheck/attendance-server-go/internal/model"
	"github.com/geocheck/attendance-server-go/internal/repository"
)

// Seoul City Hall
const (
	fenceLat = 37.5665
	fenceLng = 126.9780
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, ownerID, eventType string, payload any) {
	m.Called(ctx, ownerID, eventType, payload)
}

type testEnv struct {
	clock     *fakeClock
	sessions  *SessionService
	checkins  *CheckinService
	approvals *ApprovalService
	store     blobstore.Store
}

func newTestEnv(t *testing.T, notifier Notifier) *testEnv {
	t.Helper()

	store := blobstore.NewMemoryStore()
	retry := repository.RetryConfig{MaxAttempts: 100, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}
	sessionRepo := repository.NewSessionRepository(store, retry)
	ledgerRepo := repository.NewLedgerRepository(store, retry)

	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)

	clock := &fakeClock{t: time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)}
	env := &testEnv{
		clock:     clock,
		sessions:  NewSessionService(sessionRepo, ledgerRepo, notifier, seoul),
		checkins:  NewCheckinService(sessionRepo, ledgerRepo, notifier),
		approvals: NewApprovalService(sessionRepo, ledgerRepo, notifier),
		store:     store,
	}
	env.sessions.now = clock.Now
	env.checkins.now = clock.Now
	env.approvals.now = clock.Now
	return env
}

func intPtr(i int) *int { return &i }

var presenter = model.Identity{ID: "t-100", Name: "Ms. Kim", Role: model.RolePresenter}

// createSession makes a session running 09:00-10:00 Seoul time on
// 2025-03-03, which is 00:00-01:00 UTC.
func (e *testEnv) createSession(t *testing.T, maxApprovals *int) *model.Session {
	t.Helper()
	s, err := e.sessions.Create(context.Background(), model.CreateSessionParams{
		Subject:          "Physics",
		Geofence:         model.Geofence{Lat: fenceLat, Lng: fenceLng, RadiusM: 100},
		StartLocal:       "2025-03-03T09:00",
		EndLocal:         "2025-03-03T10:00",
		LateAfterMinutes: intPtr(15),
		MaxApprovals:     maxApprovals,
		Owner:            presenter,
	})
	require.NoError(t, err)
	return s
}

func (e *testEnv) at(s *model.Session, minutes int) {
	e.clock.Set(s.StartTime.Add(time.Duration(minutes) * time.Minute))
}

func (e *testEnv) submit(t *testing.T, s *model.Session, participantID string, coords *model.Coords) *model.SubmitCheckinResult {
	t.Helper()
	res, err := e.checkins.Submit(context.Background(), model.SubmitCheckinParams{
		SessionID:   s.ID,
		Participant: model.Participant{ID: participantID, Name: "Student " + participantID},
		Coords:      coords,
	})
	require.NoError(t, err)
	return res
}

func inside() *model.Coords  { return &model.Coords{Lat: fenceLat + 0.0002, Lng: fenceLng} }
func outside() *model.Coords { return &model.Coords{Lat: fenceLat + 0.01, Lng: fenceLng} }
