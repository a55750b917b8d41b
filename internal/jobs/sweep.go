package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/geocheck/attendance-server-go/internal/audit"
	"github.com/geocheck/attendance-server-go/internal/metrics"
	"github.com/geocheck/attendance-server-go/internal/model"
)

const sweepTimeout = 30 * time.Second

// Sweeper deactivates sessions whose end time has passed.
type Sweeper interface {
	SweepElapsed(ctx context.Context) ([]model.Session, error)
}

// SessionSweepJob periodically ends elapsed sessions. Submissions are already
// refused outside the window; the sweep only makes the active flag agree.
type SessionSweepJob struct {
	sweeper  Sweeper
	interval time.Duration
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewSessionSweepJob(sweeper Sweeper, interval time.Duration) *SessionSweepJob {
	return &SessionSweepJob{
		sweeper:  sweeper,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (j *SessionSweepJob) Start() {
	j.wg.Add(1)
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("session sweep job started")
}

func (j *SessionSweepJob) Stop() {
	j.stopOnce.Do(func() {
		close(j.done)
		j.wg.Wait()
		log.Info().Msg("session sweep job stopped")
	})
}

func (j *SessionSweepJob) run() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *SessionSweepJob) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	swept, err := j.sweeper.SweepElapsed(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to sweep elapsed sessions")
		return
	}
	if len(swept) == 0 {
		return
	}

	metrics.SessionsSwept.Add(float64(len(swept)))
	for _, s := range swept {
		audit.Log(ctx, audit.Event{
			Type:      audit.EventSessionSweep,
			ActorID:   "system",
			SessionID: s.ID,
			Details:   map[string]interface{}{"ownerId": s.OwnerID, "endTime": s.EndTime.Format(time.RFC3339)},
		})
	}
	log.Info().Int("count", len(swept)).Msg("ended elapsed sessions")
}
