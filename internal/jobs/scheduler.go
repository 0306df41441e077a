// Package jobs runs periodic housekeeping on a gocron scheduler.
package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

const (
	// StaleSessionAge is how long a session may stay started before it is expired
	StaleSessionAge = 2 * time.Hour
	// OTPRetention is how long OTP sessions are kept for rate limiting and audit
	OTPRetention = 24 * time.Hour

	expireEvery = 10 * time.Minute
	purgeEvery  = time.Hour
	jobTimeout  = 30 * time.Second
)

// SessionExpirer invalidates abandoned game sessions
type SessionExpirer interface {
	ExpireStale(ctx context.Context, startedBefore time.Time) (int64, error)
}

// OTPPurger deletes old OTP sessions
type OTPPurger interface {
	PurgeBefore(ctx context.Context, before time.Time) (int64, error)
}

// Scheduler owns the housekeeping jobs
type Scheduler struct {
	sched    gocron.Scheduler
	sessions SessionExpirer
	otps     OTPPurger
	now      func() time.Time
}

// New creates a scheduler with the housekeeping jobs registered. Call Start to run them.
func New(sessions SessionExpirer, otps OTPPurger) (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	s := &Scheduler{sched: sched, sessions: sessions, otps: otps, now: time.Now}

	jobs := []struct {
		name  string
		every time.Duration
		run   func(ctx context.Context) (int64, error)
	}{
		{"expire-stale-sessions", expireEvery, s.ExpireStaleSessions},
		{"purge-otp-sessions", purgeEvery, s.PurgeOTPSessions},
	}
	for _, j := range jobs {
		j := j
		_, err := sched.NewJob(
			gocron.DurationJob(j.every),
			gocron.NewTask(func() {
				ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
				defer cancel()
				n, err := j.run(ctx)
				if err != nil {
					log.Printf("[jobs] %s failed: %v", j.name, err)
					return
				}
				if n > 0 {
					log.Printf("[jobs] %s: %d rows", j.name, n)
				}
			}),
			gocron.WithName(j.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			_ = sched.Shutdown()
			return nil, fmt.Errorf("register %s: %w", j.name, err)
		}
	}
	return s, nil
}

// Start begins running jobs in the background
func (s *Scheduler) Start() {
	s.sched.Start()
	log.Printf("[jobs] scheduler started")
}

// Stop waits for running jobs and shuts the scheduler down
func (s *Scheduler) Stop() error {
	return s.sched.Shutdown()
}

// ExpireStaleSessions invalidates sessions left started longer than StaleSessionAge
func (s *Scheduler) ExpireStaleSessions(ctx context.Context) (int64, error) {
	return s.sessions.ExpireStale(ctx, s.now().Add(-StaleSessionAge))
}

// PurgeOTPSessions deletes OTP sessions older than OTPRetention
func (s *Scheduler) PurgeOTPSessions(ctx context.Context) (int64, error) {
	return s.otps.PurgeBefore(ctx, s.now().Add(-OTPRetention))
}
