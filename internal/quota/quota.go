// Package quota implements the daily free-play quota and bonus-play pool.
package quota

import (
	"errors"
	"time"
	_ "time/tzdata"

	"github.com/santajump/server/internal/model"
)

// TestAccountRemaining is reported for allowlisted test accounts, which are never limited
const TestAccountRemaining = 999

// ErrNoPlaysLeft is returned when both the free pool and the bonus pool are empty
var ErrNoPlaysLeft = errors.New("no plays left today")

// Counts describes the plays a user has left today
type Counts struct {
	Free      int  `json:"free"`
	Bonus     int  `json:"bonus"`
	Total     int  `json:"total"`
	Unlimited bool `json:"unlimited"`
}

// Manager applies quota rules using day boundaries in a fixed timezone
type Manager struct {
	loc *time.Location
}

// NewManager creates a manager whose days start at midnight in loc
func NewManager(loc *time.Location) *Manager {
	return &Manager{loc: loc}
}

// LoadManager creates a manager for the named IANA timezone
func LoadManager(tz string) (*Manager, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, err
	}
	return NewManager(loc), nil
}

// Day returns the calendar day containing t in the manager's timezone, as midnight UTC
// so it round-trips through a DATE column unchanged.
func (m *Manager) Day(t time.Time) time.Time {
	y, mo, d := t.In(m.loc).Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Reset zeroes PlaysToday when the stored play date is not today. It reports whether a
// reset happened; once it has, LastPlayDate is today and later calls are no-ops.
func (m *Manager) Reset(u *model.User, now time.Time) bool {
	today := m.Day(now)
	if u.LastPlayDate != nil && sameDate(*u.LastPlayDate, today) {
		return false
	}
	u.PlaysToday = 0
	u.LastPlayDate = &today
	return true
}

// Remaining computes today's remaining plays without modifying u
func (m *Manager) Remaining(u model.User, cfg model.GameConfig, now time.Time) Counts {
	if cfg.IsTestAccount(u) {
		return Counts{Free: TestAccountRemaining, Total: TestAccountRemaining, Unlimited: true}
	}
	m.Reset(&u, now)

	free := cfg.MaxPlaysPerDay - u.PlaysToday
	if free < 0 {
		free = 0
	}
	bonus := u.BonusPlays
	if bonus < 0 {
		bonus = 0
	}
	return Counts{Free: free, Bonus: bonus, Total: free + bonus}
}

// Consume spends one play, free pool first, and reports whether a bonus play was used.
// Test accounts are not charged.
func (m *Manager) Consume(u *model.User, cfg model.GameConfig, now time.Time) (usedBonus bool, err error) {
	if cfg.IsTestAccount(*u) {
		return false, nil
	}
	m.Reset(u, now)

	left := m.Remaining(*u, cfg, now)
	if left.Total <= 0 {
		return false, ErrNoPlaysLeft
	}
	if left.Free > 0 {
		u.PlaysToday++
		return false, nil
	}
	u.BonusPlays--
	return true, nil
}
