// Package store keeps shifts in memory, keyed by user and date.
package store

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"shifpost/internal/model"
)

// Store holds at most one shift per (user, date). Every operation is
// atomic with respect to the others.
type Store struct {
	mu     sync.RWMutex
	byUser map[string]map[string]model.Shift
	loc    *time.Location
	now    func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithClock replaces time.Now for CreatedAt/UpdatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty store whose dates are normalized to loc.
func New(loc *time.Location, opts ...Option) *Store {
	if loc == nil {
		loc = time.Local
	}
	s := &Store{
		byUser: make(map[string]map[string]model.Shift),
		loc:    loc,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location returns the timezone dates are normalized to.
func (s *Store) Location() *time.Location {
	return s.loc
}

// Upsert replaces the slots stored for date. An empty slots list removes
// the date. It reports whether a record exists for date afterwards.
func (s *Store) Upsert(userID string, date time.Time, slots []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertLocked(userID, date, slots)
}

// Delete removes the record for date and reports whether one existed.
func (s *Store) Delete(userID string, date time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(userID, model.DateOf(date, s.loc).Format(model.DateLayout))
}

// BulkDelete removes the records for dates and returns how many existed.
func (s *Store) BulkDelete(userID string, dates []time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, d := range dates {
		if s.deleteLocked(userID, model.DateOf(d, s.loc).Format(model.DateLayout)) {
			n++
		}
	}
	return n
}

// BulkUpsert applies Upsert with the same slots to every date. It returns
// the number of dates that hold a record afterwards.
func (s *Store) BulkUpsert(userID string, dates []time.Time, slots []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, d := range dates {
		if s.upsertLocked(userID, d, slots) {
			n++
		}
	}
	return n
}

// QueryRange returns the user's shifts with start <= date <= end, oldest
// first. start after end yields nil.
func (s *Store) QueryRange(userID string, start, end time.Time) []model.Shift {
	from := model.DateOf(start, s.loc)
	to := model.DateOf(end, s.loc)
	if from.After(to) {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Shift
	for _, sh := range s.byUser[userID] {
		if sh.Date.Before(from) || sh.Date.After(to) {
			continue
		}
		out = append(out, clone(sh))
	}
	sortByDate(out)
	return out
}

// List returns every shift of the user, oldest first.
func (s *Store) List(userID string) []model.Shift {
	s.mu.RLock()
	defer s.mu.RUnlock()

	days := s.byUser[userID]
	out := make([]model.Shift, 0, len(days))
	for _, sh := range days {
		out = append(out, clone(sh))
	}
	sortByDate(out)
	return out
}

// Get returns the shift stored for date.
func (s *Store) Get(userID string, date time.Time) (model.Shift, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sh, ok := s.byUser[userID][model.DateOf(date, s.loc).Format(model.DateLayout)]
	if !ok {
		return model.Shift{}, false
	}
	return clone(sh), true
}

// Users returns the ids of users that currently hold at least one shift.
func (s *Store) Users() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.byUser))
	for id := range s.byUser {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (s *Store) upsertLocked(userID string, date time.Time, slots []string) bool {
	day := model.DateOf(date, s.loc)
	key := day.Format(model.DateLayout)
	days := s.byUser[userID]

	if len(slots) == 0 {
		s.deleteLocked(userID, key)
		return false
	}

	if days == nil {
		days = make(map[string]model.Shift)
		s.byUser[userID] = days
	}

	now := s.now()
	created := now
	if prev, ok := days[key]; ok {
		created = prev.CreatedAt
	}
	days[key] = model.Shift{
		ID:        uuid.NewString(),
		UserID:    userID,
		Date:      day,
		TimeSlots: slices.Clone(slots),
		CreatedAt: created,
		UpdatedAt: now,
	}
	return true
}

func (s *Store) deleteLocked(userID, key string) bool {
	days := s.byUser[userID]
	if _, ok := days[key]; !ok {
		return false
	}
	delete(days, key)
	if len(days) == 0 {
		delete(s.byUser, userID)
	}
	return true
}

func clone(sh model.Shift) model.Shift {
	sh.TimeSlots = slices.Clone(sh.TimeSlots)
	return sh
}

func sortByDate(shifts []model.Shift) {
	slices.SortFunc(shifts, func(a, b model.Shift) int {
		return a.Date.Compare(b.Date)
	})
}
