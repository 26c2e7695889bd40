// Package action stores scheduled parameter overrides that take effect on a
// given simulation day.
package action

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"simpidemic/internal/param"
)

var (
	// ErrNegativeDay is returned when an action is scheduled before day 0.
	ErrNegativeDay = errors.New("action: day must be >= 0")
	// ErrNotFound is returned when no action has the requested ID.
	ErrNotFound = errors.New("action: not found")
)

// Action is a snapshot of a parameter value to apply on Day. The value is
// copied when the action is created; later edits to the live parameter do
// not affect it.
type Action struct {
	ID     string  `json:"id"`
	Day    int     `json:"day"`
	Name   string  `json:"name"`
	Code   string  `json:"code"`
	Value  float64 `json:"value"`
	Active bool    `json:"active"`
}

// Schedule maps a day to the actions for that day in insertion order.
// Not safe for concurrent use.
type Schedule struct {
	byDay map[int][]*Action
	byID  map[string]*Action
	seq   map[string]int
	next  int
}

// NewSchedule returns an empty schedule.
func NewSchedule() *Schedule {
	return &Schedule{
		byDay: make(map[int][]*Action),
		byID:  make(map[string]*Action),
		seq:   make(map[string]int),
	}
}

// Add snapshots the current value of p and appends an active action on day.
func (s *Schedule) Add(day int, p param.Scalar) (Action, error) {
	if p == nil {
		return Action{}, fmt.Errorf("action: nil parameter")
	}
	return s.AddValue(day, p.Name(), p.Code(), p.Float64(), true)
}

// AddValue appends an action with an explicit value, as used when restoring
// serialized state.
func (s *Schedule) AddValue(day int, name, code string, value float64, active bool) (Action, error) {
	if day < 0 {
		return Action{}, fmt.Errorf("%s on day %d: %w", name, day, ErrNegativeDay)
	}
	a := &Action{
		ID:     uuid.NewString(),
		Day:    day,
		Name:   name,
		Code:   code,
		Value:  value,
		Active: active,
	}
	s.byDay[day] = append(s.byDay[day], a)
	s.byID[a.ID] = a
	s.seq[a.ID] = s.next
	s.next++
	return *a, nil
}

// Get returns the action with the given ID.
func (s *Schedule) Get(id string) (Action, bool) {
	a, ok := s.byID[id]
	if !ok {
		return Action{}, false
	}
	return *a, true
}

// Remove deletes an action without disturbing the others.
func (s *Schedule) Remove(id string) error {
	a, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	list := s.byDay[a.Day]
	for i, cand := range list {
		if cand.ID == id {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(s.byDay, a.Day)
	} else {
		s.byDay[a.Day] = list
	}
	delete(s.byID, id)
	delete(s.seq, id)
	return nil
}

// SetActive enables or disables an action. Disabled actions stay scheduled.
func (s *Schedule) SetActive(id string, active bool) error {
	a, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	a.Active = active
	return nil
}

// Toggle flips the active flag and returns the new state.
func (s *Schedule) Toggle(id string) (bool, error) {
	a, ok := s.byID[id]
	if !ok {
		return false, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	a.Active = !a.Active
	return a.Active, nil
}

// SetValue replaces the snapshotted value of an action.
func (s *Schedule) SetValue(id string, value float64) error {
	a, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	a.Value = value
	return nil
}

// DailyActions returns the actions for day in insertion order, including
// inactive ones. The result is a copy.
func (s *Schedule) DailyActions(day int) []Action {
	list := s.byDay[day]
	if len(list) == 0 {
		return nil
	}
	out := make([]Action, len(list))
	for i, a := range list {
		out[i] = *a
	}
	return out
}

// Days returns the days that have at least one action, ascending.
func (s *Schedule) Days() []int {
	days := make([]int, 0, len(s.byDay))
	for d := range s.byDay {
		days = append(days, d)
	}
	sort.Ints(days)
	return days
}

// Entries lists every action ordered by day, then insertion order. This is
// the table order shown to users.
func (s *Schedule) Entries() []Action {
	out := make([]Action, 0, len(s.byID))
	for _, d := range s.Days() {
		out = append(out, s.DailyActions(d)...)
	}
	return out
}

// Len reports the number of scheduled actions.
func (s *Schedule) Len() int { return len(s.byID) }

// Clear removes every action.
func (s *Schedule) Clear() {
	s.byDay = make(map[int][]*Action)
	s.byID = make(map[string]*Action)
	s.seq = make(map[string]int)
}

// Clone returns an independent copy preserving IDs and order.
func (s *Schedule) Clone() *Schedule {
	out := NewSchedule()
	ids := make([]string, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return s.seq[ids[i]] < s.seq[ids[j]] })
	for _, id := range ids {
		a := *s.byID[id]
		out.byDay[a.Day] = append(out.byDay[a.Day], &a)
		out.byID[a.ID] = &a
		out.seq[a.ID] = out.next
		out.next++
	}
	return out
}
