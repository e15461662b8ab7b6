// Package policy enforces the booking rules a proposed window must satisfy.
// Validate is pure: every input, including "now" and the rules themselves, is passed in.
package policy

import (
	"errors"
	"fmt"
	"time"

	"auditorium-reservation/internal/domain/reservation"
	"auditorium-reservation/internal/pkg/errs"
)

var (
	ErrBeforeOpeningHour = errs.Mark(errors.New("window starts before opening hour"), errs.ErrValidation)
	ErrLeadTimeNotMet    = errs.Mark(errors.New("lead time requirement not met"), errs.ErrValidation)
	ErrBeyondMaxAdvance  = errs.Mark(errors.New("window starts too far in advance"), errs.ErrValidation)

	ErrInvalidPolicy = errors.New("invalid policy")
)

// Span is a civil calendar distance, applied with AddDate in the policy time zone
// so "three months out" lands on the same wall-clock date regardless of DST.
type Span struct {
	Months int
	Days   int
}

func (s Span) addTo(t time.Time) time.Time {
	return t.AddDate(0, s.Months, s.Days)
}

type Policy struct {
	// OpeningHour is the hour of day (in Location) below which no window may start.
	OpeningHour int
	MinLeadTime time.Duration
	MaxAdvance  Span
	Location    *time.Location
}

func New(openingHour int, minLeadTime time.Duration, maxAdvance Span, timezone string) (Policy, error) {
	if openingHour < 0 || openingHour > 23 {
		return Policy{}, fmt.Errorf("%w: opening hour %d out of range", ErrInvalidPolicy, openingHour)
	}
	if minLeadTime < 0 {
		return Policy{}, fmt.Errorf("%w: negative lead time", ErrInvalidPolicy)
	}
	if maxAdvance.Months < 0 || maxAdvance.Days < 0 {
		return Policy{}, fmt.Errorf("%w: negative max advance", ErrInvalidPolicy)
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return Policy{}, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	return Policy{
		OpeningHour: openingHour,
		MinLeadTime: minLeadTime,
		MaxAdvance:  maxAdvance,
		Location:    loc,
	}, nil
}

func (p Policy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// Validate runs the checks in order and returns the first failure:
// well-formed instants, end after start, opening hour, lead time, max advance.
// On success the window is normalized to UTC for storage.
func Validate(start, end, now time.Time, p Policy) (reservation.Window, error) {
	window, err := reservation.NewWindow(start, end)
	if err != nil {
		return reservation.Window{}, err
	}

	loc := p.location()
	localStart := window.Start().In(loc)

	if localStart.Hour() < p.OpeningHour {
		return reservation.Window{}, ErrBeforeOpeningHour
	}

	if window.Start().Before(now.Add(p.MinLeadTime)) {
		return reservation.Window{}, ErrLeadTimeNotMet
	}

	if window.Start().After(p.LatestStart(now)) {
		return reservation.Window{}, ErrBeyondMaxAdvance
	}

	return window, nil
}

// LatestStart is the last instant of the civil day that is MaxAdvance after now.
func (p Policy) LatestStart(now time.Time) time.Time {
	loc := p.location()
	return EndOfCivilDay(p.MaxAdvance.addTo(now.In(loc)), loc)
}

// EndOfCivilDay returns the last representable instant of t's calendar day in loc.
func EndOfCivilDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	y, m, d := local.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc).Add(-time.Nanosecond)
}
