package reservation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"auditorium-reservation/internal/pkg/errs"
)

var (
	ErrMalformedWindow = errs.Mark(errors.New("window start and end must be set"), errs.ErrValidation)
	ErrEmptyWindow     = errs.Mark(errors.New("window end must be after start"), errs.ErrValidation)
)

// Window is the half-open interval [start, end), held in UTC.
type Window struct {
	start time.Time
	end   time.Time
}

func NewWindow(start, end time.Time) (Window, error) {
	if start.IsZero() || end.IsZero() {
		return Window{}, ErrMalformedWindow
	}
	if !end.After(start) {
		return Window{}, ErrEmptyWindow
	}
	return Window{
		start: start.Round(0).UTC(),
		end:   end.Round(0).UTC(),
	}, nil
}

// MustWindow panics on an invalid window; for fixtures only.
func MustWindow(start, end time.Time) Window {
	w, err := NewWindow(start, end)
	if err != nil {
		panic(err)
	}
	return w
}

func (w Window) Start() time.Time        { return w.start }
func (w Window) End() time.Time          { return w.end }
func (w Window) Duration() time.Duration { return w.end.Sub(w.start) }
func (w Window) IsZero() bool            { return w.start.IsZero() && w.end.IsZero() }

// Overlaps reports whether the two windows share any instant. Touching windows do not overlap.
func (w Window) Overlaps(o Window) bool {
	return w.start.Before(o.end) && o.start.Before(w.end)
}

func (w Window) Equal(o Window) bool {
	return w.start.Equal(o.start) && w.end.Equal(o.end)
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.start.Format(time.RFC3339), w.end.Format(time.RFC3339))
}

func (w Window) ToTstzrange() string {
	return fmt.Sprintf("[%s,%s)", w.start.Format(time.RFC3339Nano), w.end.Format(time.RFC3339Nano))
}

const MaxRejectionReasonLength = 500

type RejectionReason struct {
	value string
}

func NewRejectionReason(value string) (RejectionReason, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return RejectionReason{}, ErrEmptyRejectionReason
	}
	if len([]rune(trimmed)) > MaxRejectionReasonLength {
		return RejectionReason{}, ErrRejectionReasonTooLong
	}
	return RejectionReason{value: trimmed}, nil
}

func (r RejectionReason) String() string { return r.value }
func (r RejectionReason) IsEmpty() bool  { return r.value == "" }
