package schedule

import (
	"errors"
	"regexp"

	"github.com/homenavi/petfeeder/internal/models"
)

var (
	ErrInvalidTimeFormat = errors.New("time must be HH:mm (24-hour)")
	ErrInvalidIndex      = errors.New("schedule index out of range")
	ErrModeLocked        = errors.New("schedule is locked while auto mode is on")
)

var timeRe = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):[0-5][0-9]$`)

// ValidTime reports whether text is an acceptable time-of-day for a schedule entry.
func ValidTime(text string) bool {
	return timeRe.MatchString(text)
}

// Editor holds the working copy of a device's configuration next to the
// last-synced snapshot. Mutations only ever touch the working copy; a failed
// mutation leaves it unchanged.
//
// Editor is not safe for concurrent use. The reconcile flow serializes access.
type Editor struct {
	baseline models.DeviceControl
	current  models.DeviceControl
}

func NewEditor(baseline models.DeviceControl) *Editor {
	e := &Editor{}
	e.Rebase(baseline)
	return e
}

// Rebase replaces both the baseline and the working copy. Identifiers are
// stripped so entries are addressed by position only.
func (e *Editor) Rebase(dc models.DeviceControl) {
	e.baseline = dc.StripIdentifiers()
	e.current = e.baseline.Clone()
}

func (e *Editor) Current() models.DeviceControl  { return e.current.Clone() }
func (e *Editor) Baseline() models.DeviceControl { return e.baseline.Clone() }

func (e *Editor) IsDirty() bool {
	return !e.current.Equal(e.baseline)
}

func (e *Editor) DiscardEdits() {
	e.current = e.baseline.Clone()
}

func (e *Editor) ToggleAutoStatus() {
	if e.current.AutoStatus == models.Auto {
		e.current.AutoStatus = models.Manual
	} else {
		e.current.AutoStatus = models.Auto
	}
}

func (e *Editor) ToggleSchedule(index int) error {
	if err := e.checkIndex(index); err != nil {
		return err
	}
	e.current.Schedule[index].Enabled = !e.current.Schedule[index].Enabled
	return nil
}

func (e *Editor) AddSchedule(timeText string) error {
	if e.current.AutoStatus == models.Auto {
		return ErrModeLocked
	}
	if !ValidTime(timeText) {
		return ErrInvalidTimeFormat
	}
	e.current.Schedule = append(e.current.Schedule, models.ScheduleEntry{Time: timeText, Enabled: true})
	return nil
}

func (e *Editor) EditSchedule(index int, timeText string) error {
	if err := e.checkIndex(index); err != nil {
		return err
	}
	if !ValidTime(timeText) {
		return ErrInvalidTimeFormat
	}
	e.current.Schedule[index].Time = timeText
	return nil
}

func (e *Editor) DeleteSchedule(index int) error {
	if err := e.checkIndex(index); err != nil {
		return err
	}
	s := e.current.Schedule
	next := make([]models.ScheduleEntry, 0, len(s)-1)
	next = append(next, s[:index]...)
	next = append(next, s[index+1:]...)
	e.current.Schedule = next
	return nil
}

// checkIndex applies the guards shared by every position-addressed
// mutation: the mode lock first, then the bounds.
func (e *Editor) checkIndex(index int) error {
	if e.current.AutoStatus == models.Auto {
		return ErrModeLocked
	}
	if index < 0 || index >= len(e.current.Schedule) {
		return ErrInvalidIndex
	}
	return nil
}
