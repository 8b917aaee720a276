package models

import "time"

// AutoStatus is the feeding mode of a device. In Auto mode the device feeds on
// motion and the schedule is not actionable.
type AutoStatus int

const (
	Manual AutoStatus = 0
	Auto   AutoStatus = 1
)

func (s AutoStatus) String() string {
	if s == Auto {
		return "auto"
	}
	return "manual"
}

type ScheduleEntry struct {
	ID      string `json:"_id,omitempty" yaml:"id,omitempty"`
	Time    string `json:"time" yaml:"time"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

// DeviceControl is the schedule and mode configuration owned by a paired feeder.
type DeviceControl struct {
	DeviceID   string          `json:"deviceID" yaml:"device_id"`
	AutoStatus AutoStatus      `json:"autoStatus" yaml:"auto_status"`
	Schedule   []ScheduleEntry `json:"schedule" yaml:"schedule"`
}

// Clone returns a deep copy. A nil schedule becomes an empty one so clones
// always serialize as `"schedule": []`.
func (d DeviceControl) Clone() DeviceControl {
	out := d
	out.Schedule = make([]ScheduleEntry, len(d.Schedule))
	copy(out.Schedule, d.Schedule)
	return out
}

// StripIdentifiers returns a copy with every server-assigned entry id removed.
func (d DeviceControl) StripIdentifiers() DeviceControl {
	out := d.Clone()
	for i := range out.Schedule {
		out.Schedule[i].ID = ""
	}
	return out
}

// Equal compares by value; schedule order matters.
func (d DeviceControl) Equal(o DeviceControl) bool {
	if d.DeviceID != o.DeviceID || d.AutoStatus != o.AutoStatus {
		return false
	}
	if len(d.Schedule) != len(o.Schedule) {
		return false
	}
	for i := range d.Schedule {
		if d.Schedule[i] != o.Schedule[i] {
			return false
		}
	}
	return true
}

const TriggerMotion = "MOTION"
const TriggerSchedule = "SCHEDULE"

type FeedEvent struct {
	ID          string    `json:"_id" yaml:"id"`
	DeviceID    string    `json:"deviceID,omitempty" yaml:"device_id,omitempty"`
	FeedingTime time.Time `json:"feedingTime" yaml:"feeding_time"`
	TriggerType string    `json:"triggerType" yaml:"trigger_type"`
}

// Automatic reports whether the feed was triggered by the device itself
// rather than by a schedule entry.
func (e FeedEvent) Automatic() bool { return e.TriggerType == TriggerMotion }

type HistoryStats struct {
	LatestFoodLevel float64 `json:"latestFoodLevel" yaml:"latest_food_level"`
}

type HistoryResponse struct {
	History []FeedEvent  `json:"history" yaml:"history"`
	Stats   HistoryStats `json:"stats" yaml:"stats"`
}

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token         string         `json:"token"`
	DeviceControl *DeviceControl `json:"deviceControl,omitempty"`
}

type RegisterResponse struct {
	Message string `json:"message,omitempty"`
	UserID  string `json:"userID,omitempty"`
}
