package schedule

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/homenavi/petfeeder/internal/models"
)

func manualBaseline() models.DeviceControl {
	return models.DeviceControl{
		DeviceID:   "feeder-1",
		AutoStatus: models.Manual,
		Schedule:   []models.ScheduleEntry{{Time: "07:00", Enabled: true}},
	}
}

func TestValidTime(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"00:00", true},
		{"07:00", true},
		{"7:05", true},
		{"18:30", true},
		{"23:59", true},
		{"25:00", false},
		{"24:00", false},
		{"9:5", false},
		{"noon", false},
		{"", false},
		{"12:60", false},
		{" 12:00", false},
	}
	for _, c := range cases {
		if got := ValidTime(c.in); got != c.want {
			t.Fatalf("ValidTime(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestAddScheduleAppendsEnabledEntry(t *testing.T) {
	for _, tm := range []string{"00:00", "7:05", "12:34", "23:59"} {
		e := NewEditor(manualBaseline())
		if err := e.AddSchedule(tm); err != nil {
			t.Fatalf("AddSchedule(%q): %v", tm, err)
		}
		cur := e.Current()
		last := cur.Schedule[len(cur.Schedule)-1]
		if last.Time != tm || !last.Enabled {
			t.Fatalf("expected {%s true}, got %+v", tm, last)
		}
	}
}

func TestAddScheduleScenario(t *testing.T) {
	e := NewEditor(manualBaseline())
	if err := e.AddSchedule("18:30"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if !e.IsDirty() {
		t.Fatalf("expected dirty after add")
	}
	cur := e.Current()
	if len(cur.Schedule) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(cur.Schedule))
	}
	if cur.Schedule[1] != (models.ScheduleEntry{Time: "18:30", Enabled: true}) {
		t.Fatalf("unexpected second entry: %+v", cur.Schedule[1])
	}
}

func TestMalformedTimeRejected(t *testing.T) {
	for _, tm := range []string{"25:00", "9:5", "noon", "", "12-30"} {
		e := NewEditor(manualBaseline())
		before := e.Current()

		if err := e.AddSchedule(tm); !errors.Is(err, ErrInvalidTimeFormat) {
			t.Fatalf("AddSchedule(%q): expected ErrInvalidTimeFormat, got %v", tm, err)
		}
		if err := e.EditSchedule(0, tm); !errors.Is(err, ErrInvalidTimeFormat) {
			t.Fatalf("EditSchedule(%q): expected ErrInvalidTimeFormat, got %v", tm, err)
		}
		if !e.Current().Equal(before) {
			t.Fatalf("schedule changed after rejected %q: %+v", tm, e.Current())
		}
		if e.IsDirty() {
			t.Fatalf("expected clean after rejected %q", tm)
		}
	}
}

func TestToggleScheduleTwiceRestores(t *testing.T) {
	e := NewEditor(manualBaseline())
	if err := e.ToggleSchedule(0); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if e.Current().Schedule[0].Enabled {
		t.Fatalf("expected entry disabled after first toggle")
	}
	if !e.IsDirty() {
		t.Fatalf("expected dirty after one toggle")
	}
	if err := e.ToggleSchedule(0); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !e.Current().Schedule[0].Enabled {
		t.Fatalf("expected entry enabled after second toggle")
	}
	if e.IsDirty() {
		t.Fatalf("double toggle should be structurally clean")
	}
}

func TestIndexBounds(t *testing.T) {
	e := NewEditor(manualBaseline())
	for _, idx := range []int{-1, 1, 5} {
		if err := e.ToggleSchedule(idx); !errors.Is(err, ErrInvalidIndex) {
			t.Fatalf("ToggleSchedule(%d): expected ErrInvalidIndex, got %v", idx, err)
		}
		if err := e.EditSchedule(idx, "10:00"); !errors.Is(err, ErrInvalidIndex) {
			t.Fatalf("EditSchedule(%d): expected ErrInvalidIndex, got %v", idx, err)
		}
		if err := e.DeleteSchedule(idx); !errors.Is(err, ErrInvalidIndex) {
			t.Fatalf("DeleteSchedule(%d): expected ErrInvalidIndex, got %v", idx, err)
		}
	}
	if e.IsDirty() {
		t.Fatalf("rejected operations must not dirty the editor")
	}
}

func TestAutoModeLocksScheduleMutations(t *testing.T) {
	base := manualBaseline()
	base.AutoStatus = models.Auto
	e := NewEditor(base)

	if err := e.ToggleSchedule(0); !errors.Is(err, ErrModeLocked) {
		t.Fatalf("toggle: expected ErrModeLocked, got %v", err)
	}
	if err := e.AddSchedule("10:00"); !errors.Is(err, ErrModeLocked) {
		t.Fatalf("add: expected ErrModeLocked, got %v", err)
	}
	if err := e.EditSchedule(0, "10:00"); !errors.Is(err, ErrModeLocked) {
		t.Fatalf("edit: expected ErrModeLocked, got %v", err)
	}
	if err := e.DeleteSchedule(0); !errors.Is(err, ErrModeLocked) {
		t.Fatalf("delete: expected ErrModeLocked, got %v", err)
	}
	// Mode lock wins over bounds checking.
	if err := e.ToggleSchedule(42); !errors.Is(err, ErrModeLocked) {
		t.Fatalf("toggle out of range: expected ErrModeLocked, got %v", err)
	}

	e.ToggleAutoStatus()
	if e.Current().AutoStatus != models.Manual {
		t.Fatalf("expected manual after toggling auto status")
	}
	if err := e.AddSchedule("10:00"); err != nil {
		t.Fatalf("add after unlocking: %v", err)
	}
}

func TestEditKeepsPositionAndEnabled(t *testing.T) {
	base := manualBaseline()
	base.Schedule = append(base.Schedule,
		models.ScheduleEntry{Time: "12:00", Enabled: false},
		models.ScheduleEntry{Time: "19:00", Enabled: true},
	)
	e := NewEditor(base)
	if err := e.EditSchedule(1, "13:15"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	got := e.Current().Schedule
	if got[1] != (models.ScheduleEntry{Time: "13:15", Enabled: false}) {
		t.Fatalf("unexpected edited entry: %+v", got[1])
	}
	if got[0].Time != "07:00" || got[2].Time != "19:00" {
		t.Fatalf("neighbours moved: %+v", got)
	}
}

func TestDeleteShiftsIndices(t *testing.T) {
	base := manualBaseline()
	base.Schedule = append(base.Schedule,
		models.ScheduleEntry{Time: "12:00", Enabled: true},
		models.ScheduleEntry{Time: "19:00", Enabled: true},
	)
	e := NewEditor(base)
	if err := e.DeleteSchedule(0); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got := e.Current().Schedule
	if len(got) != 2 || got[0].Time != "12:00" || got[1].Time != "19:00" {
		t.Fatalf("unexpected schedule after delete: %+v", got)
	}
	if len(e.Baseline().Schedule) != 3 {
		t.Fatalf("baseline must not change on delete")
	}
}

func TestDiscardEditsRestoresBaseline(t *testing.T) {
	e := NewEditor(manualBaseline())
	_ = e.AddSchedule("18:30")
	_ = e.ToggleSchedule(0)
	_ = e.EditSchedule(1, "19:45")
	_ = e.DeleteSchedule(0)
	e.ToggleAutoStatus()

	if !e.IsDirty() {
		t.Fatalf("expected dirty after edits")
	}
	e.DiscardEdits()
	if e.IsDirty() {
		t.Fatalf("expected clean after discard")
	}
	if !e.Current().Equal(e.Baseline()) {
		t.Fatalf("current %+v != baseline %+v", e.Current(), e.Baseline())
	}
}

func TestCopiesAreIndependent(t *testing.T) {
	base := manualBaseline()
	e := NewEditor(base)

	cur := e.Current()
	cur.Schedule[0].Time = "01:00"
	if e.Current().Schedule[0].Time != "07:00" {
		t.Fatalf("Current() leaked internal state")
	}

	base.Schedule[0].Time = "02:00"
	if e.Baseline().Schedule[0].Time != "07:00" {
		t.Fatalf("editor aliases the caller's schedule")
	}

	_ = e.ToggleSchedule(0)
	if !e.Baseline().Schedule[0].Enabled {
		t.Fatalf("mutation touched the baseline")
	}
}

func TestRebaseStripsIdentifiers(t *testing.T) {
	dc := manualBaseline()
	dc.Schedule[0].ID = "65f0c0ffee"
	e := NewEditor(dc)
	if id := e.Current().Schedule[0].ID; id != "" {
		t.Fatalf("expected stripped id, got %q", id)
	}
	if e.IsDirty() {
		t.Fatalf("fresh editor must be clean")
	}
}

func TestWriteICS(t *testing.T) {
	dc := models.DeviceControl{
		DeviceID:   "feeder-1",
		AutoStatus: models.Manual,
		Schedule: []models.ScheduleEntry{
			{Time: "07:00", Enabled: true},
			{Time: "12:00", Enabled: false},
			{Time: "18:30", Enabled: true},
		},
	}
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	if err := WriteICS(&buf, dc, time.UTC, now); err != nil {
		t.Fatalf("WriteICS: %v", err)
	}
	out := buf.String()
	if n := strings.Count(out, "BEGIN:VEVENT"); n != 2 {
		t.Fatalf("expected 2 events, got %d:\n%s", n, out)
	}
	if !strings.Contains(out, "FREQ=DAILY") {
		t.Fatalf("expected daily recurrence:\n%s", out)
	}

	dc.AutoStatus = models.Auto
	buf.Reset()
	if err := WriteICS(&buf, dc, time.UTC, now); err != nil {
		t.Fatalf("WriteICS auto: %v", err)
	}
	if strings.Contains(buf.String(), "BEGIN:VEVENT") {
		t.Fatalf("auto mode must not export events")
	}
}
