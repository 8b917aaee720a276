package devserver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/homenavi/petfeeder/internal/models"
	"github.com/homenavi/petfeeder/internal/observability"
)

func TestCronSpec(t *testing.T) {
	cases := map[string]string{
		"07:00": "0 0 7 * * *",
		"7:05":  "0 5 7 * * *",
		"23:59": "0 59 23 * * *",
	}
	for in, want := range cases {
		got, err := cronSpec(in)
		if err != nil || got != want {
			t.Fatalf("%s: expected %q, got %q (%v)", in, want, got, err)
		}
	}
	if _, err := cronSpec("noon"); err == nil {
		t.Fatalf("expected error for malformed time")
	}
}

func TestDispenserSyncFollowsSchedules(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	_ = repo.EnsureDevice(ctx, "feeder-1", 1)
	_ = repo.EnsureDevice(ctx, "feeder-2", 1)

	d := NewDispenser(repo, nil, nil, time.UTC)
	if _, err := repo.SaveDeviceControl(ctx, "feeder-1", models.DeviceControl{
		Schedule: []models.ScheduleEntry{{Time: "07:00", Enabled: true}, {Time: "12:00", Enabled: false}, {Time: "18:30", Enabled: true}},
	}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := repo.SaveDeviceControl(ctx, "feeder-2", models.DeviceControl{
		AutoStatus: models.Auto,
		Schedule:   []models.ScheduleEntry{{Time: "08:00", Enabled: true}},
	}); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := d.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if got := d.Jobs(); got != 2 {
		t.Fatalf("expected 2 jobs (enabled manual entries only), got %d", got)
	}

	// Re-saving assigns new ids, so the old jobs are replaced rather than added to.
	if _, err := repo.SaveDeviceControl(ctx, "feeder-1", models.DeviceControl{
		Schedule: []models.ScheduleEntry{{Time: "09:00", Enabled: true}},
	}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := d.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if got := d.Jobs(); got != 1 {
		t.Fatalf("expected 1 job after update, got %d", got)
	}
}

func TestDispenseRecordsFeed(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	_ = repo.EnsureDevice(ctx, "feeder-1", 1)
	pub := &recordingPublisher{}
	m := observability.NewMetrics()
	d := NewDispenser(repo, NewLink(pub, "", repo), m, time.UTC)

	at := time.Date(2024, 5, 1, 7, 0, 12, 0, time.UTC)
	if err := d.Dispense(ctx, "feeder-1", at); err != nil {
		t.Fatalf("Dispense: %v", err)
	}

	events, err := repo.FeedEvents(ctx, "feeder-1", 10)
	if err != nil || len(events) != 1 {
		t.Fatalf("expected one event, got %d (%v)", len(events), err)
	}
	if events[0].TriggerType != models.TriggerSchedule || !events[0].FeedingTime.Equal(at.Truncate(time.Minute)) {
		t.Fatalf("unexpected event %+v", events[0])
	}
	dev, _ := repo.Device(ctx, "feeder-1")
	if dev.FoodLevel != 1-PortionKg {
		t.Fatalf("expected food level to drop, got %v", dev.FoodLevel)
	}
	raw, ok := pub.get("petfeeder/device/feeder-1/feed")
	if !ok {
		t.Fatalf("expected feed command published")
	}
	var ev models.FeedEvent
	if err := json.Unmarshal(raw, &ev); err != nil || ev.TriggerType != models.TriggerSchedule {
		t.Fatalf("unexpected feed payload %s", raw)
	}
	if got := testutil.ToFloat64(m.DispensedFeeds); got != 1 {
		t.Fatalf("expected dispense counted, got %v", got)
	}

	if err := d.Dispense(ctx, "missing", at); err == nil {
		t.Fatalf("expected error for unknown device")
	}
}
