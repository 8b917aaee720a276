package devserver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/homenavi/petfeeder/internal/models"
	"github.com/homenavi/petfeeder/internal/observability"
)

// PortionKg is how much food a single feed takes out of the hopper.
const PortionKg = 0.05

// Dispenser plays the devices' part for schedules: every enabled entry of a
// manual-mode device gets a daily cron job that records a SCHEDULE feed.
type Dispenser struct {
	repo    *Repo
	link    *Link
	metrics *observability.Metrics
	loc     *time.Location

	mu        sync.Mutex
	cron      *cron.Cron
	entries   map[string]cron.EntryID
	specs     map[string]string
	syncEvery time.Duration
}

func NewDispenser(repo *Repo, link *Link, metrics *observability.Metrics, loc *time.Location) *Dispenser {
	if loc == nil {
		loc = time.Local
	}
	return &Dispenser{
		repo:      repo,
		link:      link,
		metrics:   metrics,
		loc:       loc,
		cron:      cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		entries:   map[string]cron.EntryID{},
		specs:     map[string]string{},
		syncEvery: time.Minute,
	}
}

func (d *Dispenser) Start(ctx context.Context) error {
	if err := d.Sync(ctx); err != nil {
		return err
	}
	d.cron.Start()
	go d.syncLoop(ctx)
	return nil
}

func (d *Dispenser) Stop() {
	<-d.cron.Stop().Done()
}

func (d *Dispenser) syncLoop(ctx context.Context) {
	t := time.NewTicker(d.syncEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := d.Sync(ctx); err != nil {
				slog.Warn("dispenser sync failed", "error", err)
			}
		}
	}
}

// Sync makes the cron jobs match the stored schedules.
func (d *Dispenser) Sync(ctx context.Context) error {
	devices, err := d.repo.Devices(ctx)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	expected := map[string]struct{}{}
	for _, dev := range devices {
		dc, err := dev.Control()
		if err != nil {
			slog.Warn("dispenser skipping device", "device_id", dev.ID, "error", err)
			continue
		}
		if dc.AutoStatus == models.Auto {
			continue
		}
		for i, e := range dc.Schedule {
			if !e.Enabled {
				continue
			}
			spec, err := cronSpec(e.Time)
			if err != nil {
				slog.Warn("dispenser skipping entry", "device_id", dev.ID, "time", e.Time, "error", err)
				continue
			}
			entryKey := e.ID
			if entryKey == "" {
				entryKey = fmt.Sprintf("#%d", i)
			}
			key := dev.ID + ":" + entryKey
			expected[key] = struct{}{}
			if old, ok := d.specs[key]; ok && old != spec {
				d.cron.Remove(d.entries[key])
				delete(d.entries, key)
				delete(d.specs, key)
			}
			if _, ok := d.entries[key]; ok {
				continue
			}
			deviceID := dev.ID
			id, err := d.cron.AddFunc(spec, func() {
				if err := d.Dispense(context.Background(), deviceID, time.Now()); err != nil {
					slog.Error("scheduled feed failed", "device_id", deviceID, "error", err)
				}
			})
			if err != nil {
				slog.Warn("invalid cron spec", "device_id", dev.ID, "spec", spec, "error", err)
				continue
			}
			d.entries[key] = id
			d.specs[key] = spec
		}
	}

	for key, id := range d.entries {
		if _, ok := expected[key]; ok {
			continue
		}
		d.cron.Remove(id)
		delete(d.entries, key)
		delete(d.specs, key)
	}
	return nil
}

// Jobs reports the number of scheduled feeding jobs.
func (d *Dispenser) Jobs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// Dispense records one scheduled feed and lowers the food level.
func (d *Dispenser) Dispense(ctx context.Context, deviceID string, at time.Time) error {
	dev, err := d.repo.Device(ctx, deviceID)
	if err != nil {
		return err
	}
	ev := &FeedEvent{DeviceID: deviceID, FeedingTime: at.UTC().Truncate(time.Minute), TriggerType: models.TriggerSchedule}
	if err := d.repo.InsertFeedEvent(ctx, ev); err != nil {
		return err
	}
	if err := d.repo.SetFoodLevel(ctx, deviceID, dev.FoodLevel-PortionKg); err != nil {
		return err
	}
	d.metrics.ObserveDispense()
	d.link.PublishFeed(deviceID, ev.Model())
	slog.Info("scheduled feed recorded", "device_id", deviceID, "at", ev.FeedingTime)
	return nil
}

// cronSpec turns "H:mm"/"HH:mm" into a seconds-resolution daily cron spec.
func cronSpec(hhmm string) (string, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("0 %d %d * * *", t.Minute(), t.Hour()), nil
}
