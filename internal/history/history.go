package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/homenavi/petfeeder/internal/cache"
	"github.com/homenavi/petfeeder/internal/models"
)

// ErrUnpaired is returned when no device is paired with the session.
var ErrUnpaired = errors.New("no device is being tracked")

const TimeLayout = "15:04 02/01/2006"

type API interface {
	FetchHistory(ctx context.Context, deviceID string) (models.HistoryResponse, error)
}

// Report is the feed history of the paired device.
type Report struct {
	DeviceID        string             `json:"device_id" yaml:"device_id"`
	LatestFoodLevel float64            `json:"latest_food_level" yaml:"latest_food_level"`
	Events          []models.FeedEvent `json:"events" yaml:"events"`
}

type Viewer struct {
	api   API
	store cache.Store
}

func NewViewer(api API, store cache.Store) *Viewer {
	return &Viewer{api: api, store: store}
}

func (v *Viewer) Load(ctx context.Context) (Report, error) {
	deviceID, ok, err := cache.PairedDeviceID(ctx, v.store)
	if err != nil {
		return Report{}, fmt.Errorf("read paired device: %w", err)
	}
	if !ok {
		return Report{}, ErrUnpaired
	}
	resp, err := v.api.FetchHistory(ctx, deviceID)
	if err != nil {
		return Report{}, fmt.Errorf("fetch history: %w", err)
	}
	events := resp.History
	if events == nil {
		events = []models.FeedEvent{}
	}
	return Report{DeviceID: deviceID, LatestFoodLevel: resp.Stats.LatestFoodLevel, Events: events}, nil
}

// Label is the human form of an event's trigger.
func Label(e models.FeedEvent) string {
	if e.Automatic() {
		return "automatic"
	}
	return "scheduled"
}

func formatTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(TimeLayout)
}
