package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/homenavi/petfeeder/internal/models"
	"github.com/homenavi/petfeeder/internal/mqtt"
)

const DefaultTopicPrefix = "petfeeder/device/"

var ErrNotAnEventTopic = errors.New("not an event topic")

type Publisher interface {
	Publish(topic string, retained bool, payload []byte) error
}

// Link is the MQTT side of the backend: it pushes configuration and feed
// commands to devices and ingests the feeds devices report themselves.
// A Link without a publisher only ingests.
type Link struct {
	pub    Publisher
	prefix string
	repo   *Repo
}

func NewLink(pub Publisher, prefix string, repo *Repo) *Link {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Link{pub: pub, prefix: prefix, repo: repo}
}

// EventTopic is the subscription filter for device-reported feeds.
func (l *Link) EventTopic() string { return l.prefix + "+/event" }

func (l *Link) PublishConfig(dc models.DeviceControl) {
	if l == nil {
		return
	}
	l.publish(l.prefix+dc.DeviceID+"/config", true, dc)
}

func (l *Link) PublishFeed(deviceID string, ev models.FeedEvent) {
	if l == nil {
		return
	}
	l.publish(l.prefix+deviceID+"/feed", false, ev)
}

func (l *Link) publish(topic string, retained bool, v any) {
	if l.pub == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		slog.Warn("mqtt payload encode failed", "topic", topic, "error", err)
		return
	}
	if err := l.pub.Publish(topic, retained, b); err != nil {
		slog.Warn("mqtt publish failed", "topic", topic, "error", err)
	}
}

type deviceEvent struct {
	TriggerType string    `json:"triggerType"`
	FeedingTime time.Time `json:"feedingTime"`
	FoodLevel   *float64  `json:"foodLevel"`
}

// HandleMessage stores a feed reported on <prefix><deviceID>/event.
func (l *Link) HandleMessage(ctx context.Context, msg mqtt.Message, receivedAt time.Time) {
	topic := msg.Topic()
	if msg.Retained() {
		slog.Debug("feed ingest ignoring retained", "topic", topic)
		return
	}
	deviceID, err := ParseEventTopic(l.prefix, topic)
	if err != nil {
		if !errors.Is(err, ErrNotAnEventTopic) {
			slog.Warn("feed ingest topic parse failed", "topic", topic, "error", err)
		}
		return
	}

	var ev deviceEvent
	if err := json.Unmarshal(msg.Payload(), &ev); err != nil {
		slog.Warn("feed ingest invalid json", "topic", topic, "device_id", deviceID)
		return
	}
	if ev.TriggerType == "" {
		ev.TriggerType = models.TriggerMotion
	}
	if ev.FeedingTime.IsZero() {
		ev.FeedingTime = receivedAt
	}

	if err := l.repo.EnsureDevice(ctx, deviceID, 0); err != nil {
		slog.Error("feed ingest device upsert failed", "device_id", deviceID, "error", err)
		return
	}
	row := &FeedEvent{DeviceID: deviceID, FeedingTime: ev.FeedingTime.UTC(), TriggerType: strings.ToUpper(ev.TriggerType)}
	if err := l.repo.InsertFeedEvent(ctx, row); err != nil {
		slog.Error("feed ingest db insert failed", "device_id", deviceID, "error", err)
		return
	}
	if ev.FoodLevel != nil {
		if err := l.repo.SetFoodLevel(ctx, deviceID, *ev.FoodLevel); err != nil {
			slog.Warn("feed ingest food level update failed", "device_id", deviceID, "error", err)
		}
	}
	slog.Debug("device feed stored", "device_id", deviceID, "trigger", row.TriggerType)
}

func ParseEventTopic(prefix, topic string) (string, error) {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	if !strings.HasPrefix(topic, prefix) || !strings.HasSuffix(topic, "/event") {
		return "", ErrNotAnEventTopic
	}
	id := strings.TrimSuffix(strings.TrimPrefix(topic, prefix), "/event")
	if id == "" || strings.Contains(id, "/") {
		return "", errors.New("invalid device id in topic")
	}
	return id, nil
}
