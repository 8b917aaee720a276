package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/homenavi/petfeeder/internal/config"
	"github.com/homenavi/petfeeder/internal/models"
)

var (
	ErrUserExists      = errors.New("username already exists")
	ErrDeviceNotFound  = errors.New("device not found")
	ErrInvalidSchedule = errors.New("invalid schedule")
)

type User struct {
	ID           string `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	DeviceID     string `gorm:"index"`
	CreatedAt    time.Time
}

type Device struct {
	ID         string `gorm:"primaryKey"`
	AutoStatus int
	Schedule   datatypes.JSON
	FoodLevel  float64
	UpdatedAt  time.Time
}

type FeedEvent struct {
	ID          string    `gorm:"primaryKey"`
	DeviceID    string    `gorm:"index:idx_feed_device_time,priority:1"`
	FeedingTime time.Time `gorm:"index:idx_feed_device_time,priority:2"`
	TriggerType string
}

func OpenPostgres(c config.DBConfig) (*gorm.DB, error) {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC", c.Host, c.User, c.Password, c.DBName, c.Port, sslMode)
	return gorm.Open(postgres.Open(dsn), &gorm.Config{})
}

// OpenDB opens the database selected by c.Driver ("sqlite" or "postgres").
func OpenDB(c config.DBConfig) (*gorm.DB, error) {
	switch strings.ToLower(c.Driver) {
	case "postgres", "postgresql":
		return OpenPostgres(c)
	case "", "sqlite":
		return gorm.Open(sqlite.Open(c.SQLitePath), &gorm.Config{})
	default:
		return nil, fmt.Errorf("unknown db driver %q", c.Driver)
	}
}

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) (*Repo, error) {
	if err := db.AutoMigrate(&User{}, &Device{}, &FeedEvent{}); err != nil {
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) CreateUser(ctx context.Context, username, passwordHash string) (*User, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&User{}).Where("username = ?", username).Count(&n).Error; err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, ErrUserExists
	}
	u := &User{ID: uuid.New().String(), Username: username, PasswordHash: passwordHash, CreatedAt: time.Now().UTC()}
	if err := r.db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

func (r *Repo) UserByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	if err := r.db.WithContext(ctx).Where("username = ?", username).Take(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repo) LinkDevice(ctx context.Context, userID, deviceID string) error {
	return r.db.WithContext(ctx).Model(&User{}).Where("id = ?", userID).Update("device_id", deviceID).Error
}

// EnsureDevice creates an empty manual-mode device if it does not exist yet.
func (r *Repo) EnsureDevice(ctx context.Context, deviceID string, foodLevel float64) error {
	d := Device{ID: deviceID, Schedule: datatypes.JSON("[]"), FoodLevel: foodLevel, UpdatedAt: time.Now().UTC()}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&d).Error
}

func (r *Repo) Device(ctx context.Context, deviceID string) (*Device, error) {
	var d Device
	err := r.db.WithContext(ctx).Where("id = ?", deviceID).Take(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *Repo) Devices(ctx context.Context) ([]Device, error) {
	var out []Device
	err := r.db.WithContext(ctx).Order("id").Find(&out).Error
	return out, err
}

// DeviceControl returns the canonical configuration of a device.
func (r *Repo) DeviceControl(ctx context.Context, deviceID string) (models.DeviceControl, error) {
	d, err := r.Device(ctx, deviceID)
	if err != nil {
		return models.DeviceControl{}, err
	}
	return d.Control()
}

// SaveDeviceControl replaces the device's configuration. Every entry gets a
// fresh identifier: the stored form is canonical, submissions never are.
func (r *Repo) SaveDeviceControl(ctx context.Context, deviceID string, dc models.DeviceControl) (models.DeviceControl, error) {
	if _, err := r.Device(ctx, deviceID); err != nil {
		return models.DeviceControl{}, err
	}
	canonical := models.DeviceControl{DeviceID: deviceID, AutoStatus: dc.AutoStatus, Schedule: make([]models.ScheduleEntry, len(dc.Schedule))}
	for i, e := range dc.Schedule {
		canonical.Schedule[i] = models.ScheduleEntry{ID: uuid.New().String(), Time: e.Time, Enabled: e.Enabled}
	}
	raw, err := json.Marshal(canonical.Schedule)
	if err != nil {
		return models.DeviceControl{}, err
	}
	err = r.db.WithContext(ctx).Model(&Device{}).Where("id = ?", deviceID).Updates(map[string]any{
		"auto_status": int(canonical.AutoStatus),
		"schedule":    datatypes.JSON(raw),
		"updated_at":  time.Now().UTC(),
	}).Error
	if err != nil {
		return models.DeviceControl{}, err
	}
	return canonical, nil
}

func (r *Repo) InsertFeedEvent(ctx context.Context, e *FeedEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.FeedingTime.IsZero() {
		e.FeedingTime = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(e).Error
}

// FeedEvents lists a device's feeds, newest first.
func (r *Repo) FeedEvents(ctx context.Context, deviceID string, limit int) ([]FeedEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	var out []FeedEvent
	err := r.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("feeding_time desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *Repo) SetFoodLevel(ctx context.Context, deviceID string, level float64) error {
	if level < 0 {
		level = 0
	}
	return r.db.WithContext(ctx).Model(&Device{}).Where("id = ?", deviceID).Update("food_level", level).Error
}

func (d Device) Control() (models.DeviceControl, error) {
	dc := models.DeviceControl{DeviceID: d.ID, AutoStatus: models.AutoStatus(d.AutoStatus), Schedule: []models.ScheduleEntry{}}
	if len(d.Schedule) > 0 {
		if err := json.Unmarshal(d.Schedule, &dc.Schedule); err != nil {
			return models.DeviceControl{}, fmt.Errorf("decode schedule of %s: %w", d.ID, err)
		}
	}
	if dc.Schedule == nil {
		dc.Schedule = []models.ScheduleEntry{}
	}
	return dc, nil
}

func (e FeedEvent) Model() models.FeedEvent {
	return models.FeedEvent{ID: e.ID, DeviceID: e.DeviceID, FeedingTime: e.FeedingTime.UTC(), TriggerType: e.TriggerType}
}
