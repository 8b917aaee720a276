package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type entry struct {
	Profile   string `gorm:"primaryKey"`
	Name      string `gorm:"primaryKey"`
	Value     string `gorm:"type:text"`
	UpdatedAt time.Time
}

func (entry) TableName() string { return "cache_entries" }

// SQL persists entries in a gorm-managed table, one row per (profile, key).
type SQL struct {
	db      *gorm.DB
	profile string
}

// OpenSQLite opens (creating if needed) the cache database at path.
func OpenSQLite(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, err
		}
	}
	return gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
}

func NewSQL(db *gorm.DB, profile string) (*SQL, error) {
	if err := db.AutoMigrate(&entry{}); err != nil {
		return nil, &Error{Op: "migrate", Err: err}
	}
	return &SQL{db: db, profile: profile}, nil
}

func (s *SQL) Get(ctx context.Context, key string) (string, bool, error) {
	var e entry
	err := s.db.WithContext(ctx).Where("profile = ? AND name = ?", s.profile, key).Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &Error{Op: "get", Key: key, Err: err}
	}
	return e.Value, true, nil
}

func (s *SQL) Set(ctx context.Context, key, value string) error {
	e := entry{Profile: s.profile, Name: key, Value: value, UpdatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "profile"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&e).Error
	if err != nil {
		return &Error{Op: "set", Key: key, Err: err}
	}
	return nil
}

func (s *SQL) Clear(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Where("profile = ?", s.profile).Delete(&entry{}).Error; err != nil {
		return &Error{Op: "clear", Err: err}
	}
	return nil
}
