package cache

import (
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/homenavi/petfeeder/internal/config"
)

// Open builds the Store selected by cfg. The returned close func releases
// the underlying connection.
func Open(cfg config.Cache, profile string) (Store, func() error, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "memory":
		return NewMemory(), func() error { return nil }, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return NewRedis(rdb, profile), rdb.Close, nil
	case "", "sqlite":
		db, err := OpenSQLite(cfg.Path)
		if err != nil {
			return nil, nil, &Error{Op: "open", Err: err}
		}
		s, err := NewSQL(db, profile)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		}
		return s, closeFn, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}
}
