package cache

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// Redis keeps the session under "petfeeder:<profile>:<key>". Entries do not
// expire; Clear removes every key of the profile.
type Redis struct {
	rdb    *redis.Client
	prefix string
}

func NewRedis(rdb *redis.Client, profile string) *Redis {
	if profile == "" {
		profile = "default"
	}
	return &Redis{rdb: rdb, prefix: "petfeeder:" + profile + ":"}
}

func (r *Redis) key(k string) string { return r.prefix + k }

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.rdb.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &Error{Op: "get", Key: key, Err: err}
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := r.rdb.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return &Error{Op: "set", Key: key, Err: err}
	}
	return nil
}

func (r *Redis) Clear(ctx context.Context) error {
	iter := r.rdb.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return &Error{Op: "clear", Err: err}
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		return &Error{Op: "clear", Err: err}
	}
	return nil
}
