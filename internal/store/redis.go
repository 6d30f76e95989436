package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis wraps redis client.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to redis with short timeouts.
func NewRedis(addr, password string, db int) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}

// RedisMarks keeps submission flags in Redis so they survive a device
// database reset. Keys carry no TTL; flags accumulate.
type RedisMarks struct {
	client *redis.Client
	ns     string
}

// NewRedisMarks stores flags under ns (default "attendx").
func NewRedisMarks(client *redis.Client, ns string) *RedisMarks {
	if ns == "" {
		ns = "attendx"
	}
	return &RedisMarks{client: client, ns: ns}
}

func (m *RedisMarks) key(deviceID, subjectName, date string) string {
	return m.ns + ":" + deviceID + ":" + MarkKey(date, subjectName)
}

func (m *RedisMarks) IsMarked(ctx context.Context, deviceID, subjectName, date string) (bool, error) {
	if deviceID == "" {
		return false, errDeviceRequired
	}
	v, err := m.client.Get(ctx, m.key(deviceID, subjectName, date)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v == "true", nil
}

func (m *RedisMarks) SetMarked(ctx context.Context, deviceID, subjectName, date string) error {
	if deviceID == "" {
		return errDeviceRequired
	}
	return m.client.Set(ctx, m.key(deviceID, subjectName, date), "true", 0).Err()
}
