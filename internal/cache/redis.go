// Package cache wraps the Redis client used for distributed locks (UTXO
// leases, the JWKS refresh guard) and shared with the Redis Streams event
// bus, plus plain key/value helpers.
package cache

import (
	"context"
	"time"

	"wallet-server/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Config struct {
	Host     string
	Port     string
	Password string
	DB       int
}

var Client *redis.Client

func Init(cfg Config) error {
	opts := redis.Options{
		Addr:     cfg.Host + ":" + cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	rdb := redis.NewClient(&opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Error("failed to connect to redis", zap.Error(err))
		return err
	}

	Client = rdb
	logger.Info("connected to redis successfully", zap.String("host", cfg.Host))
	return nil
}

func Get(ctx context.Context, key string) (string, error) {
	val, err := Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	} else if err != nil {
		logger.Error("failed to get key from redis", zap.String("key", key), zap.Error(err))
		return "", err
	}
	return val, nil
}

func Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := Client.Set(ctx, key, value, expiration).Err(); err != nil {
		logger.Error("failed to set key in redis", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

func Delete(ctx context.Context, keys ...string) (int64, error) {
	res, err := Client.Del(ctx, keys...).Result()
	if err != nil {
		logger.Error("failed to delete keys from redis", zap.Strings("keys", keys), zap.Error(err))
		return 0, err
	}
	return res, nil
}

func Exists(ctx context.Context, key string) (bool, error) {
	res, err := Client.Exists(ctx, key).Result()
	if err != nil {
		logger.Error("failed to check existence of key in redis", zap.String("key", key), zap.Error(err))
		return false, err
	}
	return res > 0, nil
}

// SetNX acquires a lock for the given key, used to serialize UTXO
// prepare/sign/release against concurrent payment attempts over the same
// inputs.
func SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	set, err := Client.SetNX(ctx, key, value, expiration).Result()
	if err != nil {
		logger.Error("failed to set nx key in redis", zap.String("key", key), zap.Error(err))
		return false, err
	}
	return set, nil
}

func Incr(ctx context.Context, key string) (int64, error) {
	res, err := Client.Incr(ctx, key).Result()
	if err != nil {
		logger.Error("failed to increment key in redis", zap.String("key", key), zap.Error(err))
		return 0, err
	}
	return res, nil
}

func Expire(ctx context.Context, key string, expiration time.Duration) error {
	if err := Client.Expire(ctx, key, expiration).Err(); err != nil {
		logger.Error("failed to set expiration on key in redis", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

func Ping(ctx context.Context) error {
	return Client.Ping(ctx).Err()
}

func Close() error {
	if Client != nil {
		return Client.Close()
	}
	return nil
}

// ReleaseLock deletes a lock key only if it still holds the expected
// token, avoiding a release racing a new holder's acquisition after
// expiry (UTXO lease hygiene, PrepareTransaction/ReleasePreparedTransaction).
func ReleaseLock(ctx context.Context, key, token string) error {
	script := redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		end
		return 0
	`)
	return script.Run(ctx, Client, []string{key}, token).Err()
}
