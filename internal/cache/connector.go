package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"moff.io/moff-wallet/internal/config"
	"moff.io/moff-wallet/pkg/errors"
	"moff.io/moff-wallet/pkg/log"
)

var (
	Redis       *redis.Client
	RateLimiter *redis_rate.Limiter
)

func Init(cred *config.DBCredential) {
	db, _ := strconv.ParseInt(cred.Database, 10, 64)
	client := redis.NewClient(&redis.Options{
		Addr:     cred.GetRedisAddress(),
		Password: cred.Password,
		DB:       int(db),
	})
	if _, err := client.Ping(context.TODO()).Result(); err != nil {
		log.Fatalf("ping to redis:%v", err)
	}
	Use(client)
	log.Info("Connected to redis...")
}

// Use installs client as the shared connection.
func Use(client *redis.Client) {
	Redis = client
	RateLimiter = redis_rate.NewLimiter(client)
}

func Close() {
	if Redis != nil {
		Redis.Close()
		Redis = nil
		RateLimiter = nil
	}
}

// Deduplicate claims key for ttl, false when somebody already holds it.
func Deduplicate(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	set, err := Redis.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, errors.WrapAndReport(err, "deduplicate key")
	}
	return set, nil
}

// Release drops a claim taken by Deduplicate.
func Release(ctx context.Context, key string) error {
	if err := Redis.Del(ctx, key).Err(); err != nil {
		return errors.WrapfAndReport(err, "release deduplication %v", key)
	}
	return nil
}
