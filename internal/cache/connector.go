// Package cache holds the optional redis connection. When configured it
// backs the per client rate limit of the verification steps.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"moff.io/wallet-verify/internal/config"
	"moff.io/wallet-verify/pkg/errors"
	"moff.io/wallet-verify/pkg/log"
)

var (
	Redis       *redis.Client
	RateLimiter *redis_rate.Limiter
)

func Init(cred *config.DBCredential) error {
	db, _ := strconv.ParseInt(cred.Database, 10, 64)
	client := redis.NewClient(&redis.Options{
		Addr:     cred.GetRedisAddress(),
		Password: cred.Password,
		DB:       int(db),
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return errors.WrapAndReport(err, "ping to redis")
	}
	Redis = client
	RateLimiter = redis_rate.NewLimiter(Redis)
	log.Infof("Redis connected at %v", cred.GetRedisAddress())
	return nil
}

func Close() {
	if Redis != nil {
		Redis.Close()
		Redis = nil
		RateLimiter = nil
	}
}

const stepKeyPrefix = "wallet_verify:step:"

// StepLimiter limits how many verification steps one client may run per minute.
type StepLimiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
}

func NewStepLimiter(limiter *redis_rate.Limiter, perMinute int) *StepLimiter {
	return &StepLimiter{
		limiter: limiter,
		limit:   redis_rate.PerMinute(perMinute),
	}
}

// Allow consumes one step for client. When denied, retryAfter tells when the next step is allowed.
func (l *StepLimiter) Allow(ctx context.Context, client string) (allowed bool, retryAfter time.Duration, err error) {
	res, err := l.limiter.Allow(ctx, stepKey(client), l.limit)
	if err != nil {
		return false, 0, errors.Wrap(err, "redis rate limit")
	}
	return res.Allowed > 0, res.RetryAfter, nil
}

func stepKey(client string) string {
	return fmt.Sprintf("%v%v", stepKeyPrefix, client)
}
