package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v9"
	"moff.io/moff-wallet/pkg/log"
)

type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisLimiter is a per second GCRA limit shared across instances through redis.
type RedisLimiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
}

func NewRedisLimiter(limiter *redis_rate.Limiter, perSecond int) *RedisLimiter {
	return &RedisLimiter{limiter: limiter, limit: redis_rate.PerSecond(perSecond)}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	res, err := l.limiter.Allow(ctx, key, l.limit)
	if err != nil {
		return false, err
	}
	return res.Allowed > 0, nil
}

// rateLimit keys on the client ip. A failing limiter lets the request through.
func rateLimit(limiter Limiter, name string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if limiter == nil {
			ctx.Next()
			return
		}
		allowed, err := limiter.Allow(ctx.Request.Context(), "rate:"+name+":"+ctx.ClientIP())
		if err != nil {
			log.Warnf("rate limit %v: %v", name, err)
			ctx.Next()
			return
		}
		if !allowed {
			ctx.AbortWithStatusJSON(http.StatusTooManyRequests, map[string]interface{}{
				"error": "too many requests",
			})
			return
		}
		ctx.Next()
	}
}
