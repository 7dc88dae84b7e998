package http

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"moff.io/wallet-verify/pkg/log"
)

// rateLimit rejects step requests over the client's budget. A limiter
// failure lets the request through.
func rateLimit(limiter StepLimiter) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		allowed, retryAfter, err := limiter.Allow(ctx.Request.Context(), ctx.ClientIP())
		if err != nil {
			log.Warnf("rate limit %v:%v", ctx.ClientIP(), err)
			ctx.Next()
			return
		}
		if !allowed {
			ctx.Header("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			ctx.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code": http.StatusTooManyRequests,
				"msg":  "Too many requests, please slow down.",
			})
			return
		}
		ctx.Next()
	}
}
