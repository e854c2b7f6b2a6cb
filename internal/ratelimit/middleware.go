package ratelimit

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Middleware は rule を超えたクライアントに 429 を返すミドルウェアです。
// クライアントIPは gin の信頼済みプロキシ設定に従って解決されます。
func (l *Limiter) Middleware(rule Rule) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision := l.Allow(c.Request.Context(), rule, c.ClientIP())
		if decision.Allowed {
			c.Next()
			return
		}

		// Retry-After は秒数で返す（切り上げ、最低1秒）
		seconds := int64(math.Ceil(decision.RetryAfter.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		c.Header("Retry-After", strconv.FormatInt(seconds, 10))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"code":    "RATE_LIMITED",
			"message": "リクエストが多すぎます。しばらくしてから再度お試しください。",
		})
	}
}
