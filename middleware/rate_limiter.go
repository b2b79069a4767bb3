package middleware

import (
	"net/http"
	"sync"
	"time"

	"coachly/config"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// limiterPool hands out one token bucket per client address. Entries live for
// the process lifetime; the booking API's client population is small enough
// that eviction has not been needed.
type limiterPool struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

var pool = &limiterPool{limiters: make(map[string]*rate.Limiter)}

func (p *limiterPool) get(ip string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if l, ok := p.limiters[ip]; ok {
		return l
	}
	perMin := config.AppConfig.MaxRequestsPerMin
	if perMin <= 0 {
		perMin = 100
	}
	l := rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMin)), perMin)
	p.limiters[ip] = l
	return l
}

// RateLimitMiddleware throttles requests per client address at the
// MAX_REQUESTS_PER_MIN configured rate.
func RateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := clientIP(c)
		if !pool.get(ip).Allow() {
			zap.L().Warn("rate limit exceeded", zap.String("ip", ip))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded. Try again later."})
			return
		}
		c.Next()
	}
}
