package ratelimit

import (
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	appErrors "github.com/noah-isme/uat-crowdtest-api/pkg/errors"
	"github.com/noah-isme/uat-crowdtest-api/pkg/response"
)

// maxTrackedClients bounds the limiter map; when exceeded the map is reset.
const maxTrackedClients = 10000

// KeyFunc derives the bucket key for a request.
type KeyFunc func(c *gin.Context) string

// ClientIP buckets requests by remote address.
func ClientIP(c *gin.Context) string {
	return c.ClientIP()
}

type limiterSet struct {
	mu       sync.Mutex
	rps      rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

func (s *limiterSet) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.limiters[key]; ok {
		return l
	}
	if len(s.limiters) >= maxTrackedClients {
		s.limiters = make(map[string]*rate.Limiter)
	}
	l := rate.NewLimiter(s.rps, s.burst)
	s.limiters[key] = l
	return l
}

// New returns a token-bucket limiter per key. A non-positive rps disables limiting.
func New(rps float64, burst int, key KeyFunc) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst <= 0 {
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	if key == nil {
		key = ClientIP
	}
	set := &limiterSet{rps: rate.Limit(rps), burst: burst, limiters: make(map[string]*rate.Limiter)}

	return func(c *gin.Context) {
		if !set.get(key(c)).Allow() {
			response.Abort(c, appErrors.ErrRateLimited)
			return
		}
		c.Next()
	}
}
