package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// BodySizeLimit caps the request body size for mutating requests. Execution
// and schedule payloads are small parameter maps; anything larger is a
// client bug.
func BodySizeLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet ||
			c.Request.Method == http.MethodHead ||
			c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		if c.Request.ContentLength > maxBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// LoginRateLimit throttles an endpoint per client IP over a fixed window,
// used to slow brute-force attempts against the admin login.
func LoginRateLimit(attempts int, window time.Duration) gin.HandlerFunc {
	type bucket struct {
		count int
		reset time.Time
	}

	var mu sync.Mutex
	clients := map[string]*bucket{}

	return func(c *gin.Context) {
		now := time.Now()

		mu.Lock()
		b, ok := clients[c.ClientIP()]
		if !ok || now.After(b.reset) {
			b = &bucket{reset: now.Add(window)}
			clients[c.ClientIP()] = b
			// Opportunistic cleanup of expired buckets.
			for ip, old := range clients {
				if now.After(old.reset) && ip != c.ClientIP() {
					delete(clients, ip)
				}
			}
		}
		b.count++
		blocked := b.count > attempts
		mu.Unlock()

		if blocked {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many attempts, try again later"})
			c.Abort()
			return
		}
		c.Next()
	}
}
