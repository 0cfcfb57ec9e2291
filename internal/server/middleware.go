package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/veilproject/veil/internal/config"
)

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware assigns each request an id and logs its outcome.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		w.Header().Set("X-Request-ID", requestID)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rw, r)

		s.logger.WithRequestID(requestID).Info("Request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rw.statusCode),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", getClientIP(r)),
		)
	})
}

// clientLimiter keeps one token bucket per client IP.
type clientLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	config   config.RateLimitConfig
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(cfg config.RateLimitConfig) *clientLimiter {
	return &clientLimiter{
		limiters: make(map[string]*limiterEntry),
		config:   cfg,
	}
}

// allow reports whether the client may proceed under its rate limit.
func (cl *clientLimiter) allow(clientIP string) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	entry, exists := cl.limiters[clientIP]
	if !exists {
		entry = &limiterEntry{
			limiter: rate.NewLimiter(rate.Limit(cl.config.RequestsPerSecond), cl.config.Burst),
		}
		cl.limiters[clientIP] = entry
	}
	entry.lastSeen = time.Now()

	return entry.limiter.Allow()
}

// startCleanup evicts limiters for clients idle longer than ten minutes.
func (cl *clientLimiter) startCleanup() {
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()

		for range ticker.C {
			cl.mu.Lock()
			for ip, entry := range cl.limiters {
				if time.Since(entry.lastSeen) > 10*time.Minute {
					delete(cl.limiters, ip)
				}
			}
			cl.mu.Unlock()
		}
	}()
}

// rateLimitMiddleware rejects clients that exceed their per-IP rate limit.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.config.Server.RateLimit.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		clientIP := getClientIP(r)
		if !s.limiter.allow(clientIP) {
			s.logger.Warn("Rate limit exceeded", zap.String("client_ip", clientIP))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header first
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// Fall back to RemoteAddr
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
