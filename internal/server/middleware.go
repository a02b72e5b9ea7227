package server

import (
	"bytes"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	limiters  map[string]*rate.Limiter
	mu        sync.Mutex
	rateLimit rate.Limit
	burstSize int
}

// NewRateLimiter creates a limiter allowing rateLimit requests per second with burstSize burst.
func NewRateLimiter(rateLimit rate.Limit, burstSize int) *RateLimiter {
	return &RateLimiter{
		limiters:  make(map[string]*rate.Limiter),
		rateLimit: rateLimit,
		burstSize: burstSize,
	}
}

// GetLimiter returns the limiter for ip, creating it on first use.
func (rl *RateLimiter) GetLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.limiters[ip]
	if !exists {
		limiter = rate.NewLimiter(rl.rateLimit, rl.burstSize)
		rl.limiters[ip] = limiter
	}

	return limiter
}

// NewRateLimitMiddleware rejects clients exceeding rps requests per second with 429.
func NewRateLimitMiddleware(rps float64, burst int, logger *slog.Logger) func(http.Handler) http.Handler {
	limiter := NewRateLimiter(rate.Limit(rps), burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)

			if !limiter.GetLimiter(ip).Allow() {
				logger.Warn("rate_limit_exceeded", "ip", ip, "path", r.URL.Path)
				respondError(w, logger, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP strips the port RealIP leaves on RemoteAddr for direct connections.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// NewSignatureMiddleware requires a valid X-Launchpad-Signature over the request body.
// The body is restored for the handler.
func NewSignatureMiddleware(secret string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(io.LimitReader(r.Body, MaxPayloadBytes+1))
			if err != nil {
				respondError(w, logger, http.StatusBadRequest, "Failed to read payload")
				return
			}
			if len(body) > MaxPayloadBytes {
				respondError(w, logger, http.StatusRequestEntityTooLarge, "Payload too large")
				return
			}

			if !VerifySignature(body, r.Header.Get(SignatureHeader), secret) {
				logger.Warn("invalid_signature", "ip", clientIP(r), "path", r.URL.Path)
				respondError(w, logger, http.StatusForbidden, "Invalid signature")
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger logs one line per request.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.Info("http_request",
					"request_id", middleware.GetReqID(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"duration_ms", time.Since(start).Milliseconds())
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
