// VersePulse - Anonymous Session and Tag Attribution Analytics
// Copyright 2026 VersePulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/versepulse/versepulse

package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/versepulse/versepulse/internal/metrics"
)

// StackConfig holds configuration for the shared middleware factories.
type StackConfig struct {
	// CORS configuration. Origins default to empty, requiring explicit
	// configuration rather than an accidental wildcard.
	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
	CORSMaxAge           int // seconds

	// Rate limiting configuration.
	RateLimitDisabled bool
}

// DefaultStackConfig returns a secure default configuration.
func DefaultStackConfig() *StackConfig {
	return &StackConfig{
		CORSAllowedOrigins:   []string{},
		CORSAllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		CORSAllowedHeaders:   []string{"Content-Type", "X-Request-ID", "X-Tenant-Hint"},
		CORSAllowCredentials: true, // session cookies cross subdomains
		CORSMaxAge:           86400,
	}
}

// Stack provides Chi-compatible middleware factories backed by the
// go-chi ecosystem.
type Stack struct {
	config *StackConfig
	cors   func(http.Handler) http.Handler
}

// NewStack creates a middleware factory with the given configuration.
func NewStack(config *StackConfig) *Stack {
	if config == nil {
		config = DefaultStackConfig()
	}

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   config.CORSAllowedOrigins,
		AllowedMethods:   config.CORSAllowedMethods,
		AllowedHeaders:   config.CORSAllowedHeaders,
		AllowCredentials: config.CORSAllowCredentials,
		MaxAge:           config.CORSMaxAge,
	})

	return &Stack{
		config: config,
		cors:   corsHandler,
	}
}

// CORS returns the CORS middleware.
func (s *Stack) CORS() func(http.Handler) http.Handler {
	return s.cors
}

// RateLimitConfig defines rate limit parameters for an endpoint group.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// Per-endpoint-group limits. Ingestion is permissive: every pageview
// on every tenant site lands there. Analytics reads are heavier
// queries behind a dashboard.
var (
	RateLimitIngest    = RateLimitConfig{Requests: 600, Window: time.Minute}
	RateLimitAnalytics = RateLimitConfig{Requests: 120, Window: time.Minute}
	RateLimitHealth    = RateLimitConfig{Requests: 1000, Window: time.Minute}
)

// RateLimit returns an IP-keyed rate limiter for the given limits.
// Rejections are counted per endpoint before the 429 is written.
func (s *Stack) RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if s.config.RateLimitDisabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return httprate.Limit(
		cfg.Requests,
		cfg.Window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			metrics.APIRateLimitHits.WithLabelValues(r.URL.Path).Inc()
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)
}

// SecurityHeaders adds standard security headers to API responses.
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}
