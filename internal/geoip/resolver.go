// VersePulse - Anonymous Session and Tag Attribution Analytics
// Copyright 2026 VersePulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/versepulse/versepulse

// Package geoip resolves session IP addresses to coarse geographic
// locations. Lookups hit the geolocations table first; cache misses go
// to external providers behind a rate limiter and a circuit breaker.
// Private and link-local addresses are never sent to a provider.
package geoip

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/versepulse/versepulse/internal/logging"
	"github.com/versepulse/versepulse/internal/models"
)

// GeolocationDB is the database surface the resolver caches through.
type GeolocationDB interface {
	GetGeolocation(ctx context.Context, ipAddress string) (*models.Geolocation, error)
	UpsertGeolocation(ctx context.Context, geo *models.Geolocation) error
}

// Resolver handles geolocation resolution with provider fallback and
// database caching.
type Resolver struct {
	providers []Provider
	db        GeolocationDB
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker[*models.Geolocation]
}

// NewResolver creates a resolver trying the given providers in order.
// ratePerSecond bounds outbound provider calls; zero or negative
// disables the limit.
func NewResolver(db GeolocationDB, ratePerSecond float64, providers ...Provider) *Resolver {
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}

	breaker := gobreaker.NewCircuitBreaker[*models.Geolocation](gobreaker.Settings{
		Name:        "geoip-providers",
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("GeoIP circuit breaker state changed")
		},
	})

	return &Resolver{
		providers: providers,
		db:        db,
		limiter:   rate.NewLimiter(limit, 1),
		breaker:   breaker,
	}
}

// Resolve fetches geolocation for an IP, using the cache first, then
// providers. Results are written back to the cache.
func (r *Resolver) Resolve(ctx context.Context, ipAddress string) (*models.Geolocation, error) {
	ipAddress = NormalizeIP(ipAddress)

	if IsPrivateIP(ipAddress) {
		return r.resolvePrivate(ctx, ipAddress)
	}

	if geo := r.fromCache(ctx, ipAddress); geo != nil {
		return geo, nil
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("failed to acquire lookup slot: %w", err)
	}

	geo, err := r.breaker.Execute(func() (*models.Geolocation, error) {
		return r.fromProviders(ctx, ipAddress)
	})
	if err != nil {
		return nil, err
	}

	r.cache(ctx, geo)
	return geo, nil
}

func (r *Resolver) resolvePrivate(ctx context.Context, ipAddress string) (*models.Geolocation, error) {
	logging.Debug().Str("ip", ipAddress).Msg("IP is private, recording local geolocation")
	geo := LocalGeolocation(ipAddress)
	r.cache(ctx, geo)
	return geo, nil
}

func (r *Resolver) fromCache(ctx context.Context, ipAddress string) *models.Geolocation {
	if r.db == nil {
		return nil
	}

	geo, err := r.db.GetGeolocation(ctx, ipAddress)
	if err == nil && geo != nil {
		return geo
	}
	return nil
}

func (r *Resolver) fromProviders(ctx context.Context, ipAddress string) (*models.Geolocation, error) {
	var lastErr error

	for _, provider := range r.providers {
		if !provider.IsAvailable() {
			continue
		}

		geo, err := provider.Lookup(ctx, ipAddress)
		if err != nil {
			logging.Debug().
				Err(err).
				Str("provider", provider.Name()).
				Str("ip", ipAddress).
				Msg("GeoIP provider failed")
			lastErr = err
			continue
		}
		return geo, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("all geoip providers failed for %s: %w", ipAddress, lastErr)
	}
	return nil, fmt.Errorf("no geoip providers available")
}

func (r *Resolver) cache(ctx context.Context, geo *models.Geolocation) {
	if r.db == nil {
		return
	}

	if err := r.db.UpsertGeolocation(ctx, geo); err != nil {
		logging.Warn().Err(err).Str("ip", geo.IPAddress).Msg("Failed to cache geolocation")
	}
}

// LocalGeolocation builds the placeholder record stored for private
// and LAN addresses so they are not retried against providers.
func LocalGeolocation(ipAddress string) *models.Geolocation {
	local := "Local Network"
	return &models.Geolocation{
		IPAddress:   ipAddress,
		Latitude:    0,
		Longitude:   0,
		Country:     "Local",
		City:        &local,
		LastUpdated: time.Now(),
	}
}

var privateRanges = mustParseCIDRs([]string{
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"::1/128",   // IPv6 loopback
	"fc00::/7",  // IPv6 unique local
	"fe80::/10", // IPv6 link-local
})

func mustParseCIDRs(cidrs []string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR %q: %v", cidr, err))
		}
		nets = append(nets, network)
	}
	return nets
}

// IsPrivateIP reports whether the address is in a private or local
// range. Private IPs cannot be geolocated externally.
func IsPrivateIP(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, network := range privateRanges {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// NormalizeIP strips a port suffix and IPv6 brackets if present.
func NormalizeIP(ipAddr string) string {
	if strings.HasPrefix(ipAddr, "[") {
		if idx := strings.LastIndex(ipAddr, "]:"); idx != -1 {
			return ipAddr[1:idx]
		}
		return strings.Trim(ipAddr, "[]")
	}
	// Only strip if it looks like host:port; bare IPv6 has more colons.
	if strings.Count(ipAddr, ":") == 1 {
		if idx := strings.LastIndex(ipAddr, ":"); idx != -1 {
			return ipAddr[:idx]
		}
	}
	return ipAddr
}
