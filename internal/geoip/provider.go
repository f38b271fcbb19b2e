// VersePulse - Anonymous Session and Tag Attribution Analytics
// Copyright 2026 VersePulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/versepulse/versepulse

package geoip

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/versepulse/versepulse/internal/models"
)

// Provider defines the interface for geolocation lookup services.
// Implementations can use external APIs (ip-api.com, MaxMind) or local
// databases.
type Provider interface {
	// Lookup returns geolocation data for the given IP address.
	// Returns nil and an error if the lookup fails or the IP is invalid.
	Lookup(ctx context.Context, ipAddress string) (*models.Geolocation, error)

	// Name returns the provider name for logging and metrics.
	Name() string

	// IsAvailable checks if the provider is properly configured.
	IsAvailable() bool
}

// ========================================
// ip-api.com Provider (Free, No API Key)
// ========================================

// IPAPIProvider implements Provider using the free ip-api.com service.
// Rate limit: 45 requests per minute (free tier, no API key required).
type IPAPIProvider struct {
	client  *http.Client
	baseURL string
}

// ipAPIResponse represents the JSON response from ip-api.com
type ipAPIResponse struct {
	Status     string  `json:"status"`     // "success" or "fail"
	Message    string  `json:"message"`    // Error message if status is "fail"
	Country    string  `json:"country"`    // Country name
	RegionName string  `json:"regionName"` // Region/state name
	City       string  `json:"city"`       // City name
	Lat        float64 `json:"lat"`        // Latitude
	Lon        float64 `json:"lon"`        // Longitude
	Query      string  `json:"query"`      // IP address queried
}

// NewIPAPIProvider creates a new ip-api.com provider.
func NewIPAPIProvider() *IPAPIProvider {
	return &IPAPIProvider{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: "http://ip-api.com/json",
	}
}

// Name returns the provider name.
func (p *IPAPIProvider) Name() string {
	return "ip-api.com"
}

// IsAvailable returns true (ip-api.com doesn't require an API key).
func (p *IPAPIProvider) IsAvailable() bool {
	return true
}

// Lookup queries ip-api.com for geolocation data.
func (p *IPAPIProvider) Lookup(ctx context.Context, ipAddress string) (*models.Geolocation, error) {
	if ip := net.ParseIP(ipAddress); ip == nil {
		return nil, fmt.Errorf("invalid IP address: %s", ipAddress)
	}

	url := fmt.Sprintf("%s/%s?fields=status,message,country,regionName,city,lat,lon,query",
		p.baseURL, ipAddress)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query ip-api.com: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ip-api.com returned status %d", resp.StatusCode)
	}

	var result ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode ip-api.com response: %w", err)
	}

	if result.Status != "success" {
		return nil, fmt.Errorf("ip-api.com lookup failed: %s", result.Message)
	}

	geo := &models.Geolocation{
		IPAddress:   ipAddress,
		Latitude:    result.Lat,
		Longitude:   result.Lon,
		Country:     result.Country,
		LastUpdated: time.Now(),
	}
	if result.City != "" {
		geo.City = &result.City
	}
	if result.RegionName != "" {
		geo.Region = &result.RegionName
	}
	return geo, nil
}

// ========================================
// MaxMind GeoLite2 Provider
// ========================================

// MaxMindProvider implements Provider using MaxMind's GeoLite2 web
// service. Requires a free MaxMind account and license key.
// Rate limit: 1,000 lookups/day for the GeoLite2 free tier.
type MaxMindProvider struct {
	client     *http.Client
	accountID  string
	licenseKey string
	baseURL    string
}

// maxMindResponse represents the JSON response from the GeoLite2 web service
type maxMindResponse struct {
	City struct {
		Names map[string]string `json:"names"`
	} `json:"city"`
	Country struct {
		ISOCode string            `json:"iso_code"`
		Names   map[string]string `json:"names"`
	} `json:"country"`
	Location struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location"`
	Subdivisions []struct {
		ISOCode string            `json:"iso_code"`
		Names   map[string]string `json:"names"`
	} `json:"subdivisions"`
}

// maxMindErrorResponse represents error responses from MaxMind
type maxMindErrorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// NewMaxMindProvider creates a new MaxMind GeoLite2 provider.
// accountID and licenseKey can be obtained from https://www.maxmind.com/en/account
func NewMaxMindProvider(accountID, licenseKey string) *MaxMindProvider {
	return &MaxMindProvider{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		accountID:  accountID,
		licenseKey: licenseKey,
		baseURL:    "https://geolite.info/geoip/v2.1/city",
	}
}

// Name returns the provider name.
func (p *MaxMindProvider) Name() string {
	return "maxmind-geolite2"
}

// IsAvailable returns true if account ID and license key are configured.
func (p *MaxMindProvider) IsAvailable() bool {
	return p.accountID != "" && p.licenseKey != ""
}

// Lookup queries the MaxMind GeoLite2 web service for geolocation data.
func (p *MaxMindProvider) Lookup(ctx context.Context, ipAddress string) (*models.Geolocation, error) {
	if !p.IsAvailable() {
		return nil, fmt.Errorf("MaxMind credentials not configured")
	}
	if ip := net.ParseIP(ipAddress); ip == nil {
		return nil, fmt.Errorf("invalid IP address: %s", ipAddress)
	}

	url := fmt.Sprintf("%s/%s", p.baseURL, ipAddress)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// MaxMind uses Basic Auth with the account ID as the username and
	// the license key as the password.
	req.SetBasicAuth(p.accountID, p.licenseKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query MaxMind: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp maxMindErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
			return nil, fmt.Errorf("MaxMind error (%s): %s", errResp.Code, errResp.Error)
		}
		return nil, fmt.Errorf("MaxMind returned status %d", resp.StatusCode)
	}

	var result maxMindResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode MaxMind response: %w", err)
	}

	geo := &models.Geolocation{
		IPAddress:   ipAddress,
		Latitude:    result.Location.Latitude,
		Longitude:   result.Location.Longitude,
		Country:     result.Country.Names["en"],
		LastUpdated: time.Now(),
	}
	if cityName := result.City.Names["en"]; cityName != "" {
		geo.City = &cityName
	}
	if len(result.Subdivisions) > 0 {
		if regionName := result.Subdivisions[0].Names["en"]; regionName != "" {
			geo.Region = &regionName
		}
	}
	return geo, nil
}
