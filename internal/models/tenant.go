// VersePulse - Anonymous Session and Tag Attribution Analytics
// Copyright 2026 VersePulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/versepulse/versepulse

// Package models defines the shared data model for VersePulse: tenants,
// anonymous sessions, tag attributions, canonical analytics events, and
// the derived rollup shapes served by the analytics API.
package models

import "time"

// Tenant is an organization account and the multi-tenancy isolation unit.
// Tenants own every other entity by TenantID. They are provisioned by an
// external workflow and are read-only from the analytics core.
type Tenant struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Subdomain    string     `json:"subdomain"`
	CustomDomain *string    `json:"custom_domain,omitempty"`
	Active       bool       `json:"active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// Tag is a physical NFC tag registered to a tenant. Scanning a tag
// resolves the owning tenant and stamps the visitor's session.
type Tag struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Label     *string   `json:"label,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
