// VersePulse - Anonymous Session and Tag Attribution Analytics
// Copyright 2026 VersePulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/versepulse/versepulse

package tenant

import (
	"net"
	"strings"
)

// ParseSubdomain extracts the tenant subdomain label from a request
// host. It returns "" for bare apex domains, IP addresses, localhost,
// and reserved labels such as "www", leaving those to later resolution
// steps.
func ParseSubdomain(host string, reserved map[string]struct{}) string {
	host = stripPort(host)
	if host == "" || host == "localhost" {
		return ""
	}
	if net.ParseIP(host) != nil {
		return ""
	}

	labels := strings.Split(host, ".")
	// A subdomain needs at least label.domain.tld.
	if len(labels) < 3 {
		return ""
	}

	sub := strings.ToLower(labels[0])
	if sub == "" {
		return ""
	}
	if _, ok := reserved[sub]; ok {
		return ""
	}
	return sub
}

// stripPort removes a :port suffix from a host if present, tolerating
// bracketed IPv6 literals.
func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return strings.Trim(host, "[]")
}
