// VersePulse - Anonymous Session and Tag Attribution Analytics
// Copyright 2026 VersePulse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/versepulse/versepulse

package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/versepulse/versepulse/internal/logging"
	"github.com/versepulse/versepulse/internal/models"
	"github.com/versepulse/versepulse/internal/tenant"
)

const TenantKey contextKey = "tenant"

// TenantResolver resolves the owning tenant for every request from the
// explicit org hint, the request host's subdomain or custom domain, or
// the tag being scanned. Requests with no recognizable tenant signal
// pass through without a tenant in context; downstream consumers decide
// how to default. Only a storage failure surfaces.
func TenantResolver(dir *tenant.Directory) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			queryHint := r.URL.Query().Get("tenant")
			if queryHint == "" {
				queryHint = r.Header.Get("X-Tenant-Hint")
			}
			tagID := r.URL.Query().Get("tagId")

			t, err := dir.ResolveExplicit(r.Context(), r.Host, queryHint, tagID)
			if errors.Is(err, tenant.ErrNotFound) {
				next.ServeHTTP(w, r)
				return
			}
			if err != nil {
				logging.Ctx(r.Context()).Error().Err(err).
					Str("host", r.Host).
					Msg("Tenant resolution failed")
				http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
				return
			}

			ctx := context.WithValue(r.Context(), TenantKey, t)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetTenant extracts the resolved tenant from context, or nil.
func GetTenant(ctx context.Context) *models.Tenant {
	if t, ok := ctx.Value(TenantKey).(*models.Tenant); ok {
		return t
	}
	return nil
}
