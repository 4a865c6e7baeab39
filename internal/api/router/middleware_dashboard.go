package router

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/wolfman30/booking-assistant/internal/tenancy"
)

const (
	dashboardTokenHeader = "X-Dashboard-Token"
	dashboardTokenQuery  = "token"
	tenantHeader         = "X-Tenant-Id"
)

// requireDashboardToken guards the dashboard stream with a shared token.
// Browsers cannot set headers on WebSocket upgrades, so the query string is
// accepted too. When expected is empty the middleware only copies the tenant
// header into the context.
func requireDashboardToken(expected string) func(http.Handler) http.Handler {
	expected = strings.TrimSpace(expected)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if expected != "" {
				token := strings.TrimSpace(r.Header.Get(dashboardTokenHeader))
				if token == "" {
					token = strings.TrimSpace(r.URL.Query().Get(dashboardTokenQuery))
				}
				if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
					http.Error(w, "invalid dashboard token", http.StatusUnauthorized)
					return
				}
			}
			if tenantID := strings.TrimSpace(r.Header.Get(tenantHeader)); tenantID != "" {
				r = r.WithContext(tenancy.WithTenantID(r.Context(), tenantID))
			}
			next.ServeHTTP(w, r)
		})
	}
}
