// Package api implements the HTTP surface of the route planner.
package api

import (
	"net/http"
	"strings"
)

const (
	defaultTenant = "t_demo"
	defaultRole   = "planner"
)

type Principal struct {
	Tenant string
	Role   string // admin, planner, viewer
}

// getPrincipal reads identity from the X-Tenant-Id and X-Role headers. A
// gateway in front of the service is expected to set them.
func (s *Server) getPrincipal(r *http.Request) Principal {
	tenant := strings.TrimSpace(r.Header.Get("X-Tenant-Id"))
	if tenant == "" {
		tenant = defaultTenant
	}
	role := strings.ToLower(strings.TrimSpace(r.Header.Get("X-Role")))
	if role == "" {
		role = defaultRole
	}
	return Principal{Tenant: tenant, Role: role}
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == "admin" }

// CanPlan reports whether the principal may submit plans.
func (p Principal) CanPlan() bool { return p.Role == "admin" || p.Role == "planner" }
