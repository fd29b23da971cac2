package tenant

import (
	"net"
	"net/http"
	"regexp"
	"strings"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,62}$`)

// Resolver picks the tenant of a request from a header, then the subdomain
// under RootDomain, then DefaultTenant.
type Resolver struct {
	HeaderName    string
	RootDomain    string
	DefaultTenant string
}

// NewResolver returns a resolver; an empty headerName means "X-Tenant-ID".
func NewResolver(headerName, rootDomain, defaultTenant string) *Resolver {
	if headerName == "" {
		headerName = "X-Tenant-ID"
	}
	return &Resolver{
		HeaderName:    headerName,
		RootDomain:    strings.ToLower(strings.TrimSpace(rootDomain)),
		DefaultTenant: strings.ToLower(strings.TrimSpace(defaultTenant)),
	}
}

// Middleware scopes the request to its tenant. Malformed tenant slugs are
// rejected with 400 so they never reach cache keys or SQL parameters.
func (r *Resolver) Middleware(next http.Handler) http.Handler {
	if r == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		slug := r.Resolve(req)
		if slug == "" {
			slug = r.DefaultTenant
		}
		if slug != "" {
			if !slugPattern.MatchString(slug) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":{"code":"INVALID_TENANT","message":"invalid tenant"}}` + "\n"))
				return
			}
			req = req.WithContext(With(req.Context(), slug))
		}
		next.ServeHTTP(w, req)
	})
}

// Resolve returns the lower-cased tenant slug named by the request, if any.
func (r *Resolver) Resolve(req *http.Request) string {
	if r == nil || req == nil {
		return ""
	}
	if slug := strings.TrimSpace(req.Header.Get(r.HeaderName)); slug != "" {
		return strings.ToLower(slug)
	}
	return r.subdomain(hostWithoutPort(req.Host))
}

func (r *Resolver) subdomain(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" || r.RootDomain == "" || net.ParseIP(host) != nil {
		return ""
	}
	suffix := "." + r.RootDomain
	if !strings.HasSuffix(host, suffix) {
		return ""
	}
	host = strings.TrimSuffix(host, suffix)
	label, _, _ := strings.Cut(host, ".")
	if label == "www" || label == "api" {
		return ""
	}
	return label
}

func hostWithoutPort(hostport string) string {
	hostport = strings.TrimSpace(hostport)
	if hostport == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		return h
	}
	return strings.Trim(hostport, "[]")
}
