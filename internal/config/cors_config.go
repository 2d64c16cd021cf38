package config

import (
	"sort"
	"strings"
)

type Cors struct{}

var _ CorsConfig = Cors{}

// AllowedOrigins is the set of browser origins trusted for cross-origin calls
// to /oauth/token, /userinfo and the other JSON endpoints.
type AllowedOrigins map[string]struct{}

func (a AllowedOrigins) IsAllowedOrigin(origin string) bool {
	_, ok := a[origin]
	return ok
}

func (a AllowedOrigins) String() string {
	origins := make([]string, 0, len(a))
	for o := range a {
		origins = append(origins, o)
	}
	sort.Strings(origins)
	return strings.Join(origins, ", ")
}

// GetAllowedOrigins reads a comma separated ALLOWED_ORIGINS list.
func (Cors) GetAllowedOrigins() AllowedOrigins {
	origins := AllowedOrigins{}
	for _, o := range splitList(GetEnv("ALLOWED_ORIGINS", "")) {
		origins[o] = struct{}{}
	}
	return origins
}

func (Cors) GetAllowedMethods() string {
	return strings.Join(splitList(GetEnv("CORS_ALLOWED_METHODS", "GET,POST,OPTIONS")), ", ")
}

// GetAllowedHeaders includes tenant-id so SPAs can pick a tenant explicitly.
func (Cors) GetAllowedHeaders() string {
	return strings.Join(splitList(GetEnv("CORS_ALLOWED_HEADERS", "Content-Type,Authorization,tenant-id")), ", ")
}

func splitList(raw string) []string {
	var out []string
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
