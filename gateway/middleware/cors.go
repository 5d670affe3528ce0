package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAgeSeconds    int
}

// CORS answers preflight requests and echoes the request origin back when it
// is in the allowed set. A "*" entry allows any origin; with credentials
// enabled the concrete origin is echoed instead of the wildcard. Requests
// from origins outside the set receive no allow headers.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	methods := cfg.AllowedMethods
	if len(methods) == 0 {
		methods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	}
	headers := cfg.AllowedHeaders
	if len(headers) == 0 {
		headers = []string{"Content-Type"}
	}
	maxAge := cfg.MaxAgeSeconds
	if maxAge <= 0 {
		maxAge = 300
	}

	allowAny := false
	allowed := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		if origin == "*" {
			allowAny = true
			continue
		}
		allowed[strings.ToLower(origin)] = struct{}{}
	}

	methodList := strings.Join(methods, ", ")
	headerList := strings.Join(headers, ", ")
	maxAgeValue := strconv.Itoa(maxAge)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				_, match := allowed[strings.ToLower(origin)]
				switch {
				case allowAny && !cfg.AllowCredentials:
					w.Header().Set("Access-Control-Allow-Origin", "*")
				case allowAny || match:
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Add("Vary", "Origin")
					if cfg.AllowCredentials {
						w.Header().Set("Access-Control-Allow-Credentials", "true")
					}
				}
			}
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.Header().Set("Access-Control-Allow-Methods", methodList)
				w.Header().Set("Access-Control-Allow-Headers", headerList)
				w.Header().Set("Access-Control-Max-Age", maxAgeValue)
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
