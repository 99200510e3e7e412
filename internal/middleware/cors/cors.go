package cors

import (
	"net/http"
	"slices"
	"strings"
)

type Config struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
}

// DefaultConfig allows the given origins with the methods and headers the
// expense API uses.
func DefaultConfig(origins []string) Config {
	return Config{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}
}

type Middleware struct {
	config  Config
	methods string
	headers string
}

func New(config Config) *Middleware {
	return &Middleware{
		config:  config,
		methods: strings.Join(config.AllowedMethods, ","),
		headers: strings.Join(config.AllowedHeaders, ", "),
	}
}

// Middleware sets CORS headers for allowed origins and answers preflight
// requests with 204. Requests from other origins get no CORS headers, so the
// browser blocks them.
func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		headers := w.Header()
		headers.Add("Vary", "Origin")

		allowed := origin != "" && m.originAllowed(origin)
		if allowed {
			headers.Set("Access-Control-Allow-Origin", origin)
			if m.config.AllowCredentials {
				headers.Set("Access-Control-Allow-Credentials", "true")
			}
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			if allowed {
				headers.Set("Access-Control-Allow-Methods", m.methods)
				headers.Set("Access-Control-Allow-Headers", m.headers)
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) originAllowed(origin string) bool {
	return slices.Contains(m.config.AllowedOrigins, "*") || slices.Contains(m.config.AllowedOrigins, origin)
}
