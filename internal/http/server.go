package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"despesas/internal/auth"
	"despesas/internal/cache"
	applog "despesas/internal/log"
	"despesas/internal/middleware/cors"
	"despesas/internal/middleware/security"
	"despesas/internal/middleware/trace"
	"despesas/internal/services"
	"despesas/internal/storage"
)

const (
	responseCacheSize     = 200
	cacheCleanupInterval  = 5 * time.Minute
	readinessProbeTimeout = 2 * time.Second
)

// Options configures NewServer.
type Options struct {
	Addr        string
	Environment string
	CORSOrigins []string
	// CacheTTL bounds how long list and stats responses are reused. Zero
	// disables the response cache.
	CacheTTL time.Duration
	Logger   *applog.Logger
}

// Server is the JSON API over the expense service and the authenticator.
type Server struct {
	http.Server
	auth        *auth.Authenticator
	expenses    *services.ExpenseService
	pinger      storage.Pinger
	logger      *applog.Logger
	environment string

	// Rendered list and stats bodies keyed by normalised filter
	responses    cache.Cache[[]byte]
	cacheManager *cache.Manager
	// generation counts invalidations. A body is only stored when no
	// mutation happened since the read that produced it began.
	cacheMu    sync.Mutex
	generation uint64

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a server ready for
// ListenAndServe.
func NewServer(opts Options, authn *auth.Authenticator, svc *services.ExpenseService, pinger storage.Pinger) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}

	s := &Server{
		auth:        authn,
		expenses:    svc,
		pinger:      pinger,
		logger:      logger.WithComponent(applog.ComponentHTTP),
		environment: opts.Environment,
	}

	if opts.CacheTTL > 0 {
		lru := cache.NewLRUCache[[]byte](responseCacheSize, opts.CacheTTL)
		s.responses = lru
		s.cacheManager = cache.NewManager()
		s.cacheManager.Register(lru)
		s.cacheManager.StartCleanup(cacheCleanupInterval)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /auth/login", s.handleLogin)

	mux.HandleFunc("GET /despesas", s.handleListExpenses)
	mux.HandleFunc("GET /despesas/estatisticas", s.handleExpenseStats)
	mux.HandleFunc("GET /despesas/{id}", s.handleGetExpense)
	mux.HandleFunc("POST /despesas", s.handleCreateExpense)
	mux.HandleFunc("PATCH /despesas/{id}", s.handleUpdateExpense)
	mux.HandleFunc("DELETE /despesas/{id}", s.handleDeleteExpense)

	// Catch-all so unmatched methods get the same 404 as unmatched paths.
	mux.HandleFunc("/", s.handleNotFound)

	detector := security.NewDetector()
	tracer := trace.NewMiddleware(logger, detector.ExtractClientIP)

	var handler http.Handler = mux
	handler = cors.New(cors.DefaultConfig(opts.CORSOrigins)).Middleware(handler)
	handler = detector.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = applog.RequestIDMiddleware(trace.RequestIDFromRequest)(handler)
	handler = applog.Middleware(logger)(handler)
	handler = tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// authenticate resolves the bearer token of r. Protected handlers call it
// before doing any work.
func (s *Server) authenticate(r *http.Request) (auth.Identity, error) {
	token := auth.BearerToken(r.Header.Get("Authorization"))
	return s.auth.VerifyToken(r.Context(), token)
}

// cachedResponse returns the cached body for key, or the current cache
// generation to hand back to storeResponse once the body is rendered.
func (s *Server) cachedResponse(key string) ([]byte, uint64, bool) {
	if s.responses == nil {
		return nil, 0, false
	}
	s.cacheMu.Lock()
	gen := s.generation
	s.cacheMu.Unlock()
	body, ok := s.responses.Get(key)
	return body, gen, ok
}

// storeResponse caches body unless an invalidation happened after gen was
// taken, in which case body may predate the mutation and is dropped.
func (s *Server) storeResponse(key string, gen uint64, body []byte) {
	if s.responses == nil {
		return
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if gen != s.generation {
		return
	}
	s.responses.Set(key, body)
}

// invalidateResponses drops every cached body; any mutation can change any
// filter result.
func (s *Server) invalidateResponses() {
	if s.responses == nil {
		return
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.generation++
	s.responses.Purge()
}

// Shutdown stops the cache cleanup loop and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		if s.cacheManager != nil {
			s.cacheManager.Stop()
		}
		err = s.Server.Shutdown(ctx)
	})
	return err
}
