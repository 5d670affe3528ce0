package gateway

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"synapse/gateway/middleware"
	"synapse/native/dispute"
	"synapse/native/intent"
	"synapse/native/safety"
)

// Server is the JSON host over the marketplace engines. It owns no state of
// its own; every request is delegated to the injected components.
type Server struct {
	engine   *intent.Engine
	resolver *dispute.Resolver
	safety   *safety.Protocol
	logger   *slog.Logger
}

// Option customises Server construction.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer constructs a host over the supplied components. Any component may
// be nil; its routes then answer 503.
func NewServer(engine *intent.Engine, resolver *dispute.Resolver, protocol *safety.Protocol, opts ...Option) *Server {
	s := &Server{
		engine:   engine,
		resolver: resolver,
		safety:   protocol,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RouterConfig wires the middleware stack.
type RouterConfig struct {
	RateLimit     middleware.RateLimit
	CORS          middleware.CORSConfig
	Observability *middleware.Observability
}

// Router assembles the chi handler tree.
func (s *Server) Router(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.CORS))

	obs := cfg.Observability
	if obs != nil {
		r.Use(obs.Middleware())
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if obs != nil {
		r.Handle("/metrics", obs.MetricsHandler())
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit, s.logger)
	r.Route("/v1", func(v chi.Router) {
		v.Use(limiter.Middleware())

		v.Post("/intents", s.handleCreateIntent)
		v.Get("/intents/{id}", s.handleGetIntent)
		v.Post("/intents/{id}/bids", s.handleSubmitBid)
		v.Get("/intents/{id}/bids", s.handleListBids)
		v.Post("/intents/{id}/start", s.handleStartExecution)
		v.Post("/intents/{id}/result", s.handleSubmitResult)
		v.Post("/intents/{id}/payment", s.handleRecordPayment)
		v.Post("/intents/{id}/cancel", s.handleCancelIntent)

		v.Post("/disputes", s.handleOpenDispute)
		v.Get("/disputes/{id}", s.handleGetDispute)

		v.Post("/safety/check", s.handleSafetyCheck)
		v.Post("/safety/outcome", s.handleSafetyOutcome)

		v.Get("/stats", s.handleStats)
	})

	return r
}
