package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/CogitoSoftwareOrg/hackseeker/internal/agent"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/billing"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/chat"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/memory"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/otel"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/pain"
	"github.com/CogitoSoftwareOrg/hackseeker/internal/quota"
)

const defaultTimeout = 60 * time.Second

// runTimeout bounds a whole agent run behind one request.
const runTimeout = 10 * time.Minute

// Server holds all dependencies for the HTTP API and MCP endpoint.
type Server struct {
	router      *chi.Mux
	runner      *agent.Runner
	chats       *chat.Store
	pains       *pain.Service
	memory      *memory.Store
	ledger      *billing.Ledger
	quota       *quota.Manager
	mcpServer   http.Handler
	apiKeys     map[string]string
	corsOrigins []string
	startTime   time.Time
}

// Option configures the Server.
type Option func(*Server)

// WithMCPServer mounts the MCP transport at /mcp.
func WithMCPServer(h http.Handler) Option {
	return func(s *Server) { s.mcpServer = h }
}

// WithQuota enables per-user rate limiting.
func WithQuota(q *quota.Manager) Option {
	return func(s *Server) { s.quota = q }
}

// WithCORSOrigins sets allowed CORS origins (["*"] for any).
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// NewServer builds a Server. apiKeys maps API key to user id.
func NewServer(
	runner *agent.Runner,
	chats *chat.Store,
	pains *pain.Service,
	mem *memory.Store,
	ledger *billing.Ledger,
	apiKeys map[string]string,
	opts ...Option,
) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		runner:      runner,
		chats:       chats,
		pains:       pains,
		memory:      mem,
		ledger:      ledger,
		apiKeys:     apiKeys,
		corsOrigins: []string{"*"},
		startTime:   time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.apiKeys == nil {
		s.apiKeys = make(map[string]string)
	}
	return s
}

// Routes returns the chi router with all middleware and routes. Agent runs
// and SSE streams are registered without the default request timeout.
func (s *Server) Routes() http.Handler {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(otel.Middleware())
	r.Use(CORSMiddleware(s.corsOrigins))

	r.Get("/health", s.handleHealth)
	r.With(middleware.Timeout(defaultTimeout)).Get("/p/{painID}", s.handleLandingPage)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.apiKeys))
		r.Use(RateLimitMiddleware(s.quota))

		r.Post("/v1/chats/{chatID}/messages", s.handleChatRun)
		r.Get("/v1/chats/{chatID}/sse", s.handleChatSSE)
		r.Post("/v1/pains/{painID}/pdf", s.handleGenerate(pain.DocumentReport))
		r.Post("/v1/pains/{painID}/landing", s.handleGenerate(pain.DocumentLanding))
		r.Post("/v1/pains/{painID}/validation", s.handleStartValidation)
		r.Post("/v1/pains/{painID}/research", s.handleSearchArtifacts)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(defaultTimeout))
			r.Get("/v1/chats", s.handleChatList)
			r.Get("/v1/chats/{chatID}/messages", s.handleMessageList)
			r.Get("/v1/chats/{chatID}/pains", s.handlePainList)
			r.Get("/v1/pains/{painID}", s.handlePainGet)
			r.Post("/v1/pains/{painID}/artifacts", s.handleAddArtifact)
			r.Get("/v1/memory/search", s.handleMemorySearch)
			r.Get("/v1/credits", s.handleCredits)
		})

		if s.mcpServer != nil {
			r.Handle("/mcp", s.mcpServer)
		}
	})

	return r
}
