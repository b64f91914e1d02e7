package server

import (
	"net/http"

	"github.com/worklogs/worklogs/internal/utils"
	"github.com/worklogs/worklogs/pkg/storage"
)

type Server struct {
	DB       *storage.DB
	Username string
	Password string
	// BaseURL is the tracker URL used for issue links in HTML views.
	BaseURL string
	Log     utils.Logger

	metrics *metrics
}

func New(db *storage.DB, user, pass string) *Server {
	return &Server{
		DB:       db,
		Username: user,
		Password: pass,
		Log:      utils.NopLogger{},
		metrics:  newMetrics(),
	}
}

// Handler returns the routes served by Start.
func (s *Server) Handler() http.Handler {
	if s.metrics == nil {
		s.metrics = newMetrics()
	}
	mux := http.NewServeMux()
	route := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, s.metrics.instrument(pattern, s.basicAuth(h)))
	}

	// API Group
	route("GET /api/stats", s.handleStats)
	route("GET /api/runs", s.handleRuns)
	route("GET /api/runs/{id}", s.handleRun)
	route("GET /api/runs/{id}/entries", s.handleRunEntries)
	route("GET /api/runs/{id}/summary", s.handleRunSummary)
	route("DELETE /api/runs/{id}", s.handleDeleteRun)

	// HTML views
	route("GET /runs/{id}", s.handleRunPage)
	route("GET /{$}", s.handleIndexPage)

	mux.Handle("GET /metrics", s.basicAuth(s.metrics.handler().ServeHTTP))

	return mux
}

func (s *Server) Start(addr string) error {
	utils.OrNop(s.Log).Infof("Starting server on %s", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) basicAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Username == "" && s.Password == "" {
			next(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.Username || pass != s.Password {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
