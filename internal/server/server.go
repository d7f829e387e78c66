package server

import (
	"net/http"

	"igtracker/internal/utils"
	"igtracker/pkg/scheduler"
	"igtracker/pkg/tracker"
)

type Server struct {
	Service   *tracker.Service
	Scheduler *scheduler.Scheduler
	Username  string
	Password  string
}

func New(svc *tracker.Service, sched *scheduler.Scheduler, user, pass string) *Server {
	return &Server{
		Service:   svc,
		Scheduler: sched,
		Username:  user,
		Password:  pass,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("GET /api/profiles", s.basicAuth(s.handleListProfiles))
	mux.HandleFunc("POST /api/profiles", s.basicAuth(s.handleAddProfile))
	mux.HandleFunc("GET /api/profiles/{handle}", s.basicAuth(s.handleGetProfile))
	mux.HandleFunc("DELETE /api/profiles/{handle}", s.basicAuth(s.handleDeleteProfile))
	mux.HandleFunc("GET /api/profiles/{handle}/stats", s.basicAuth(s.handleStats))
	mux.HandleFunc("GET /api/profiles/{handle}/changes", s.basicAuth(s.handleChanges))
	mux.HandleFunc("GET /api/profiles/{handle}/history", s.basicAuth(s.handleHistory))
	mux.HandleFunc("GET /api/profiles/{handle}/relationships", s.basicAuth(s.handleRelationships))

	mux.HandleFunc("GET /api/audit", s.basicAuth(s.handleAudit))
	mux.HandleFunc("GET /api/audit/scraping", s.basicAuth(s.handleScrapingAudit))

	mux.HandleFunc("GET /api/config", s.basicAuth(s.handleGetConfig))
	mux.HandleFunc("PUT /api/config", s.basicAuth(s.handleUpdateConfig))

	mux.HandleFunc("GET /api/export/{handle}/{kind}", s.basicAuth(s.handleExport))

	return mux
}

func (s *Server) Start(addr string) error {
	utils.Log.Info("starting server on ", addr)
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
