package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/busmonitor/internal/domain"
	apimw "github.com/hamed0406/busmonitor/internal/httpapi/middleware"
	"github.com/hamed0406/busmonitor/internal/metrics"
	"github.com/hamed0406/busmonitor/internal/repo"
)

// Registry is the read side of the scheduler's service list.
type Registry interface {
	Services() []domain.ServiceDefinition
	Has(name string) bool
}

type Server struct {
	Logger   *zap.Logger
	Store    repo.Store
	Registry Registry
}

func NewServer(l *zap.Logger, store repo.Store, reg Registry) *Server {
	return &Server{Logger: l, Store: store, Registry: reg}
}

// Router builds the read-only API. An empty allowedOrigins list allows any
// origin. publicRPM <= 0 disables rate limiting.
func (s *Server) Router(allowedOrigins []string, publicRPM, publicBurst int) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(apimw.AccessLog(s.Logger))
	if len(allowedOrigins) == 0 {
		r.Use(cors.AllowAll().Handler)
	} else {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(apimw.RateLimit(publicRPM, publicBurst))
		r.Get("/services", s.handleServices)
		r.Get("/data", s.handleAllData)
		r.Get("/data/{service}", s.handleServiceData)
		r.Get("/stats", s.handleStats)
	})

	return r
}

type serviceView struct {
	Name            string `json:"name"`
	IntervalMinutes int    `json:"interval_minutes"`
	Slots           int    `json:"slots_per_check"`
}

func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	defs := s.Registry.Services()
	out := make([]serviceView, 0, len(defs))
	for _, d := range defs {
		out = append(out, serviceView{
			Name:            d.Name,
			IntervalMinutes: int(d.Interval / time.Minute),
			Slots:           domain.BucketCount(d.Interval),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleServiceData(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "service")
	if !s.Registry.Has(name) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Service not found"})
		return
	}
	slots, err := s.Store.ReadService(r.Context(), name, repo.ReadWindow)
	if err != nil {
		s.fail(w, "read_service_error", err, zap.String("service", name))
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

func (s *Server) handleAllData(w http.ResponseWriter, r *http.Request) {
	all, err := s.Store.ReadAll(r.Context(), repo.ReadWindow)
	if err != nil {
		s.fail(w, "read_all_error", err)
		return
	}
	// registered services without rows still get a panel
	for _, d := range s.Registry.Services() {
		if _, ok := all[d.Name]; !ok {
			all[d.Name] = map[string]domain.SlotRecord{}
		}
	}
	writeJSON(w, http.StatusOK, all)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.Store.Stats(r.Context())
	if err != nil {
		s.fail(w, "stats_error", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) fail(w http.ResponseWriter, event string, err error, fields ...zap.Field) {
	s.Logger.Error(event, append(fields, zap.Error(err))...)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
