// internal/infra/health/server.go
package health

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"deadline_notification_bot/internal/app"

	"github.com/sirupsen/logrus"
)

// Server exposes the scheduler status and database reachability for
// monitoring and container health checks.
type Server struct {
	httpServer *http.Server
	db         *sql.DB
	scans      app.SchedulerService
	logger     *logrus.Entry
}

type healthResponse struct {
	Status    string              `json:"status"`
	Timestamp time.Time           `json:"timestamp"`
	Scheduler app.SchedulerStatus `json:"scheduler"`
	Error     string              `json:"error,omitempty"`
}

func NewServer(addr string, db *sql.DB, scans app.SchedulerService, logger *logrus.Entry) *Server {
	s := &Server{db: db, scans: scans, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start runs the HTTP server in a goroutine; errors other than a clean
// shutdown are logged, never fatal.
func (s *Server) Start() {
	go func() {
		s.logger.WithField("addr", s.httpServer.Addr).Info("Health server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("Health server stopped unexpectedly")
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := healthResponse{Status: "healthy", Timestamp: time.Now().UTC()}
	code := http.StatusOK

	if err := s.db.PingContext(ctx); err != nil {
		resp.Status = "unhealthy"
		resp.Error = err.Error()
		code = http.StatusServiceUnavailable
	} else if status, err := s.scans.Status(ctx); err != nil {
		resp.Status = "unhealthy"
		resp.Error = err.Error()
		code = http.StatusServiceUnavailable
	} else {
		resp.Scheduler = status
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.WithError(err).Error("Failed to encode health response")
	}
}
