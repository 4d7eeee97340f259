package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"modelscanner/internal/config"
	"modelscanner/internal/logging"
	"modelscanner/internal/queue"
	"modelscanner/internal/services"
	"modelscanner/internal/stage"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

// EnqueueResponse is returned by POST /enqueue.
type EnqueueResponse struct {
	ID int64 `json:"id"`
}

// JobListResponse is returned by GET /api/jobs.
type JobListResponse struct {
	Jobs []*queue.Job `json:"jobs"`
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.API.Bind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}

	authed := http.NewServeMux()
	authed.HandleFunc("POST /enqueue", srv.handleEnqueue)
	authed.HandleFunc("POST /cleanup", srv.handlePurgeTemp)
	authed.HandleFunc("POST /cleanup-storage", srv.handleCleanupStorage)
	authed.HandleFunc("POST /delete", srv.handleDelete)
	authed.HandleFunc("GET /api/status", srv.handleStatus)
	authed.HandleFunc("GET /api/jobs", srv.handleJobs)
	authed.HandleFunc("GET /api/jobs/{id}", srv.handleJob)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", srv.handleHealth)
	mux.Handle("/", srv.authMiddleware(cfg.API.Tokens, authed))

	srv.server = &http.Server{
		Handler:           srv.requestIDMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		s.logger.Info("api server disabled")
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}

func (s *apiServer) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	fileURL := strings.TrimSpace(query.Get("fileUrl"))
	callbackURL := strings.TrimSpace(query.Get("callbackUrl"))
	if fileURL == "" {
		s.writeError(w, http.StatusBadRequest, "fileUrl is required")
		return
	}
	if callbackURL == "" {
		s.writeError(w, http.StatusBadRequest, "callbackUrl is required")
		return
	}
	tasks, err := stage.ParseKinds(query.Get("tasks"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	priority := queue.PriorityNormal
	if raw := strings.TrimSpace(query.Get("lowPrio")); raw != "" {
		low, err := strconv.ParseBool(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "lowPrio must be a boolean")
			return
		}
		if low {
			priority = queue.PriorityLow
		}
	}

	job, ok := s.enqueue(w, r, queue.Request{
		Kind:        queue.KindProcess,
		FileURL:     fileURL,
		CallbackURL: callbackURL,
		Tasks:       tasks,
		Priority:    priority,
	})
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, EnqueueResponse{ID: job.ID})
}

func (s *apiServer) handlePurgeTemp(w http.ResponseWriter, r *http.Request) {
	if job, ok := s.enqueue(w, r, queue.Request{Kind: queue.KindPurgeTemp}); ok {
		s.writeJSON(w, http.StatusAccepted, EnqueueResponse{ID: job.ID})
	}
}

func (s *apiServer) handleCleanupStorage(w http.ResponseWriter, r *http.Request) {
	if job, ok := s.enqueue(w, r, queue.Request{Kind: queue.KindCleanup, Priority: queue.PriorityLow}); ok {
		s.writeJSON(w, http.StatusAccepted, EnqueueResponse{ID: job.ID})
	}
}

func (s *apiServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.URL.Query().Get("key"))
	if key == "" {
		s.writeError(w, http.StatusBadRequest, "key is required")
		return
	}
	if job, ok := s.enqueue(w, r, queue.Request{Kind: queue.KindDelete, ObjectKey: key}); ok {
		s.writeJSON(w, http.StatusAccepted, EnqueueResponse{ID: job.ID})
	}
}

func (s *apiServer) enqueue(w http.ResponseWriter, r *http.Request, req queue.Request) (*queue.Job, bool) {
	job, err := s.daemon.store.Enqueue(r.Context(), req)
	if errors.Is(err, queue.ErrInvalidRequest) {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	if err != nil {
		s.log(r.Context()).Error("enqueue failed",
			logging.String("kind", string(req.Kind)),
			logging.Error(err),
		)
		s.writeError(w, http.StatusInternalServerError, "enqueue failed")
		return nil, false
	}
	s.log(r.Context()).Info("job enqueued",
		logging.Int64(logging.FieldJobID, job.ID),
		logging.String("kind", string(job.Kind)),
		logging.String("target", job.Target()),
		logging.String("priority", job.Priority.String()),
		logging.String(logging.FieldEventType, "job_enqueued"),
	)
	return job, true
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.store.Ping(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "queue unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	var statuses []queue.Status
	for _, value := range r.URL.Query()["status"] {
		if strings.TrimSpace(value) == "" {
			continue
		}
		status, ok := queue.ParseStatus(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", value))
			return
		}
		statuses = append(statuses, status)
	}
	jobs, err := s.daemon.store.List(r.Context(), statuses...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, JobListResponse{Jobs: jobs})
}

func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	job, err := s.daemon.store.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log(ctx context.Context) *slog.Logger {
	return logging.WithContext(ctx, s.logger)
}
