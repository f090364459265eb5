package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"bedtime_story_generator/generator"
	"bedtime_story_generator/render"
)

// ErrRunNotFound is returned for an unknown story id.
var ErrRunNotFound = errors.New("story not found")

// Runner runs one story pipeline. *generator.Agent implements it.
type Runner interface {
	Run(ctx context.Context, req generator.Request) (*generator.Result, error)
}

type Server struct {
	runner  Runner
	store   *runStore
	timeout time.Duration
	logger  *zap.Logger
}

// DefaultMaxRuns bounds how many finished stories the server keeps.
const DefaultMaxRuns = 500

// runStore keeps the most recent runs; the oldest is evicted past limit.
type runStore struct {
	mu    sync.Mutex
	limit int
	order []string
	runs  map[string]*generator.Result
}

func newStore(limit int) *runStore {
	if limit <= 0 {
		limit = DefaultMaxRuns
	}
	return &runStore{limit: limit, runs: make(map[string]*generator.Result)}
}

func (s *runStore) set(id string, res *generator.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[id]; !ok {
		s.order = append(s.order, id)
	}
	s.runs[id] = res
	for len(s.order) > s.limit {
		delete(s.runs, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *runStore) get(id string) (*generator.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return res, nil
}

// New returns a Server that keeps up to DefaultMaxRuns stories; see SetMaxRuns.
func New(runner Runner, timeout time.Duration, logger *zap.Logger) (*Server, error) {
	if runner == nil {
		return nil, errors.New("story runner required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		runner:  runner,
		store:   newStore(DefaultMaxRuns),
		timeout: timeout,
		logger:  logger,
	}, nil
}

// SetMaxRuns changes how many finished stories are kept for retrieval.
// Call it before serving.
func (s *Server) SetMaxRuns(n int) {
	s.store = newStore(n)
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/stories", s.handleStoryCreate)
	mux.HandleFunc("GET /api/stories/{id}", s.handleStoryGet)
	mux.HandleFunc("GET /api/stories/{id}/html", s.handleStoryHTML)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return s.logMiddleware(mux)
}

// --- Handlers ---

type storyCreateReq struct {
	Request string `json:"request"`
}

type errorResp struct {
	Error string `json:"error"`
}

func (s *Server) handleStoryCreate(w http.ResponseWriter, r *http.Request) {
	var req storyCreateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Request) == "" {
		writeError(w, http.StatusBadRequest, "request is required")
		return
	}

	ctx := r.Context()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	id := uuid.NewString()
	log := s.logger.With(zap.String("story_id", id))
	log.Info("story requested", zap.Int("request_chars", len(req.Request)))

	res, err := s.runner.Run(ctx, generator.Request(req.Request))
	if err != nil {
		log.Error("story pipeline failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	res.ID = id
	s.store.set(id, res)
	w.Header().Set("Location", "/api/stories/"+id)
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleStoryGet(w http.ResponseWriter, r *http.Request) {
	res, err := s.store.get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStoryHTML(w http.ResponseWriter, r *http.Request) {
	res, err := s.store.get(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	page, err := render.Page(res)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(page))
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResp{Error: msg})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		path := r.URL.Path
		if path == "" {
			path = "/"
		}
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

// ListenAndServe serves Routes on addr until ctx is cancelled, then shuts
// down, giving in-flight stories shutdownGrace to finish.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownGrace time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting web server", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	s.logger.Info("shutting down web server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
