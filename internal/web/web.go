package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"schedfill/internal/config"
	"schedfill/internal/fill"
	appLog "schedfill/internal/log"
	"schedfill/internal/model"
	"schedfill/internal/schedule"
)

// maxInputBytes bounds pasted schedule text.
const maxInputBytes = 4 << 20

// Runner is the part of the batch processor the panel drives.
type Runner interface {
	Run(ctx context.Context, events []model.Event) *model.Report
	Plan(ctx context.Context, events []model.Event) []fill.PlanItem
}

// Server is the local control panel: paste schedule text, run it against
// the scheduling page and read the report back.
type Server struct {
	cfg    *config.Config
	runner Runner
	mux    *http.ServeMux

	reportMu   sync.RWMutex
	lastReport *reportResponse
}

// NewServer constructs a new Server. runner may be nil, in which case only
// /health and /api/parse are usable.
func NewServer(cfg *config.Config, runner Runner) *Server {
	s := &Server{
		cfg:    cfg,
		runner: runner,
		mux:    http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password means disabled.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="schedfill", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// StartServer serves the panel on cfg.Listen until ctx is cancelled, then
// shuts down gracefully.
func StartServer(ctx context.Context, cfg *config.Config, runner Runner) error {
	s := NewServer(cfg, runner)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/parse", s.handleParse)
	s.mux.HandleFunc("POST /api/fill", s.handleFill)
	s.mux.HandleFunc("POST /api/plan", s.handlePlan)
	s.mux.HandleFunc("GET /api/report", s.handleReport)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// parseResponse is the JSON response shape for /api/parse.
type parseResponse struct {
	Count  int           `json:"count"`
	Events []model.Event `json:"events"`
}

// reportResponse is the JSON response shape for /api/fill and /api/report.
type reportResponse struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Events     int           `json:"events"`
	Report     *model.Report `json:"report"`
}

// planResponse is the JSON response shape for /api/plan.
type planResponse struct {
	Items []fill.PlanItem `json:"items"`
}

// handleParse parses the request body and echoes the events found.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	events, ok := s.readEvents(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, parseResponse{Count: len(events), Events: events})
}

// handleFill runs the whole batch. The request blocks until every event
// has an outcome; a disconnecting client cancels the remaining events.
func (s *Server) handleFill(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "no scheduling page attached")
		return
	}
	events, ok := s.readEvents(w, r)
	if !ok {
		return
	}
	if len(events) == 0 {
		writeError(w, http.StatusBadRequest, "no events found in input")
		return
	}

	appLog.Info("api fill request", "event_count", len(events))
	started := time.Now()
	report := s.runner.Run(r.Context(), events)
	resp := &reportResponse{
		StartedAt:  started,
		FinishedAt: time.Now(),
		Events:     len(events),
		Report:     report,
	}

	s.reportMu.Lock()
	s.lastReport = resp
	s.reportMu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "no scheduling page attached")
		return
	}
	events, ok := s.readEvents(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, planResponse{Items: s.runner.Plan(r.Context(), events)})
}

func (s *Server) handleReport(w http.ResponseWriter, _ *http.Request) {
	s.reportMu.RLock()
	resp := s.lastReport
	s.reportMu.RUnlock()
	if resp == nil {
		writeError(w, http.StatusNotFound, "no run yet")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// readEvents parses the raw request body as schedule text. A JSON body of
// the form {"text": "..."} is accepted too.
func (s *Server) readEvents(w http.ResponseWriter, r *http.Request) ([]model.Event, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxInputBytes))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "input too large")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "failed to read body")
		return nil, false
	}

	text := string(body)
	if r.Header.Get("Content-Type") == "application/json" {
		var req struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return nil, false
		}
		text = req.Text
	}
	return schedule.Parse(text), true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
