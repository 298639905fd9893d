package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dayplan/internal/clock"
	"dayplan/internal/config"
	appLog "dayplan/internal/log"
	"dayplan/internal/model"
	"dayplan/internal/planner"
	"dayplan/internal/service"
)

// maxImportBytes bounds uploaded calendar files.
const maxImportBytes = 8 << 20

// Planner is the service surface the HTTP API exposes.
type Planner interface {
	Today() string
	Schedule(ctx context.Context, date string) (service.View, error)
	Settings(ctx context.Context) (model.Settings, error)
	UpdateSettings(ctx context.Context, patch model.SettingsPatch) (model.Settings, error)
	ImportICS(ctx context.Context, source string, body []byte) (int, error)
	Adjust(ctx context.Context, date, direction string) (service.View, error)
	MarkBlock(ctx context.Context, date, id string, state model.BlockState) error
}

// Server provides the JSON API over a Planner.
type Server struct {
	cfg     *config.Config
	planner Planner
	mux     *http.ServeMux
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, p Planner) *Server {
	s := &Server{
		cfg:     cfg,
		planner: p,
		mux:     http.NewServeMux(),
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
	// Blank credentials leave the API open.
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
			w.Header().Set("WWW-Authenticate", `Basic realm="dayplan", charset="UTF-8"`)
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

// Serve runs the HTTP server on cfg.Listen until ctx is canceled, then
// shuts it down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		appLog.Info("HTTP server stopped")
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/schedule", s.handleSchedule)
	s.mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	s.mux.HandleFunc("PUT /api/settings", s.handlePutSettings)
	s.mux.HandleFunc("POST /api/import", s.handleImport)
	s.mux.HandleFunc("POST /api/adjust", s.handleAdjust)
	s.mux.HandleFunc("POST /api/blocks/state", s.handleBlockState)
	s.mux.HandleFunc("GET /api/peaks", s.handlePeaks)
	if s.cfg == nil || s.cfg.Metrics {
		s.mux.Handle("/metrics", promhttp.Handler())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleSchedule serves GET /api/schedule?date=YYYYMMDD; date defaults
// to today.
func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = s.planner.Today()
	}
	v, err := s.planner.Schedule(r.Context(), date)
	if err != nil {
		s.fail(w, "api schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.planner.Settings(r.Context())
	if err != nil {
		s.fail(w, "api settings", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handlePutSettings applies a partial settings update; absent fields
// keep their values.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var patch model.SettingsPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	st, err := s.planner.UpdateSettings(r.Context(), patch)
	if err != nil {
		s.fail(w, "api settings update", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type importResponse struct {
	Source string `json:"source"`
	Events int    `json:"events"`
}

// handleImport stores the ICS request body under ?source= (default "upload").
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	if source == "" {
		source = service.UploadSource
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "calendar file too large")
		return
	}
	n, err := s.planner.ImportICS(r.Context(), source, body)
	if err != nil {
		s.fail(w, "api import", err)
		return
	}
	writeJSON(w, http.StatusOK, importResponse{Source: source, Events: n})
}

type adjustRequest struct {
	Date      string `json:"date"`
	Direction string `json:"direction"`
}

func (s *Server) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	switch req.Direction {
	case string(planner.AddFocus), string(planner.ReduceFocus), "reset":
	default:
		writeError(w, http.StatusBadRequest, `direction must be "add", "reduce" or "reset"`)
		return
	}
	if req.Date == "" {
		req.Date = s.planner.Today()
	}
	v, err := s.planner.Adjust(r.Context(), req.Date, req.Direction)
	if err != nil {
		s.fail(w, "api adjust", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type blockStateRequest struct {
	Date  string           `json:"date"`
	ID    string           `json:"id"`
	State model.BlockState `json:"state"`
}

func (s *Server) handleBlockState(w http.ResponseWriter, r *http.Request) {
	var req blockStateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	if req.Date == "" {
		req.Date = s.planner.Today()
	}
	if err := s.planner.MarkBlock(r.Context(), req.Date, req.ID, req.State); err != nil {
		s.fail(w, "api block state", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type peakResponse struct {
	Name  string `json:"name"`
	Start string `json:"start"`
	End   string `json:"end"`
}

func (s *Server) handlePeaks(w http.ResponseWriter, _ *http.Request) {
	names := planner.PeakWindows()
	out := make([]peakResponse, 0, len(names))
	for _, name := range names {
		rg := planner.ResolvePeak(name)
		out = append(out, peakResponse{Name: name, Start: clock.Format12(rg.Start), End: clock.Format12(rg.End)})
	}
	writeJSON(w, http.StatusOK, out)
}

// fail maps service errors to status codes. Unexpected errors are logged
// and hidden behind a generic message.
func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, planner.ErrOverlappingEvents):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrUnknownBlock):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, planner.ErrInvalidInput),
		errors.Is(err, clock.ErrInvalidClock):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		appLog.Error(op+" failed", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+strings.TrimPrefix(err.Error(), "json: "))
		return false
	}
	return true
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
