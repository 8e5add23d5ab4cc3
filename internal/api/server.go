package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ticketview/ticketview/internal/activity"
	"github.com/ticketview/ticketview/internal/localtime"
	"github.com/ticketview/ticketview/internal/portal"
	"github.com/ticketview/ticketview/internal/timeentry"
	"github.com/ticketview/ticketview/internal/view"
	"github.com/ticketview/ticketview/pkg/protocol"
)

// IdentityHeader carries the signed-in user's email, set by the
// authenticating proxy in front of the API.
const IdentityHeader = "X-User-Email"

// ActivityQuerier abstracts the activity feed to avoid coupling handlers
// to its storage.
type ActivityQuerier interface {
	Query(f activity.Filter) []activity.Event
}

// PortalService is the interface the API server needs from the portal.
type PortalService interface {
	Tickets(viewName, key string) (portal.TicketsPage, error)
	Dashboard(assignee string) (portal.Dashboard, error)
	Meetings() (portal.MeetingsPage, error)
	SubmitTimeEntry(in timeentry.TimeEntryInput) (protocol.CalendarItemRequest, error)
}

// Config holds API server configuration.
type Config struct {
	Host string
	Port int
	Key  string // API key for Bearer auth
	// Ingest, when set, serves POST /api/ingest/{source}. It authenticates
	// its own requests.
	Ingest http.Handler
}

// Server is the ticketview REST API server.
type Server struct {
	svc      PortalService
	cfg      Config
	logger   *slog.Logger
	activity ActivityQuerier
	srv      *http.Server
}

// NewServer creates a new API server. feed may be nil.
func NewServer(svc PortalService, cfg Config, logger *slog.Logger, feed ActivityQuerier) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		svc:      svc,
		cfg:      cfg,
		logger:   logger,
		activity: feed,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/assignees/{id}/tickets", s.requireAuth(s.handleTickets(view.AdminByAssignee.Name)))
	mux.HandleFunc("GET /api/assignees/{id}/dashboard", s.requireAuth(s.handleDashboard))
	mux.HandleFunc("GET /api/clients/{id}/tickets", s.requireAuth(s.handleTickets(view.AdminByClient.Name)))
	mux.HandleFunc("GET /api/employees/{id}/tickets", s.requireAuth(s.handleTickets(view.EmployeeSelf.Name)))
	mux.HandleFunc("GET /api/portal/{id}/tickets", s.requireAuth(s.handleTickets(view.ClientPortal.Name)))
	mux.HandleFunc("GET /api/meetings", s.requireAuth(s.handleMeetings))
	mux.HandleFunc("POST /api/time-entries", s.requireAuth(s.handleTimeEntry))
	mux.HandleFunc("GET /api/activity", s.requireAuth(s.handleActivity))
	if cfg.Ingest != nil {
		mux.Handle("POST /api/ingest/{source}", cfg.Ingest)
	}

	s.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.corsMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start begins listening. Blocks until context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutCtx)
	}()

	s.logger.Info("api server starting", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// --- Middleware ---

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, "+IdentityHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Key == "" {
			next(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != s.cfg.Key {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next(w, r)
	}
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTickets(viewName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := s.svc.Tickets(viewName, r.PathValue("id"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.svc.Dashboard(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleMeetings(w http.ResponseWriter, r *http.Request) {
	page, err := s.svc.Meetings()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleTimeEntry(w http.ResponseWriter, r *http.Request) {
	var in timeentry.TimeEntryInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	in.Organizer = r.Header.Get(IdentityHeader)

	req, err := s.svc.SubmitTimeEntry(in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	if s.activity == nil {
		writeJSON(w, http.StatusOK, []activity.Event{})
		return
	}

	flt := activity.Filter{Limit: 200, MinLevel: slog.LevelInfo}
	q := r.URL.Query()
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			flt.Limit = n
		}
	}
	if lvl := q.Get("level"); lvl != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(lvl)); err == nil {
			flt.MinLevel = level
		}
	}
	if since := q.Get("since"); since != "" {
		if ms, err := strconv.ParseInt(since, 10, 64); err == nil {
			flt.Since = time.UnixMilli(ms)
		}
	}
	flt.Contains = q.Get("q")

	writeJSON(w, http.StatusOK, s.activity.Query(flt))
}

// writeError maps portal errors to HTTP responses. Timestamp faults and
// unexpected errors are logged and answered with a generic body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *timeentry.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid time entry", "fields": verr.Fields})
	case errors.Is(err, timeentry.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "sign in required"})
	case errors.Is(err, portal.ErrUnknownView):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "view not found"})
	case errors.Is(err, localtime.ErrTimestamp):
		s.logger.Error("timestamp fault", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	default:
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
