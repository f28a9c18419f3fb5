package web

import (
	"bytes"
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"hallcal/internal/config"
	"hallcal/internal/ics"
	appLog "hallcal/internal/log"
	"hallcal/internal/model"
	"hallcal/internal/timetable"
	"hallcal/internal/week"
)

// maxOffset bounds ?offset= to roughly ten years either way.
const maxOffset = 520

const connectivityMessage = "Unable to load schedule. Please check your internet connection."

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Weeks loads week views. *timetable.Loader satisfies it.
type Weeks interface {
	Load(ctx context.Context, offset int) (timetable.View, error)
	Window(offset int) week.Window
}

// Server serves the timetable page, its JSON and iCalendar forms, and the
// captured preview image.
type Server struct {
	cfg   *config.Config
	weeks Weeks
	mux   *http.ServeMux
	tmpl  *template.Template
	title string
}

// NewServer constructs a Server.
func NewServer(cfg *config.Config, weeks Weeks) (*Server, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:   cfg,
		weeks: weeks,
		mux:   http.NewServeMux(),
		tmpl:  tmpl,
		title: "Weekly Timetable",
	}
	s.registerRoutes()
	return s, nil
}

// Handler returns the root handler, wrapped in Basic Auth when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// Run serves on cfg.Listen until ctx is canceled, then shuts down.
func (s *Server) Run(ctx context.Context) error {
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
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials mean disabled.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
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
		if !ok || !secureCompare(u, username) || !passwordMatches(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="hallcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// passwordMatches checks p against a plain or bcrypt-hashed password.
func passwordMatches(p, want string) bool {
	if isBcryptHash(want) {
		return bcrypt.CompareHashAndPassword([]byte(want), []byte(p)) == nil
	}
	return secureCompare(p, want)
}

func isBcryptHash(s string) bool {
	return len(s) == 60 && (strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$"))
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /{$}", s.handlePage)
	s.mux.HandleFunc("GET /week", s.handlePage)
	s.mux.HandleFunc("GET /api/week", s.handleWeekAPI)
	s.mux.HandleFunc("GET /calendar.ics", s.handleICS)
	s.mux.HandleFunc("GET /preview.png", s.handlePreview)

	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return
	}
	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handlePage renders the HTML grid.
//
// GET /week?offset=N  (N weeks from the current week, default 0)
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	offset := parseOffset(r)

	v, err := s.weeks.Load(r.Context(), offset)
	if err != nil {
		appLog.Error("page load failed", err, "offset", offset)
		s.renderPage(w, http.StatusBadGateway, errorPage(s.title, offset, s.weeks.Window(offset), connectivityMessage))
		return
	}
	s.renderPage(w, http.StatusOK, newPage(s.title, v, s.cfg.Styles))
}

func (s *Server) renderPage(w http.ResponseWriter, status int, p pageData) {
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, "timetable.html", p); err != nil {
		appLog.Error("template render failed", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// weekResponse is the JSON shape for /api/week.
type weekResponse struct {
	Offset      int       `json:"offset"`
	Start       string    `json:"start"`
	End         string    `json:"end"`
	Days        []dayDTO  `json:"days"`
	Total       int       `json:"total"`
	Empty       bool      `json:"empty"`
	FromCache   bool      `json:"from_cache"`
	GeneratedAt time.Time `json:"generated_at"`
}

type dayDTO struct {
	Date    string       `json:"date"`
	Weekday string       `json:"weekday"`
	AM      []sessionDTO `json:"am"`
	PM      []sessionDTO `json:"pm"`
}

type sessionDTO struct {
	Date         string `json:"date"`
	Day          string `json:"day"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	Room         string `json:"room"`
	PublicName   string `json:"public_name"`
	SessionType  string `json:"session_type"`
	ContactEmail string `json:"contact_email,omitempty"`
	Notes        string `json:"notes,omitempty"`
	FullDay      bool   `json:"full_day"`
}

// handleWeekAPI returns the bucketed week as JSON.
//
// GET /api/week?offset=N
func (s *Server) handleWeekAPI(w http.ResponseWriter, r *http.Request) {
	offset := parseOffset(r)

	v, err := s.weeks.Load(r.Context(), offset)
	if err != nil {
		appLog.Error("api week load failed", err, "offset", offset)
		writeError(w, http.StatusBadGateway, "schedule unavailable")
		return
	}

	resp := weekResponse{
		Offset:      v.Offset,
		Start:       v.Window.Start().Format(time.DateOnly),
		End:         v.Window.End().Format(time.DateOnly),
		Days:        make([]dayDTO, 0, len(v.Days)),
		Total:       v.Total,
		Empty:       v.Empty,
		FromCache:   v.FromCache,
		GeneratedAt: v.GeneratedAt,
	}
	for _, d := range v.Days {
		resp.Days = append(resp.Days, dayDTO{
			Date:    d.Date.Format(time.DateOnly),
			Weekday: d.Date.Weekday().String(),
			AM:      toDTOs(d.AM),
			PM:      toDTOs(d.PM),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func toDTOs(sessions []model.Session) []sessionDTO {
	out := make([]sessionDTO, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionDTO{
			Date:         s.Date.Format(time.DateOnly),
			Day:          s.Day,
			StartTime:    s.StartTime,
			EndTime:      s.EndTime,
			Room:         s.Room,
			PublicName:   s.PublicName,
			SessionType:  s.SessionType,
			ContactEmail: s.ContactEmail,
			Notes:        s.Notes,
			FullDay:      s.FullDay(),
		})
	}
	return out
}

// handleICS exports the week as an iCalendar file.
func (s *Server) handleICS(w http.ResponseWriter, r *http.Request) {
	offset := parseOffset(r)

	v, err := s.weeks.Load(r.Context(), offset)
	if err != nil {
		appLog.Error("ics export load failed", err, "offset", offset)
		http.Error(w, "schedule unavailable", http.StatusBadGateway)
		return
	}

	body := ics.Serialize(v, ics.ExportOptions{Name: s.title})
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="week-`+v.Window.Start().Format("2006-01-02")+`.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// handlePreview serves the last captured screenshot; 404 until one exists.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, s.cfg.Capture.Output)
}

// parseOffset reads ?offset=N, clamped to ±maxOffset. Bad input means 0.
func parseOffset(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("offset"))
	if err != nil {
		return 0
	}
	return min(max(n, -maxOffset), maxOffset)
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
