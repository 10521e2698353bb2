// Package httpserver serves the pantry page and its JSON API.
package httpserver

import (
	"context"
	"embed"
	"encoding/json"
	"expvar"
	"html/template"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pantry/internal/inventory"
	"pantry/internal/ui"
)

//go:embed templates/*
var templateFS embed.FS

const defaultRequestTimeout = 5 * time.Second

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for render failures.
func WithLogger(logger inventory.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithGatherer exposes the given registry on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithRequestTimeout bounds store calls made on behalf of a request.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// Server renders the controller state over HTTP.
type Server struct {
	controller *ui.Controller
	templates  *template.Template
	logger     inventory.Logger
	gatherer   prometheus.Gatherer
	timeout    time.Duration
}

type pageData struct {
	ui.View
	DelayMS int64
}

// New parses the embedded templates and returns a Server.
func New(controller *ui.Controller, opts ...Option) (*Server, error) {
	tmpl, err := template.New("index.gohtml").
		Funcs(template.FuncMap{"pathEscape": url.PathEscape}).
		ParseFS(templateFS, "templates/index.gohtml")
	if err != nil {
		return nil, err
	}
	s := &Server{
		controller: controller,
		templates:  tmpl,
		logger:     discardLogger{},
		timeout:    defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handler returns the mux with all routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.index)
	mux.HandleFunc("GET /api/items", s.listItems)
	mux.HandleFunc("POST /api/query", s.setQuery)
	mux.HandleFunc("POST /api/items", s.addItem)
	mux.HandleFunc("POST /api/items/{name}/increment", s.increment)
	mux.HandleFunc("POST /api/items/{name}/decrement", s.decrement)
	mux.Handle("GET /debug/vars", expvar.Handler())
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	data := pageData{
		View:    s.controller.View(),
		DelayMS: s.controller.FilterDelay().Milliseconds(),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "index.gohtml", data); err != nil {
		s.logger.Error("render index", "error", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
	}
}

func (s *Server) listItems(w http.ResponseWriter, _ *http.Request) {
	s.writeView(w)
}

type queryRequest struct {
	Query string `json:"query"`
}

func (s *Server) setQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !s.decode(w, r, &req, func() { req.Query = r.PostFormValue("query") }) {
		return
	}
	s.controller.SetQuery(req.Query)
	s.respond(w, r)
}

type addRequest struct {
	Name string `json:"name"`
}

func (s *Server) addItem(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if !s.decode(w, r, &req, func() { req.Name = r.PostFormValue("name") }) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	s.controller.OpenAddModal()
	s.controller.SetItemName(req.Name)
	s.controller.SubmitAdd(ctx)
	s.respond(w, r)
}

func (s *Server) increment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	s.controller.Increment(ctx, r.PathValue("name"))
	s.respond(w, r)
}

func (s *Server) decrement(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	s.controller.Decrement(ctx, r.PathValue("name"))
	s.respond(w, r)
}

// decode reads a JSON body into dst, or falls back to form values.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any, fromForm func()) bool {
	if isJSON(r) {
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return false
		}
		return true
	}
	fromForm()
	return true
}

// respond returns the view to API clients and redirects form posts back to
// the page.
func (s *Server) respond(w http.ResponseWriter, r *http.Request) {
	if isJSON(r) || strings.Contains(r.Header.Get("Accept"), "application/json") {
		s.writeView(w)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) writeView(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.controller.View()); err != nil {
		s.logger.Warn("encode view", "error", err)
	}
}

func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

type discardLogger struct{}

func (discardLogger) Debug(string, ...any) {}
func (discardLogger) Info(string, ...any)  {}
func (discardLogger) Warn(string, ...any)  {}
func (discardLogger) Error(string, ...any) {}
