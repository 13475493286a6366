// HTTP endpoint of the MMU host
//
// One listener carries the Prometheus scrape endpoint, liveness and
// readiness checks, and whatever else the host mounts on it (the
// notification websocket). Basic auth, when configured, covers everything
// except the health checks.
//
// Copyright (C) 2025 Go port
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerConfig configures the HTTP endpoint.
type ServerConfig struct {
	Address  string
	Username string
	Password string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type route struct {
	Pattern string
	About   string
}

// Server exposes an MMUMetrics registry over HTTP.
type Server struct {
	cfg     ServerConfig
	mux     *http.ServeMux
	srv     *http.Server
	serving atomic.Bool

	mu     sync.Mutex
	routes []route
	ready  func() bool
}

var index = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><title>MMU2 Host</title></head>
<body>
<h1>MMU2 Host</h1>
<ul>
{{range .}}<li><a href="{{.Pattern}}">{{.Pattern}}</a> {{.About}}</li>
{{end}}</ul>
</body>
</html>
`))

// NewServer builds the endpoint. Zero timeouts default to ten seconds.
func NewServer(mm *MMUMetrics, cfg ServerConfig) *Server {
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	s := &Server{cfg: cfg, mux: http.NewServeMux()}
	s.Handle("/metrics", "Prometheus metrics", promhttp.HandlerFor(mm.Registry(), promhttp.HandlerOpts{}))
	s.check("/health", "liveness", func() bool { return true })
	s.check("/ready", "readiness: serving with the MMU active", s.isReady)
	s.mux.HandleFunc("/", s.serveIndex)
	s.srv = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handle mounts h behind basic auth and lists it on the index page. Call it
// before serving.
func (s *Server) Handle(pattern, about string, h http.Handler) {
	s.mu.Lock()
	s.routes = append(s.routes, route{pattern, about})
	s.mu.Unlock()
	s.mux.Handle(pattern, s.authenticated(h))
}

func (s *Server) check(pattern, about string, check func() bool) {
	s.mu.Lock()
	s.routes = append(s.routes, route{pattern, about})
	s.mu.Unlock()
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if !check() {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintln(w, "not ready")
			return
		}
		fmt.Fprintln(w, "ok")
	})
}

// SetReadyFunc adds a condition to /ready on top of the server accepting
// connections.
func (s *Server) SetReadyFunc(f func() bool) {
	s.mu.Lock()
	s.ready = f
	s.mu.Unlock()
}

func (s *Server) isReady() bool {
	if !s.serving.Load() {
		return false
	}
	s.mu.Lock()
	f := s.ready
	s.mu.Unlock()
	return f == nil || f()
}

// Handler is the root handler.
func (s *Server) Handler() http.Handler { return s.mux }

// Address is the configured listen address.
func (s *Server) Address() string { return s.cfg.Address }

// Serving reports whether the server is accepting connections.
func (s *Server) Serving() bool { return s.serving.Load() }

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.serving.Store(true)
	defer s.serving.Store(false)
	if err := s.srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics: serve %s: %w", ln.Addr(), err)
	}
	return nil
}

// Start listens on the configured address and serves in the background.
// The channel yields the serve error, if any, and is then closed. A listen
// failure is returned directly.
func (s *Server) Start() (<-chan error, error) {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("metrics: listen: %w", err)
	}
	s.serving.Store(true)
	done := make(chan error, 1)
	go func() {
		defer close(done)
		if err := s.Serve(ln); err != nil {
			done <- err
		}
	}()
	return done, nil
}

// Shutdown stops accepting connections and waits for active requests.
// Hijacked connections, like websockets, are not waited for.
func (s *Server) Shutdown(ctx context.Context) error {
	s.serving.Store(false)
	return s.srv.Shutdown(ctx)
}

func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	s.mu.Lock()
	routes := append([]route(nil), s.routes...)
	s.mu.Unlock()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = index.Execute(w, routes)
}

func (s *Server) authenticated(h http.Handler) http.Handler {
	if s.cfg.Username == "" && s.cfg.Password == "" {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || !equal(user, s.cfg.Username) || !equal(pass, s.cfg.Password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="MMU2 Host"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		h.ServeHTTP(w, r)
	})
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
