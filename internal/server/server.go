// Package server runs the rcguard daemon: an HTTP API on a Unix socket for
// hosts that dispatch tool calls in parallel.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/remote-claude/rcguard/internal/hook"
	"github.com/remote-claude/rcguard/internal/metrics"
)

// Config holds daemon settings.
type Config struct {
	Socket  string
	PIDFile string
	// IdleTimeout stops the daemon after a period without requests.
	// Zero keeps it running.
	IdleTimeout time.Duration
}

// Server serves /v1/evaluate, /healthz and optionally /metrics.
type Server struct {
	cfg      Config
	handler  *hook.Handler
	log      *slog.Logger
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer

	lastRequest atomic.Int64
}

// Options carries optional collaborators.
type Options struct {
	Log     *slog.Logger
	Metrics *metrics.Metrics
	// Gatherer enables /metrics when set.
	Gatherer prometheus.Gatherer
}

// New creates a server around h.
func New(h *hook.Handler, cfg Config, opts Options) *Server {
	if opts.Log == nil {
		opts.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.PIDFile == "" && cfg.Socket != "" {
		cfg.PIDFile = strings.TrimSuffix(cfg.Socket, filepath.Ext(cfg.Socket)) + ".pid"
	}
	return &Server{
		cfg:      cfg,
		handler:  h,
		log:      opts.Log.With("component", "server"),
		metrics:  opts.Metrics,
		gatherer: opts.Gatherer,
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/evaluate", s.handleEvaluate)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return s.instrument(mux)
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	req, err := hook.DecodeRequest(r.Body)
	if err != nil {
		s.log.Warn("rejected request", "error", err)
		writeJSON(w, http.StatusBadRequest, hook.Unavailable(err))
		return
	}
	writeJSON(w, http.StatusOK, s.handler.Handle(r.Context(), req))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.lastRequest.Store(time.Now().UnixNano())
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		s.metrics.HTTPRequest(route, strconv.Itoa(rec.code))
	})
}

// ErrAlreadyRunning is returned when another daemon answers on the socket.
var ErrAlreadyRunning = errors.New("daemon already running")

// Run listens on the socket and serves until ctx is cancelled or the idle
// timeout expires. The socket and PID file are removed on return.
func (s *Server) Run(ctx context.Context) error {
	if s.cfg.Socket == "" {
		return errors.New("socket path is required")
	}
	if err := os.MkdirAll(filepath.Dir(s.cfg.Socket), 0700); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}
	if conn, err := net.DialTimeout("unix", s.cfg.Socket, time.Second); err == nil {
		_ = conn.Close()
		return fmt.Errorf("%w at %s", ErrAlreadyRunning, s.cfg.Socket)
	}
	_ = os.Remove(s.cfg.Socket)

	ln, err := net.Listen("unix", s.cfg.Socket)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if err := os.Chmod(s.cfg.Socket, 0600); err != nil {
		_ = ln.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}
	if err := os.WriteFile(s.cfg.PIDFile, []byte(strconv.Itoa(os.Getpid())+"\n"), 0600); err != nil {
		_ = ln.Close()
		return fmt.Errorf("write pid file: %w", err)
	}
	defer func() {
		_ = os.Remove(s.cfg.Socket)
		_ = os.Remove(s.cfg.PIDFile)
	}()

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.lastRequest.Store(time.Now().UnixNano())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()
	s.log.Info("daemon listening", "socket", s.cfg.Socket, "pid", os.Getpid(), "idle_timeout", s.cfg.IdleTimeout)

	var idle <-chan time.Time
	if s.cfg.IdleTimeout > 0 {
		ticker := time.NewTicker(idleCheckInterval(s.cfg.IdleTimeout))
		defer ticker.Stop()
		idle = ticker.C
	}

	for {
		select {
		case err := <-serveErr:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
			s.log.Info("daemon stopping", "reason", ctx.Err())
			return shutdown(srv, serveErr)
		case <-idle:
			since := time.Since(time.Unix(0, s.lastRequest.Load()))
			if since >= s.cfg.IdleTimeout {
				s.log.Info("daemon stopping", "reason", "idle", "idle_for", since.Round(time.Second))
				return shutdown(srv, serveErr)
			}
		}
	}
}

func shutdown(srv *http.Server, serveErr <-chan error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(ctx)
	if serr := <-serveErr; serr != nil && !errors.Is(serr, http.ErrServerClosed) && err == nil {
		err = serr
	}
	return err
}

func idleCheckInterval(idle time.Duration) time.Duration {
	iv := idle / 4
	if iv > time.Second {
		iv = time.Second
	}
	if iv < 10*time.Millisecond {
		iv = 10 * time.Millisecond
	}
	return iv
}

// ReadPID returns the PID recorded in path.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}
