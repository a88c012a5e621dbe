// Package transport exposes a worker host over HTTP websockets and over
// standard input and output.
package transport

import (
	"log/slog"
	"net/http"

	chi "github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomyedwab/sqlight/metrics"
	"github.com/tomyedwab/sqlight/worker/host"
)

type ServerConfig struct {
	Host *host.Host
	// JWTSecret enables bearer token auth on the worker endpoint.
	JWTSecret         []byte
	EnableCrossOrigin bool
	// Gatherer backs /metrics. Defaults to the default registry.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// Server routes HTTP requests: /worker runs the message loop over a
// websocket, /metrics and /healthz serve diagnostics.
type Server struct {
	router   chi.Router
	host     *host.Host
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewServer(config ServerConfig) *Server {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Gatherer == nil {
		config.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		router: chi.NewRouter(),
		host:   config.Host,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
		},
		logger: config.Logger.With("component", "transport"),
	}
	if config.EnableCrossOrigin {
		s.upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	}

	middleware := []func(http.HandlerFunc) http.HandlerFunc{}
	if config.JWTSecret != nil {
		middleware = append(middleware, BearerAuth(config.JWTSecret))
	}
	middleware = append(middleware, EnableCrossOrigin(config.EnableCrossOrigin), LogRequests(s.logger))

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	s.router.Handle("/metrics", promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{}))
	s.router.Get("/worker", Chain(s.handleWorker, middleware...))
	s.router.Options("/worker", Chain(s.handleWorker, EnableCrossOrigin(config.EnableCrossOrigin)))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleWorker(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied with an HTTP error.
		s.logger.Warn("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn := NewWebsocketConn(ws)
	defer conn.Close()

	metrics.Connections.Inc()
	defer metrics.Connections.Dec()

	s.logger.Info("Worker client connected", "remote", r.RemoteAddr)
	if err := s.host.Serve(r.Context(), conn); err != nil {
		s.logger.Warn("Worker connection ended", "remote", r.RemoteAddr, "error", err)
		return
	}
	s.logger.Info("Worker client disconnected", "remote", r.RemoteAddr)
}
