// Package server exposes the inference service over HTTP and WebSocket.
package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/farcloser/tocsin/internal/inference"
	"github.com/farcloser/tocsin/internal/metrics"
)

const (
	// APIVersion is reported by /model_info.
	APIVersion = "1.0"

	defaultAddr                    = ":5000"
	defaultReadHeaderTimeout       = 10 * time.Second
	defaultReadTimeout             = 30 * time.Second
	defaultWriteTimeout            = 60 * time.Second
	defaultIdleTimeout             = 120 * time.Second
	defaultMaxBodySize       int64 = 10 << 20
)

// Option configures a Server.
type Option func(*Server)

// WithAddr sets the listen address. Default: ":5000".
func WithAddr(addr string) Option {
	return func(s *Server) { s.addr = addr }
}

// WithMaxBodySize caps request bodies and WebSocket messages. Default: 10 MiB.
func WithMaxBodySize(n int64) Option {
	return func(s *Server) { s.maxBodySize = n }
}

// WithAllowedOrigins restricts CORS and WebSocket origins. Empty allows any origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.allowedOrigins = origins }
}

// WithRegistry sets the registry served at /metrics.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(s *Server) { s.registry = registry }
}

// WithReadTimeout sets the maximum duration for reading a request. Default: 30s.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Server) { s.readTimeout = d }
}

// WithWriteTimeout sets the maximum duration for writing a response. Default: 60s.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Server) { s.writeTimeout = d }
}

// Server serves the prediction API.
type Server struct {
	service        *inference.Service
	registry       *prometheus.Registry
	addr           string
	maxBodySize    int64
	allowedOrigins []string
	readTimeout    time.Duration
	writeTimeout   time.Duration

	httpSrv   *http.Server
	httpSrvMu sync.Mutex
}

// New returns a Server for service.
func New(service *inference.Service, opts ...Option) *Server {
	s := &Server{
		service:      service,
		addr:         defaultAddr,
		maxBodySize:  defaultMaxBodySize,
		readTimeout:  defaultReadTimeout,
		writeTimeout: defaultWriteTimeout,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.registry == nil {
		s.registry = metrics.NewRegistry()
	}

	return s
}

// Endpoints lists the routes, as reported by the JSON 404 handler.
func Endpoints() []string {
	return []string{"/health", "/predict", "/predict_file", "/model_info", "/metrics", "/ws/predict", "/test"}
}

// Handler returns the full middleware stack and routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /predict", s.handlePredict)
	mux.HandleFunc("POST /predict_file", s.handlePredictFile)
	mux.HandleFunc("GET /model_info", s.handleModelInfo)
	mux.HandleFunc("POST /test", s.handleTest)
	mux.HandleFunc("GET /ws/predict", s.handleWebSocket)
	mux.Handle("GET /metrics", metrics.Handler(s.registry))
	mux.HandleFunc("/", s.handleNotFound)

	return otelhttp.NewHandler(s.cors(withRequestID(instrument(mux))), "tocsin")
}

// Addr is the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// ListenAndServe listens on the configured address.
func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	return s.Serve(listener)
}

// Serve serves on listener until Shutdown.
func (s *Server) Serve(listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		ReadTimeout:       s.readTimeout,
		WriteTimeout:      s.writeTimeout,
		IdleTimeout:       defaultIdleTimeout,
	}

	s.httpSrvMu.Lock()
	s.httpSrv = srv
	s.httpSrvMu.Unlock()

	return srv.Serve(listener)
}

// Shutdown drains in flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.httpSrvMu.Lock()
	srv := s.httpSrv
	s.httpSrvMu.Unlock()

	if srv == nil {
		return nil
	}

	return srv.Shutdown(ctx)
}
