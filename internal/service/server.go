// Package service is the status API of the watcher: the latest result,
// session health, and manual refresh and refetch triggers.
package service

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/edgecomet/detailwatch/internal/common/configtypes"
	"github.com/edgecomet/detailwatch/internal/common/httputil"
	"github.com/edgecomet/detailwatch/internal/extract"
	"github.com/edgecomet/detailwatch/internal/metrics"
	"github.com/edgecomet/detailwatch/internal/watch"
	"github.com/edgecomet/detailwatch/pkg/types"
)

// Path constants for the status API
const (
	PathLatest  = "/latest"
	PathHealth  = "/health"
	PathRefresh = "/refresh"
	PathRefetch = "/refetch"
)

// Watcher is the part of the coordinator the API drives
type Watcher interface {
	Status() watch.Status
	RequestRefresh()
	RequestRefetch()
}

// LatestReader exposes the most recent accepted result and navigation
type LatestReader interface {
	Latest() (extract.Result, bool)
	LastNavigation() (types.NavigationEvent, bool)
	Accepted() int64
}

type route func(ctx *fasthttp.RequestCtx) int

// Server serves the status API
type Server struct {
	cfg       configtypes.ServerConfig
	watcher   Watcher
	latest    LatestReader
	metrics   *metrics.MetricsCollector
	logger    *zap.Logger
	routes    map[string]map[string]route // path -> method -> handler
	startTime time.Time

	srv *fasthttp.Server
	ln  net.Listener
}

// NewServer creates the API server; call Start to begin listening
func NewServer(cfg configtypes.ServerConfig, watcher Watcher, latest LatestReader, metricsCollector *metrics.MetricsCollector, logger *zap.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		watcher:   watcher,
		latest:    latest,
		metrics:   metricsCollector,
		logger:    logger,
		startTime: time.Now().UTC(),
	}
	s.routes = map[string]map[string]route{
		PathLatest:  {fasthttp.MethodGet: s.handleLatest},
		PathHealth:  {fasthttp.MethodGet: s.handleHealth},
		PathRefresh: {fasthttp.MethodPost: s.handleRefresh},
		PathRefetch: {fasthttp.MethodPost: s.handleRefetch},
	}
	return s
}

// Handler returns the routing request handler
func (s *Server) Handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		path := string(ctx.Path())
		method := string(ctx.Method())

		var status int
		methods, known := s.routes[path]
		switch {
		case !known:
			status = httputil.JSONError(ctx, "not found", fasthttp.StatusNotFound)
			path = "other"
		case methods[method] == nil:
			status = httputil.JSONError(ctx, "method not allowed", fasthttp.StatusMethodNotAllowed)
		default:
			status = methods[method](ctx)
		}

		s.metrics.RecordHTTPRequest(path, strconv.Itoa(status))
	}
}

// Start binds the listener and serves in the background
func (s *Server) Start() error {
	listen, err := configtypes.NormalizeListen(s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("invalid server listen address: %w", err)
	}

	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", listen, err)
	}
	s.ln = ln

	s.srv = &fasthttp.Server{
		Handler:            s.Handler(),
		Name:               "DetailWatch/" + s.cfg.ID,
		ReadTimeout:        10 * time.Second,
		WriteTimeout:       10 * time.Second,
		IdleTimeout:        30 * time.Second,
		MaxRequestBodySize: 4 * 1024,
	}

	go func() {
		s.logger.Info("Status API listening", zap.String("listen", ln.Addr().String()))
		if err := s.srv.Serve(ln); err != nil {
			s.logger.Error("Status API stopped", zap.Error(err))
		}
	}()

	return nil
}

// Addr is the bound address, empty before Start
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Shutdown completes in-flight requests and stops the listener
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	s.logger.Info("Shutting down status API")
	return s.srv.ShutdownWithContext(ctx)
}
