// Package api serves the portal's HTTP interface: the JSON routes driving the
// orchestrator, a websocket event stream and the static UI.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/bbernstein/wifi-connect/internal/apperr"
	"github.com/bbernstein/wifi-connect/internal/services/pubsub"
)

const (
	// RequestTimeout bounds a JSON request. Requests queue behind whatever
	// the orchestrator is doing, which includes joins and rescans.
	RequestTimeout = 2 * time.Minute

	// ShutdownTimeout bounds the graceful shutdown.
	ShutdownTimeout = 5 * time.Second

	readTimeout  = 15 * time.Second
	writeTimeout = RequestTimeout + 10*time.Second
	idleTimeout  = 60 * time.Second
)

// Options configures the server.
type Options struct {
	Address     string
	Gateway     net.IP
	UIDirectory string
	CORSOrigin  string
	Version     string

	Bridge *Bridge
	Events *pubsub.PubSub // optional; disables /events when nil
	Logger zerolog.Logger
}

// Server is the portal HTTP server.
type Server struct {
	addr     string
	version  string
	bridge   *Bridge
	events   *pubsub.PubSub
	upgrader websocket.Upgrader
	router   chi.Router
	log      zerolog.Logger
}

// NewServer builds the router.
func NewServer(opts Options) *Server {
	s := &Server{
		addr:    opts.Address,
		version: opts.Version,
		bridge:  opts.Bridge,
		events:  opts.Events,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for WebSocket
			},
		},
		log: opts.Logger,
	}

	origin := opts.CORSOrigin
	if origin == "" {
		origin = "*"
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: []string{origin},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Requested-With"},
	}).Handler)

	r.Get("/health", s.handleHealth)
	if s.events != nil {
		r.Get("/events", s.handleEvents)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(RequestTimeout))
		r.Get("/networks", s.handleNetworks)
		r.Post("/connect", s.handleConnect)
		r.Get("/enable_ap", s.handleEnableAP)
		r.Get("/disable_ap", s.handleDisableAP)
		r.Get("/restart_ap", s.handleRestartAP)
		r.Get("/current", s.handleCurrent)
		r.Get("/has_connection", s.handleHasConnection)
	})

	if opts.UIDirectory != "" {
		listenHost, _, _ := net.SplitHostPort(opts.Address)
		r.Group(func(r chi.Router) {
			r.Use(captiveRedirect(opts.Gateway, listenHost, "localhost"))
			r.Handle("/*", http.FileServer(http.Dir(opts.UIDirectory)))
		})
	}

	s.router = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on the configured address and serves until ctx is done, then
// shuts down gracefully. Request contexts derive from ctx, so requests still
// waiting on the orchestrator are released when it stops.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return apperr.New(apperr.KindStartHTTPServer, err).WithAddress(s.addr)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("address", ln.Addr().String()).Msg("HTTP server listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return apperr.New(apperr.KindStartHTTPServer, err).WithAddress(s.addr)
	case <-ctx.Done():
	}

	s.log.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn().Err(err).Msg("HTTP server shutdown incomplete")
	}
	return nil
}
