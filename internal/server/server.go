package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"time"

	"serial-led-bridge/internal/handlers"
	"serial-led-bridge/internal/logger"
	"serial-led-bridge/internal/logstream"
	"serial-led-bridge/internal/serial"

	"github.com/gorilla/mux"
)

const (
	msgPortUnavailable = "Error: the serial port used to talk to the device is not available."
	msgMissingCommand  = "No command specified in the request."
	msgWriteFailed     = "Error sending the command to the device."
)

// Device is the serial peripheral as seen by the HTTP layer.
type Device interface {
	IsOpen() bool
	Write(ctx context.Context, command string) error
	Status() serial.Status
}

// CommandObserver is told about every attempted command write.
type CommandObserver interface {
	PublishCommand(command string, writeErr error)
}

// Options configures the HTTP server.
type Options struct {
	AllowedOrigins []string
	Frontend       fs.FS // must contain index.html
	Version        string
	LogHub         *logstream.Hub  // nil disables /ws/logs
	Observer       CommandObserver // may be nil
}

// Server is the HTTP side of the bridge.
type Server struct {
	device     Device
	gate       *OriginGate
	frontend   fs.FS
	observer   CommandObserver
	handler    http.Handler
	httpServer *http.Server
}

func New(device Device, opts Options) *Server {
	s := &Server{
		device:   device,
		gate:     NewOriginGate(opts.AllowedOrigins),
		frontend: opts.Frontend,
		observer: opts.Observer,
	}
	s.handler = s.gate.Middleware(s.setupRoutes(opts))
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes(opts Options) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/control-led", s.handleControlLed).Methods(http.MethodGet)
	router.HandleFunc("/api/status", handlers.HandleStatus(s.device, opts.Version)).Methods(http.MethodGet)
	if opts.LogHub != nil {
		router.HandleFunc("/ws/logs", opts.LogHub.Handler(s.gate.CheckOrigin)).Methods(http.MethodGet)
	}

	// The entry document is always served for "/", whatever the file server
	// would make of the directory.
	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFileFS(w, r, s.frontend, "index.html")
	}).Methods(http.MethodGet, http.MethodHead)
	router.PathPrefix("/").Handler(http.FileServer(http.FS(s.frontend))).Methods(http.MethodGet, http.MethodHead)

	return router
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on addr and serves until Shutdown is called.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("could not bind to address '%s': %w", addr, err)
	}
	logger.Info("Web server listening on http://%s", listener.Addr())
	if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for active ones until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleControlLed(w http.ResponseWriter, r *http.Request) {
	command := r.URL.Query().Get("comando")

	// A missing command is a client error whatever the connection state.
	if command == "" {
		logger.Warn("Request from %s without a command.", r.RemoteAddr)
		http.Error(w, msgMissingCommand, http.StatusBadRequest)
		return
	}
	if !s.device.IsOpen() {
		logger.Error("Serial port is not open or not available; command '%s' not sent.", command)
		http.Error(w, msgPortUnavailable, http.StatusServiceUnavailable)
		return
	}

	logger.Info("Command '%s' received from the web (origin: %s). Sending to device...", command, originOf(r))
	err := s.device.Write(r.Context(), command)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// The write goroutine keeps running; its outcome is unknown here.
		logger.Warn("Client went away while command '%s' was being written; result abandoned: %v", command, err)
		return
	}
	if s.observer != nil {
		s.observer.PublishCommand(command, err)
	}
	if err != nil {
		logger.Error("Error writing command '%s' to the serial port: %v", command, err)
		http.Error(w, msgWriteFailed, http.StatusInternalServerError)
		return
	}

	logger.Info("Command '%s' sent to the device.", command)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "Command '%s' sent to the device.", command)
}

func originOf(r *http.Request) string {
	if o := r.Header.Get("Origin"); o != "" {
		return o
	}
	return "same origin/unknown"
}
