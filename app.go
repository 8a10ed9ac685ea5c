package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"time"

	"serial-led-bridge/internal/config"
	"serial-led-bridge/internal/logger"
	"serial-led-bridge/internal/logstream"
	"serial-led-bridge/internal/mqtt"
	"serial-led-bridge/internal/serial"
	"serial-led-bridge/internal/server"
)

const shutdownTimeout = 5 * time.Second

// app wires the serial manager, the event publisher and the HTTP server.
type app struct {
	cfg       *config.BridgeConfig
	manager   *serial.Manager
	publisher *mqtt.Publisher
	server    *server.Server
	serverErr chan error
}

// newApp builds the bridge. A nil opener opens real serial devices.
func newApp(cfg *config.BridgeConfig, hub *logstream.Hub, embedded fs.FS, opener serial.Opener) (*app, error) {
	frontend, err := loadFrontend(cfg.StaticDir, embedded)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, serverErr: make(chan error, 1)}

	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewPublisher(mqtt.Options{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
		})
		if err != nil {
			logger.Warn("MQTT event publishing disabled: %v", err)
		} else {
			a.publisher = p
		}
	}

	a.manager = serial.NewManager(serial.Options{
		PortName: cfg.SerialPortName,
		BaudRate: cfg.BaudRate,
		Opener:   opener,
		OnLine: func(line string) {
			if a.publisher != nil {
				a.publisher.PublishLine(line)
			}
		},
	})

	opts := server.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		Frontend:       frontend,
		Version:        version,
		LogHub:         hub,
	}
	if a.publisher != nil {
		opts.Observer = a.publisher
	}
	a.server = server.New(a.manager, opts)
	return a, nil
}

// loadFrontend returns the control panel files: dir when set, otherwise the
// "web" tree of the embedded filesystem.
func loadFrontend(dir string, embedded fs.FS) (fs.FS, error) {
	var frontend fs.FS
	if dir != "" {
		frontend = os.DirFS(dir)
	} else {
		sub, err := fs.Sub(embedded, "web")
		if err != nil {
			return nil, fmt.Errorf("embedded control panel missing: %w", err)
		}
		frontend = sub
	}
	if _, err := fs.Stat(frontend, "index.html"); err != nil {
		return nil, fmt.Errorf("control panel has no index.html: %w", err)
	}
	return frontend, nil
}

// start opens the serial port and starts serving HTTP. A port that cannot be
// opened leaves the bridge running without a device.
func (a *app) start() {
	if err := a.manager.Open(); err != nil {
		logger.Warn("Starting without a device: %v", err)
	}

	if len(a.cfg.AllowedOrigins) == 0 {
		logger.Info("No cross-origin pages allowed; only same-origin requests are served.")
	} else {
		for _, o := range a.cfg.AllowedOrigins {
			logger.Info("Allowed origin: %s", o)
		}
	}
	logger.Info("Control panel: %s", a.cfg.PanelURL())

	go func() {
		a.serverErr <- a.server.Start(a.cfg.Addr())
	}()
}

// wait blocks until a shutdown signal arrives or the HTTP server stops. It
// reports whether the server failed; a server closed by stop is not a failure.
func (a *app) wait(sig <-chan os.Signal) bool {
	select {
	case s := <-sig:
		logger.Info("Received %s. Closing serial port...", s)
		return false
	case err := <-a.serverErr:
		if err == nil {
			logger.Debug("HTTP server stopped.")
			return false
		}
		logger.Error("%v", err)
		return true
	}
}

// stop shuts down the HTTP server and closes the serial port. It returns the
// process exit code: 1 when the port failed to close, 0 otherwise.
func (a *app) stop() int {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(ctx); err != nil {
		logger.Warn("HTTP server shutdown: %v", err)
	}

	code := 0
	if err := a.manager.Close(); err != nil {
		logger.Error("Error closing serial port: %v", err)
		code = 1
	} else {
		logger.Info("Serial port closed. Exiting.")
	}

	if a.publisher != nil {
		a.publisher.Close()
	}
	return code
}
