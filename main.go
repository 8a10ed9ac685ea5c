package main

import (
	"embed"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"serial-led-bridge/internal/config"
	"serial-led-bridge/internal/logger"
	"serial-led-bridge/internal/logstream"
	"serial-led-bridge/internal/serial"
	"serial-led-bridge/internal/systray"
)

var version = "dev"

//go:embed web
var webFS embed.FS

// cliFlags holds the parsed command line.
type cliFlags struct {
	configPath string
	listPorts  bool
	tray       bool
	overrides  config.Overrides
}

func parseFlags(fs *flag.FlagSet, args []string) (*cliFlags, error) {
	defaultPath, err := config.DefaultPath()
	if err != nil {
		defaultPath = "bridge_config.json"
	}

	f := &cliFlags{}
	fs.StringVar(&f.configPath, "config", defaultPath, "path of the config file (.json, .yaml or .yml)")
	fs.BoolVar(&f.listPorts, "list-ports", false, "list the serial ports of this system and exit")
	fs.BoolVar(&f.tray, "tray", false, "run with a system tray icon")
	portName := fs.String("port", "", "serial port of the device (e.g. COM5 or /dev/ttyUSB0)")
	baud := fs.Int("baud", config.DefaultBaudRate, "serial baud rate")
	listen := fs.String("listen", config.DefaultListenAddress, "HTTP listen address")
	httpPort := fs.Int("http-port", config.DefaultNetworkPort, "HTTP listen port")
	origins := fs.String("allowed-origins", "", "comma separated list of allowed cross-origin page origins")
	staticDir := fs.String("static-dir", "", "serve the control panel from this directory instead of the built-in one")
	logLevel := fs.String("log-level", config.DefaultLogLevel, "DEBUG, INFO, WARN or ERROR")
	logFile := fs.String("log-file", "", "also write the log to this file")
	broker := fs.String("mqtt-broker", "", "publish bridge events to this MQTT broker (tcp://host:1883)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Only flags given explicitly override the config file.
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "port":
			f.overrides.SerialPortName = portName
		case "baud":
			f.overrides.BaudRate = baud
		case "listen":
			f.overrides.ListenAddress = listen
		case "http-port":
			f.overrides.NetworkPort = httpPort
		case "allowed-origins":
			f.overrides.AllowedOrigins = origins
		case "static-dir":
			f.overrides.StaticDir = staticDir
		case "log-level":
			f.overrides.LogLevel = logLevel
		case "log-file":
			f.overrides.LogFile = logFile
		case "mqtt-broker":
			f.overrides.MQTTBroker = broker
		}
	})
	return f, nil
}

func loadConfig(f *cliFlags) (*config.BridgeConfig, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	cfg.Apply(f.overrides)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func printPorts(w io.Writer) error {
	ports, err := serial.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Fprintln(w, "No serial ports found.")
		return nil
	}
	for _, p := range ports {
		if p.IsUSB {
			fmt.Fprintf(w, "%s\tUSB VID:PID %s:%s\tserial %s\t%s\n", p.Name, p.VID, p.PID, p.SerialNumber, p.Product)
		} else {
			fmt.Fprintln(w, p.Name)
		}
	}
	return nil
}

func main() {
	flags, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	if flags.listPorts {
		if err := printPorts(os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		logger.Fatal("FATAL: Failed to load bridge configuration: %v", err)
	}

	// Start the WebSocket hub in a goroutine.
	hub := logstream.NewHub()
	go hub.Run()

	if err := logger.Setup(logger.Options{
		Level:    cfg.LogLevel,
		FilePath: cfg.LogFile,
		Sinks:    []io.Writer{hub},
	}); err != nil {
		logger.Fatal("FATAL: %v", err)
	}

	logger.Info("==================================================")
	logger.Info("==            LED Serial Bridge %-16s==", version)
	logger.Info("==================================================")

	a, err := newApp(cfg, hub, webFS, nil)
	if err != nil {
		logger.Fatal("FATAL: %v", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	var code int
	if flags.tray {
		code = runWithTray(a, sig)
	} else {
		code = runHeadless(a, sig)
	}
	logger.Close()
	os.Exit(code)
}

// runHeadless serves until a signal arrives or the HTTP server fails.
func runHeadless(a *app, sig <-chan os.Signal) int {
	a.start()
	failed := a.wait(sig)
	code := a.stop()
	if failed {
		return 1
	}
	return code
}

// runWithTray serves under a tray icon. Exit from the menu and signals both
// end the tray loop, which performs the shutdown.
func runWithTray(a *app, sig <-chan os.Signal) int {
	var code int
	var failed, stopping atomic.Bool
	systray.Run(func() {
		a.start()
		go func() {
			if serverFailed := a.wait(sig); serverFailed && !stopping.Load() {
				failed.Store(true)
			}
			systray.Quit()
		}()
	}, func() {
		stopping.Store(true)
		code = a.stop()
	}, a.cfg.PanelURL())
	if failed.Load() {
		return 1
	}
	return code
}
