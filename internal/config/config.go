package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"serial-led-bridge/internal/logger"

	"gopkg.in/yaml.v2"
)

const (
	DefaultBaudRate      = 9600
	DefaultNetworkPort   = 3000
	DefaultListenAddress = "127.0.0.1"
	DefaultLogLevel      = "INFO"
	DefaultTopicPrefix   = "ledbridge"
	DefaultMQTTClientID  = "serial-led-bridge"
)

// MQTTConfig configures the optional event publisher. An empty Broker
// disables it.
type MQTTConfig struct {
	Broker      string `json:"broker" yaml:"broker"`
	ClientID    string `json:"clientId" yaml:"clientId"`
	Username    string `json:"username,omitempty" yaml:"username,omitempty"`
	Password    string `json:"password,omitempty" yaml:"password,omitempty"`
	TopicPrefix string `json:"topicPrefix" yaml:"topicPrefix"`
}

// BridgeConfig stores the static configuration of the bridge.
type BridgeConfig struct {
	SerialPortName string     `json:"serialPortName" yaml:"serialPortName"`
	BaudRate       int        `json:"baudRate" yaml:"baudRate"`
	ListenAddress  string     `json:"listenAddress" yaml:"listenAddress"`
	NetworkPort    int        `json:"networkPort" yaml:"networkPort"`
	AllowedOrigins []string   `json:"allowedOrigins" yaml:"allowedOrigins"`
	StaticDir      string     `json:"staticDir,omitempty" yaml:"staticDir,omitempty"` // empty serves the embedded panel
	LogLevel       string     `json:"logLevel" yaml:"logLevel"`
	LogFile        string     `json:"logFile,omitempty" yaml:"logFile,omitempty"`
	MQTT           MQTTConfig `json:"mqtt" yaml:"mqtt"`
}

// Overrides holds values given on the command line. Nil fields leave the
// loaded configuration untouched.
type Overrides struct {
	SerialPortName *string
	BaudRate       *int
	ListenAddress  *string
	NetworkPort    *int
	AllowedOrigins *string // comma separated
	StaticDir      *string
	LogLevel       *string
	LogFile        *string
	MQTTBroker     *string
}

// Default returns a configuration with every default applied. No serial port
// is configured by default; the bridge starts degraded until one is set.
func Default() *BridgeConfig {
	c := &BridgeConfig{}
	c.applyDefaults()
	return c
}

// DefaultPath returns the config file location inside the user config dir.
func DefaultPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("could not get user config directory: %w", err)
	}
	return filepath.Join(configDir, "LedSerialBridge", "bridge_config.json"), nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Load reads the configuration file at path. A missing file yields the
// defaults and writes them to path so the operator has something to edit.
// The result is not validated; callers validate after applying overrides.
func Load(path string) (*BridgeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("Bridge config file '%s' not found. Using default settings.", path)
			c := Default()
			if err := Save(path, c); err != nil {
				logger.Warn("Could not write default config to '%s': %v", path, err)
			}
			return c, nil
		}
		return nil, fmt.Errorf("failed to read bridge config file: %w", err)
	}

	var c BridgeConfig
	if isYAML(path) {
		err = yaml.Unmarshal(data, &c)
	} else {
		err = json.Unmarshal(data, &c)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal bridge config: %w", err)
	}
	c.applyDefaults()
	logger.Info("Loaded bridge config from '%s'", path)
	return &c, nil
}

// Save writes c to path, creating the parent directory when needed.
func Save(path string, c *BridgeConfig) error {
	if c == nil {
		return fmt.Errorf("cannot save nil config")
	}
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal bridge config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write bridge config file: %w", err)
	}
	logger.Debug("Saved bridge config to '%s'", path)
	return nil
}

func (c *BridgeConfig) applyDefaults() {
	if c.BaudRate == 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.NetworkPort == 0 {
		c.NetworkPort = DefaultNetworkPort
	}
	if c.ListenAddress == "" {
		c.ListenAddress = DefaultListenAddress
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.AllowedOrigins == nil {
		c.AllowedOrigins = []string{}
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = DefaultMQTTClientID
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = DefaultTopicPrefix
	}
}

// Apply copies every set override into c and re-applies defaults.
func (c *BridgeConfig) Apply(o Overrides) {
	if o.SerialPortName != nil {
		c.SerialPortName = *o.SerialPortName
	}
	if o.BaudRate != nil {
		c.BaudRate = *o.BaudRate
	}
	if o.ListenAddress != nil {
		c.ListenAddress = *o.ListenAddress
	}
	if o.NetworkPort != nil {
		c.NetworkPort = *o.NetworkPort
	}
	if o.AllowedOrigins != nil {
		c.AllowedOrigins = SplitOrigins(*o.AllowedOrigins)
	}
	if o.StaticDir != nil {
		c.StaticDir = *o.StaticDir
	}
	if o.LogLevel != nil {
		c.LogLevel = *o.LogLevel
	}
	if o.LogFile != nil {
		c.LogFile = *o.LogFile
	}
	if o.MQTTBroker != nil {
		c.MQTT.Broker = *o.MQTTBroker
	}
	c.applyDefaults()
}

// SplitOrigins parses a comma separated origin list. Origins are compared
// exactly, so only surrounding whitespace is removed.
func SplitOrigins(s string) []string {
	origins := []string{}
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// Validate reports the first invalid field.
func (c *BridgeConfig) Validate() error {
	if c.NetworkPort <= 0 || c.NetworkPort > 65535 {
		return fmt.Errorf("invalid network port %d", c.NetworkPort)
	}
	if c.BaudRate <= 0 {
		return fmt.Errorf("invalid baud rate %d", c.BaudRate)
	}
	if net.ParseIP(c.ListenAddress) == nil && c.ListenAddress != "localhost" {
		return fmt.Errorf("invalid listen address %q", c.ListenAddress)
	}
	if _, ok := logger.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *BridgeConfig) Addr() string {
	return net.JoinHostPort(c.ListenAddress, fmt.Sprint(c.NetworkPort))
}

// PanelURL builds the browser URL of the control panel.
func (c *BridgeConfig) PanelURL() string {
	host := c.ListenAddress
	if host == "0.0.0.0" || host == "::" || host == "" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, fmt.Sprint(c.NetworkPort)) + "/"
}
