package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadMissingFileWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "bridge_config.json")

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(Default(), c); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	if c.SerialPortName != "" {
		t.Errorf("SerialPortName = %q; no default port should be assumed", c.SerialPortName)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("default config not written: %v", err)
	}
}

func TestLoadJSONFillsMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.json")
	body := `{"serialPortName": "/dev/ttyACM0", "allowedOrigins": ["https://panel.example"]}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	want.SerialPortName = "/dev/ttyACM0"
	want.AllowedOrigins = []string{"https://panel.example"}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	body := `
serialPortName: COM5
baudRate: 115200
networkPort: 8080
allowedOrigins:
  - https://panel.example
mqtt:
  broker: tcp://localhost:1883
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	want.SerialPortName = "COM5"
	want.BaudRate = 115200
	want.NetworkPort = 8080
	want.AllowedOrigins = []string{"https://panel.example"}
	want.MQTT.Broker = "tcp://localhost:1883"
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRejectsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`{"networkPort": `), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load succeeded on malformed JSON")
	}
}

func TestValidateAfterOverrides(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"port.json":  `{"networkPort": 70000}`,
		"level.json": `{"logLevel": "LOUD"}`,
		"addr.json":  `{"listenAddress": "not-an-ip"}`,
	} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
		c, err := Load(path)
		if err != nil {
			t.Fatalf("Load(%s): %v", name, err)
		}
		if err := c.Validate(); err == nil {
			t.Errorf("Validate(%s) succeeded; want error", name)
		}
	}

	path := filepath.Join(dir, "port.json")
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	port := 8080
	c.Apply(Overrides{NetworkPort: &port})
	if err := c.Validate(); err != nil {
		t.Errorf("Validate after override: %v", err)
	}
}

func TestSaveRoundTripYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yml")
	c := Default()
	c.SerialPortName = "/dev/ttyUSB0"
	c.AllowedOrigins = []string{"https://a.example", "https://b.example"}
	if err := Save(path, c); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(c, got); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyOverrides(t *testing.T) {
	port := "/dev/ttyACM1"
	baud := 57600
	origins := " https://a.example ,, https://b.example"
	c := Default()
	c.LogLevel = "DEBUG"
	c.Apply(Overrides{SerialPortName: &port, BaudRate: &baud, AllowedOrigins: &origins})

	want := Default()
	want.LogLevel = "DEBUG"
	want.SerialPortName = port
	want.BaudRate = baud
	want.AllowedOrigins = []string{"https://a.example", "https://b.example"}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestPanelURL(t *testing.T) {
	c := Default()
	c.ListenAddress = "0.0.0.0"
	if got, want := c.PanelURL(), "http://127.0.0.1:3000/"; got != want {
		t.Errorf("PanelURL() = %q; want %q", got, want)
	}
	if got, want := c.Addr(), "0.0.0.0:3000"; got != want {
		t.Errorf("Addr() = %q; want %q", got, want)
	}
}
