// Package mqtt mirrors bridge activity to an MQTT broker. Publishing is
// fire-and-forget; it never affects the HTTP responses.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"serial-led-bridge/internal/logger"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const publishTimeout = 5 * time.Second

// Options configures the broker connection.
type Options struct {
	Broker         string // tcp://host:port
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	ConnectTimeout time.Duration
}

// CommandEvent is published after every attempted write to the device.
type CommandEvent struct {
	ID        string `json:"id"`
	Command   string `json:"command"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"` // Unix milliseconds
}

// LineEvent is published for every line received from the device.
type LineEvent struct {
	ID        string `json:"id"`
	Line      string `json:"line"`
	Timestamp int64  `json:"timestamp"`
}

// client is the subset of paho.Client used for publishing.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// Publisher sends bridge events to the broker.
type Publisher struct {
	inner  client
	prefix string
	now    func() time.Time
}

// NewPublisher connects to the broker. The client keeps reconnecting in the
// background once the first connection succeeded.
func NewPublisher(opts Options) (*Publisher, error) {
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	o := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetCleanSession(true)
	if opts.Username != "" {
		o.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		o.SetPassword(opts.Password)
	}

	c := paho.NewClient(o)
	tok := c.Connect()
	if !tok.WaitTimeout(opts.ConnectTimeout) {
		return nil, fmt.Errorf("mqtt connect timeout after %s", opts.ConnectTimeout)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect failed: %w", err)
	}
	logger.Info("Connected to MQTT broker %s.", opts.Broker)
	return newPublisher(c, opts.TopicPrefix), nil
}

func newPublisher(c client, prefix string) *Publisher {
	return &Publisher{inner: c, prefix: prefix, now: time.Now}
}

func (p *Publisher) topic(name string) string {
	if p.prefix == "" {
		return name
	}
	return p.prefix + "/" + name
}

// PublishCommand reports the outcome of a command write.
func (p *Publisher) PublishCommand(command string, writeErr error) {
	ev := CommandEvent{
		ID:        uuid.NewString(),
		Command:   command,
		OK:        writeErr == nil,
		Timestamp: p.now().UnixMilli(),
	}
	if writeErr != nil {
		ev.Error = writeErr.Error()
	}
	p.publish(p.topic("command"), ev)
}

// PublishLine reports a line received from the device.
func (p *Publisher) PublishLine(line string) {
	p.publish(p.topic("line"), LineEvent{
		ID:        uuid.NewString(),
		Line:      line,
		Timestamp: p.now().UnixMilli(),
	})
}

func (p *Publisher) publish(topic string, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		logger.Warn("MQTT: could not encode event for %s: %v", topic, err)
		return
	}
	tok := p.inner.Publish(topic, 0, false, body)
	go func() {
		if !tok.WaitTimeout(publishTimeout) {
			logger.Warn("MQTT: publish to %s timed out", topic)
			return
		}
		if err := tok.Error(); err != nil {
			logger.Warn("MQTT: publish to %s failed: %v", topic, err)
		}
	}()
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.inner.Disconnect(250)
}
