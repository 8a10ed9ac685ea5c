package serial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"serial-led-bridge/internal/events"
	"serial-led-bridge/internal/logger"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

var (
	ErrPortNotOpen       = errors.New("serial port is not open")
	ErrPortClosed        = errors.New("serial port is closed")
	ErrNoPortConfigured  = errors.New("no serial port configured")
	errReaderStopTimeout = errors.New("timed out waiting for the line reader to stop")
)

// readerStopTimeout bounds how long Close waits for the reader goroutine.
const readerStopTimeout = 2 * time.Second

// State is the lifecycle state of the serial connection.
type State int

const (
	StateUnopened State = iota
	StateOpen
	StateError
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateOpen:
		return "open"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Port is the part of a serial port handle the manager needs.
type Port interface {
	io.ReadWriteCloser
}

// Opener opens a serial port. Tests substitute a fake peripheral here.
type Opener func(name string, mode *serial.Mode) (Port, error)

// OpenSystemPort opens a real serial device.
func OpenSystemPort(name string, mode *serial.Mode) (Port, error) {
	return serial.Open(name, mode)
}

// Options configures a Manager.
type Options struct {
	PortName string
	BaudRate int
	Opener   Opener             // defaults to OpenSystemPort
	OnLine   func(line string) // called for every line received from the device
}

// Status is a snapshot of the connection.
type Status struct {
	Port      string `json:"port"`
	BaudRate  int    `json:"baudRate"`
	State     string `json:"state"`
	Open      bool   `json:"open"`
	LastError string `json:"lastError,omitempty"`
}

// Manager owns the single serial connection to the peripheral.
type Manager struct {
	portName string
	baudRate int
	open     Opener
	onLine   func(string)

	mu         sync.RWMutex
	port       Port
	state      State
	lastErr    error
	readerDone chan struct{}
}

func NewManager(opts Options) *Manager {
	open := opts.Opener
	if open == nil {
		open = OpenSystemPort
	}
	return &Manager{
		portName: opts.PortName,
		baudRate: opts.BaudRate,
		open:     open,
		onLine:   opts.OnLine,
		state:    StateUnopened,
	}
}

// Open opens the configured port and starts the line reader. A failure leaves
// the manager in degraded mode; the caller decides whether to carry on.
func (m *Manager) Open() error {
	if m.portName == "" {
		logger.Warn("No serial port configured. The bridge runs without a device.")
		logAvailablePorts()
		return ErrNoPortConfigured
	}

	m.mu.Lock()
	if m.state == StateOpen {
		m.mu.Unlock()
		return nil
	}
	if m.state == StateClosed {
		m.mu.Unlock()
		return ErrPortClosed
	}
	m.mu.Unlock()

	logger.Info("Attempting to open serial port %s at %d baud...", m.portName, m.baudRate)
	p, err := m.open(m.portName, &serial.Mode{BaudRate: m.baudRate})
	if err != nil {
		err = fmt.Errorf("failed to open port %s: %w", m.portName, err)
		m.mu.Lock()
		m.state = StateError
		m.lastErr = err
		m.mu.Unlock()
		logger.Error("Could not open serial port %s. Is the device connected and is the port correct? %v", m.portName, err)
		logAvailablePorts()
		return err
	}

	done := make(chan struct{})
	m.mu.Lock()
	m.port = p
	m.state = StateOpen
	m.lastErr = nil
	m.readerDone = done
	m.mu.Unlock()

	logger.Info("Serial port %s opened.", m.portName)
	events.Notify(events.Connected)
	go m.readLoop(p, done)
	return nil
}

// IsOpen reports whether the connection is currently usable.
func (m *Manager) IsOpen() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateOpen
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

func (m *Manager) PortName() string { return m.portName }

func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Status{
		Port:     m.portName,
		BaudRate: m.baudRate,
		State:    m.state.String(),
		Open:     m.state == StateOpen,
	}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	return s
}

// WriteAsync writes command followed by a newline on its own goroutine. The
// returned channel receives exactly one value: nil on success or the error.
// Writes are not queued or serialized against each other.
func (m *Manager) WriteAsync(command string) <-chan error {
	done := make(chan error, 1)

	m.mu.RLock()
	p, state := m.port, m.state
	m.mu.RUnlock()
	if state != StateOpen || p == nil {
		done <- ErrPortNotOpen
		return done
	}

	go func() {
		data := []byte(command + "\n")
		n, err := p.Write(data)
		if err == nil && n < len(data) {
			err = io.ErrShortWrite
		}
		if err != nil {
			err = fmt.Errorf("failed to write to serial port: %w", err)
			m.fail(p, err)
		}
		done <- err
	}()
	return done
}

// Write writes command and waits for the outcome. Cancelling ctx abandons the
// wait; the write itself cannot be interrupted.
func (m *Manager) Write(ctx context.Context, command string) error {
	select {
	case err := <-m.WriteAsync(command):
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the port if it is open. It is safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	p, done := m.port, m.readerDone
	wasOpen := m.state == StateOpen
	m.port = nil
	m.readerDone = nil
	m.state = StateClosed
	m.mu.Unlock()

	if !wasOpen || p == nil {
		return nil
	}

	err := p.Close()
	events.Notify(events.Disconnected)
	if done != nil {
		select {
		case <-done:
		case <-time.After(readerStopTimeout):
			logger.Warn("Serial port %s: %v", m.portName, errReaderStopTimeout)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to close port %s: %w", m.portName, err)
	}
	logger.Info("Serial port %s closed.", m.portName)
	return nil
}

// fail moves an open connection into the error state and releases the handle.
// It is a no-op when p is no longer the active port.
func (m *Manager) fail(p Port, err error) {
	m.mu.Lock()
	if m.port != p || m.state != StateOpen {
		m.mu.Unlock()
		return
	}
	m.port = nil
	m.state = StateError
	m.lastErr = err
	m.mu.Unlock()

	logger.Error("Error on serial port %s: %v. Marking port as disconnected.", m.portName, err)
	p.Close()
	events.Notify(events.Disconnected)
}

func (m *Manager) readLoop(p Port, done chan struct{}) {
	defer close(done)
	err := ReadLines(p, func(line string) {
		logger.Info("Device says: %s", line)
		if m.onLine != nil {
			m.onLine(line)
		}
	})
	if err == nil {
		err = io.EOF
	}
	m.fail(p, fmt.Errorf("failed to read from serial port: %w", err))
}

// PortInfo describes a serial port found on the system.
type PortInfo struct {
	Name         string `json:"name"`
	IsUSB        bool   `json:"isUsb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serialNumber,omitempty"`
	Product      string `json:"product,omitempty"`
}

// ListPorts enumerates the serial ports of the system.
func ListPorts() ([]PortInfo, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	infos := make([]PortInfo, 0, len(ports))
	for _, p := range ports {
		infos = append(infos, PortInfo{
			Name:         p.Name,
			IsUSB:        p.IsUSB,
			VID:          p.VID,
			PID:          p.PID,
			SerialNumber: p.SerialNumber,
			Product:      p.Product,
		})
	}
	return infos, nil
}

func logAvailablePorts() {
	ports, err := ListPorts()
	if err != nil {
		logger.Warn("%v", err)
		return
	}
	if len(ports) == 0 {
		logger.Warn("No serial ports found on the system.")
		return
	}
	for _, p := range ports {
		if p.IsUSB {
			logger.Info("Available port: %s (USB VID: %s, PID: %s, %s)", p.Name, p.VID, p.PID, p.Product)
		} else {
			logger.Info("Available port: %s", p.Name)
		}
	}
}
