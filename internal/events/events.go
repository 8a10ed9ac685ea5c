// Package events carries serial connection status changes to interested
// listeners such as the system tray.
package events

// ComPortStatus is the connection status reported by the serial manager.
type ComPortStatus int

const (
	Disconnected ComPortStatus = iota
	Connected
)

func (s ComPortStatus) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// ComPortStatusChan receives status changes. Sends never block; when nobody
// is listening and the buffer is full the update is dropped.
var ComPortStatusChan = make(chan ComPortStatus, 8)

// Notify publishes a status change without blocking the caller.
func Notify(status ComPortStatus) {
	select {
	case ComPortStatusChan <- status:
	default:
	}
}

// StartListener runs fn for each status change on a background goroutine.
func StartListener(fn func(ComPortStatus)) {
	go func() {
		for status := range ComPortStatusChan {
			fn(status)
		}
	}()
}
