package handlers

import (
	"encoding/json"
	"net/http"

	"serial-led-bridge/internal/logger"
	"serial-led-bridge/internal/serial"
)

// StatusSource reports the state of the serial connection.
type StatusSource interface {
	Status() serial.Status
}

// StatusResponse defines the structure of the GET /api/status response.
type StatusResponse struct {
	serial.Status
	Version string `json:"version"`
}

// HandleStatus returns the serial connection status and the bridge version.
func HandleStatus(src StatusSource, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := StatusResponse{
			Status:  src.Status(),
			Version: version,
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		if err := json.NewEncoder(w).Encode(response); err != nil {
			logger.Warn("Failed to encode status response: %v", err)
		}
	}
}
