package model

import (
	"time"
)

// LocationSample is one coordinate captured by the client. Timesheets keep an
// ordered list of them in location_history and raw device fixes in gps_logs.
type LocationSample struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Accuracy   *float64  `json:"accuracy,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
	Source     string    `json:"source,omitempty"`
}
