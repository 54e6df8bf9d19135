package task

import "time"

// Info is a point-in-time snapshot of one task's observable state. Fields
// are consistent with each other at the instant they were read, not across
// successive snapshots.
type Info struct {
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	PID       int       `json:"pid"`
	Alive     bool      `json:"alive"`
	Command   string    `json:"command"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at"`
	ExitError string    `json:"exit_error,omitempty"`
}
