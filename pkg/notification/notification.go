package notification

import (
	"time"
)

// Sender delivers a run summary to an external channel. Delivery
// failures are logged by callers, never fatal to the run.
type Sender interface {
	CanSend() bool
	Send(title string, description string, runTime time.Duration, fields []Field) error
	Name() string
}

// Field is one labelled counter in the summary payload.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}
