package protocol

import "time"

// QuoteEvent is broadcast on the bus when an invocation finishes.
type QuoteEvent struct {
	InvocationID string    `json:"invocation_id"`
	Text         string    `json:"text"`
	Model        string    `json:"model,omitempty"`
	AudioURL     string    `json:"audio_url,omitempty"`
	Played       bool      `json:"played"`
	Backend      string    `json:"backend,omitempty"`
	Error        string    `json:"error,omitempty"`
	Attempts     int       `json:"attempts"`
	Timestamp    time.Time `json:"timestamp"`
}

const (
	SubjectSpoken = "spoken"
	SubjectFailed = "failed"
)

// Subject joins the configured prefix with an event name.
func Subject(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
