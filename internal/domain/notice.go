package domain

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notice is a user-facing report of a non-fatal (or join-fatal) failure.
type Notice struct {
	Severity Severity    `json:"severity"`
	Source   TrackSource `json:"source,omitempty"`
	Message  string      `json:"message"`
}
