package extract

import (
	"time"
)

// Result is an accepted fragment as handed to the sinks. Fragment is the raw
// text; Payload is nil when the fragment did not parse, in which case
// ParseError says why and presentation keeps showing the previous payload.
type Result struct {
	SessionID   string    `json:"session_id"`
	URL         string    `json:"url"`
	Mode        string    `json:"mode"`
	Source      string    `json:"source"`
	Container   string    `json:"container,omitempty"`
	Fragment    string    `json:"fragment"`
	Fingerprint string    `json:"fingerprint"`
	Payload     *Payload  `json:"payload,omitempty"`
	ParseError  string    `json:"parse_error,omitempty"`
	AcceptedAt  time.Time `json:"accepted_at"`
}

// Parsed reports whether the result carries a structured payload
func (r *Result) Parsed() bool {
	return r.Payload != nil
}
