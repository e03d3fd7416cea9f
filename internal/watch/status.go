package watch

import "time"

// Status is a point-in-time view of the loop, safe to read from any goroutine
type Status struct {
	SessionID     string    `json:"session_id"`
	URL           string    `json:"url"`
	Mode          string    `json:"mode"`
	TickPending   bool      `json:"tick_pending"`
	RetryActive   bool      `json:"retry_active"`
	RetryUntil    time.Time `json:"retry_until"`
	FetchInFlight bool      `json:"fetch_in_flight"`
	Ticks         int64     `json:"ticks"`
	Accepted      int64     `json:"accepted"`
	Navigations   int64     `json:"navigations"`
	LastAccepted  time.Time `json:"last_accepted"`
}
