package domain

import "time"

// Status is the presence classification of a user.
type Status string

const (
	StatusOnline         Status = "online"
	StatusRecentlyOnline Status = "recently-online"
	StatusOffline        Status = "offline"
)

// PresenceRecord is the answer to a presence query.
type PresenceRecord struct {
	UserID     string    `json:"userId"`
	Status     Status    `json:"status"`
	LastSeenAt time.Time `json:"lastSeenAt,omitempty"`
}

// Classify derives a status for a user with no live connection, based on
// how long ago they were last seen. A zero lastSeen means the user was
// never observed since the process started.
func Classify(lastSeen time.Time, window time.Duration, now time.Time) Status {
	if lastSeen.IsZero() {
		return StatusOffline
	}
	if now.Sub(lastSeen) <= window {
		return StatusRecentlyOnline
	}
	return StatusOffline
}
