package domain

import (
	"time"

	"github.com/google/uuid"
)

// ConnectionID identifies a single live transport connection. A user with
// several devices owns several connection IDs at once.
type ConnectionID string

func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.NewString())
}

type Connection struct {
	ID          ConnectionID
	UserID      string
	ConnectedAt time.Time
}
