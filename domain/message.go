// Package domain contains core concepts of the messaging system.
// This file defines Message entities and related rules.
// Messages are immutable and validated by the domain.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message represents an immutable direct message between two users.
// Text and ImageURL are both optional but at least one must be present.
type Message struct {
	ID         uuid.UUID `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Text       string    `json:"text,omitempty"`
	ImageURL   string    `json:"image,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// HasContent reports whether the message carries anything deliverable.
func (m Message) HasContent() bool {
	return m.Text != "" || m.ImageURL != ""
}
