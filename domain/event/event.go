// Package event defines the delivery events pushed over live connections.
// Events are transient. They exist on the wire and in in-memory dispatch,
// never in storage.
package event

import (
	"time"

	"github.com/google/uuid"

	"dm-lab/domain"
)

// DeliveryEvent is the tagged union fanned out to connections.
// Name is the wire-level event name the client switches on.
type DeliveryEvent interface {
	Name() string
}

type NewMessage struct {
	Message domain.Message
}

func (NewMessage) Name() string { return "newMessage" }

type MessageDeleted struct {
	MessageID  uuid.UUID `json:"messageId"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
}

func (MessageDeleted) Name() string { return "messageDeleted" }

type MessagesCleared struct {
	SenderID     string `json:"senderId"`
	ReceiverID   string `json:"receiverId"`
	DeletedCount int    `json:"deletedCount"`
}

func (MessagesCleared) Name() string { return "messagesCleared" }

// OnlineRoster is the full snapshot broadcast after every connect
// and disconnect so late joiners converge immediately.
type OnlineRoster struct {
	UserIDs []string
}

func (OnlineRoster) Name() string { return "getOnlineUsers" }

type UserOnline struct {
	UserID string `json:"userId"`
}

func (UserOnline) Name() string { return "userOnline" }

type UserOffline struct {
	UserID     string    `json:"userId"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

func (UserOffline) Name() string { return "userOffline" }

type PresenceUpdated struct {
	UserID     string        `json:"userId"`
	Status     domain.Status `json:"status"`
	LastSeenAt time.Time     `json:"lastSeenAt"`
}

func (PresenceUpdated) Name() string { return "userPresenceUpdate" }

// UserTyping is relayed to the peer only, never persisted.
type UserTyping struct {
	SenderID string `json:"senderId"`
	IsTyping bool   `json:"isTyping"`
}

func (UserTyping) Name() string { return "userTyping" }
