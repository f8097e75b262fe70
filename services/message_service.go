// Package services holds the application operations sitting between the
// transport and the runtime/storage layers.
package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/abadojack/whatlanggo"
	"github.com/google/uuid"

	"dm-lab/blobstore"
	"dm-lab/contract"
	"dm-lab/domain"
	"dm-lab/domain/event"
	"dm-lab/errors"
	"dm-lab/moderation"
	"dm-lab/observability"
	"dm-lab/repositories"
)

// Content is what a sender submits: text, an inline base64 image, or both.
type Content struct {
	Text  string `json:"text"`
	Image string `json:"image"`
}

// MessageService accepts, persists and fans out direct messages. A message
// is acknowledged only after it is durable; fan-out then happens in the
// background so the sender never waits on slow receivers.
type MessageService struct {
	log          *slog.Logger
	repository   repositories.IMessageRepository
	bus          contract.IEventBus
	blobs        blobstore.IBlobStore
	moderator    *moderation.Moderator
	monitoring   *observability.Monitoring
	storeTimeout time.Duration
	catchUpLimit int
}

func NewMessageService(
	log *slog.Logger,
	repository repositories.IMessageRepository,
	bus contract.IEventBus,
	blobs blobstore.IBlobStore,
	moderator *moderation.Moderator,
	monitoring *observability.Monitoring,
	storeTimeout time.Duration,
	catchUpLimit int,
) *MessageService {
	return &MessageService{
		log:          log,
		repository:   repository,
		bus:          bus,
		blobs:        blobs,
		moderator:    moderator,
		monitoring:   monitoring,
		storeTimeout: storeTimeout,
		catchUpLimit: catchUpLimit,
	}
}

// Send validates, censors, uploads media, persists, then fans out to both
// parties. Any failure before persistence aborts the whole operation, so a
// message that was never stored is never announced.
func (s *MessageService) Send(ctx context.Context, senderID, receiverID string, content Content) (domain.Message, error) {
	if content.Text == "" && content.Image == "" {
		return domain.Message{}, errors.ErrEmptyMessage
	}

	text := content.Text
	if text != "" {
		censored, found := s.moderator.Censor(text)
		if len(found) > 0 {
			info := whatlanggo.Detect(text)
			s.log.Info("Message censored",
				"sender", senderID,
				"words", len(found),
				"lang", info.Lang.String())
			text = censored
		}
	}

	var imageURL string
	if content.Image != "" {
		url, err := s.blobs.UploadBase64(ctx, content.Image)
		if err != nil {
			s.log.Error("Image upload failed", "error", err)
			return domain.Message{}, errors.ErrMediaUploadFailed
		}
		imageURL = url
	}

	msg := domain.Message{
		ID:         uuid.New(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		ImageURL:   imageURL,
		CreatedAt:  time.Now().UTC(),
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := s.repository.StoreMessage(storeCtx, msg); err != nil {
		s.log.Error("Message persistence failed", "error", err)
		return domain.Message{}, errors.ErrPersistenceFailed
	}
	s.monitoring.IncrMessagesSent()

	// Fan-out to the receiver's devices plus the sender's other devices.
	// The sender's originating device also gets a copy; the client-side
	// merge absorbs it.
	go s.fanOutToPair(event.NewMessage{Message: msg}, senderID, receiverID)

	return msg, nil
}

// Delete removes one message. Only the sender may delete, and nothing is
// announced unless the delete actually happened.
func (s *MessageService) Delete(ctx context.Context, requesterID string, messageID uuid.UUID) error {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	msg, err := s.repository.GetByID(storeCtx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != requesterID {
		return errors.ErrForbidden
	}
	if err := s.repository.DeleteByID(storeCtx, messageID); err != nil {
		return err
	}
	s.monitoring.IncrMessagesDeleted()

	go s.fanOutToPair(event.MessageDeleted{
		MessageID:  messageID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
	}, msg.SenderID, msg.ReceiverID)

	return nil
}

// ClearForPair removes every message the requester sent to the other user.
// Messages flowing the other way are untouched.
func (s *MessageService) ClearForPair(ctx context.Context, requesterID, otherID string) (int, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	count, err := s.repository.DeleteBySenderReceiver(storeCtx, requesterID, otherID)
	if err != nil {
		return 0, err
	}

	go s.fanOutToPair(event.MessagesCleared{
		SenderID:     requesterID,
		ReceiverID:   otherID,
		DeletedCount: count,
	}, requesterID, otherID)

	return count, nil
}

// CatchUp returns the conversation between two users in ascending order.
// With a cursor only messages strictly newer than it come back, which is
// what the polling fallback calls every cycle.
func (s *MessageService) CatchUp(ctx context.Context, userID, otherID string, since *time.Time) ([]domain.Message, error) {
	s.monitoring.IncrCatchUpQueries()

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	messages, err := s.repository.GetBetween(storeCtx, userID, otherID, since, s.catchUpLimit)
	if err != nil {
		s.log.Error("Catch-up query failed", "error", err)
		return nil, errors.ErrPersistenceFailed
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	return messages, nil
}

// Typing relays a typing indicator to the peer only. Nothing is stored.
func (s *MessageService) Typing(ctx context.Context, senderID, receiverID string, isTyping bool) {
	s.bus.SendToUser(ctx, receiverID, event.UserTyping{SenderID: senderID, IsTyping: isTyping})
}

// fanOutToPair runs detached from the request. Delivery is best-effort and
// bounded by the bus timeout per connection.
func (s *MessageService) fanOutToPair(e event.DeliveryEvent, senderID, receiverID string) {
	ctx := context.Background()
	s.bus.SendToUser(ctx, receiverID, e)
	if senderID != receiverID {
		s.bus.SendToUser(ctx, senderID, e)
	}
}
