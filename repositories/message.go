//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"dm-lab/domain"
	"dm-lab/errors"
)

type IMessageRepository interface {
	StoreMessage(ctx context.Context, msg domain.Message) error
	GetBetween(ctx context.Context, userA, userB string, since *time.Time, limit int) ([]domain.Message, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Message, error)
	DeleteByID(ctx context.Context, id uuid.UUID) error
	DeleteBySenderReceiver(ctx context.Context, senderID, receiverID string) (int, error)
}

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, log: log}
}

// diskMessage is the stored shape. Direction lives in the document while
// the key only carries the unordered pair, so both directions of a
// conversation share one prefix.
type diskMessage struct {
	ID         uuid.UUID `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Text       string    `json:"text,omitempty"`
	ImageURL   string    `json:"image_url,omitempty"`
	At         int64     `json:"at"`
}

// pairKey orders the two participant IDs lexicographically so that
// A->B and B->A messages interleave under a single prefix.
func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// messageKey formats "msg:{pair}:{timestamp_padded}:{uuid}":
//  1. 19-digit zero padding keeps chronological and lexicographical order aligned.
//  2. The UUID disambiguates two messages landing on the same nanosecond.
func messageKey(msg domain.Message) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s",
		pairKey(msg.SenderID, msg.ReceiverID),
		msg.CreatedAt.UnixNano(),
		msg.ID,
	))
}

func idKey(id uuid.UUID) []byte {
	return []byte("msgid:" + id.String())
}

// StoreMessage persists a message plus a secondary id index used by
// delete-by-id.
func (m MessageRepository) StoreMessage(ctx context.Context, msg domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(fromDomain(msg))
	if err != nil {
		return err
	}
	key := messageKey(msg)
	return m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(idKey(msg.ID), key)
	})
}

// GetBetween retrieves the conversation between two users in ascending
// createdAt order. With a cursor only messages strictly newer than it are
// returned. The limit caps the scan, zero means no cap beyond the caller's.
func (m MessageRepository) GetBetween(ctx context.Context, userA, userB string, since *time.Time, limit int) ([]domain.Message, error) {
	prefix := []byte("msg:" + pairKey(userA, userB) + ":")

	var raw [][]byte
	err := m.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		seekKey := prefix
		if since != nil {
			// Strictly newer: seek one nanosecond past the cursor
			seekKey = append(append([]byte{}, prefix...),
				[]byte(fmt.Sprintf("%019d", since.UnixNano()+1))...)
		}

		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if limit > 0 && len(raw) == limit {
				m.log.Debug(fmt.Sprintf("Maximum of %d messages reached", limit))
				break
			}
			if err := it.Item().Value(func(value []byte) error {
				raw = append(raw, append([]byte{}, value...))
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	messages := make([]domain.Message, 0, len(raw))
	for _, b := range raw {
		var d diskMessage
		if err := json.Unmarshal(b, &d); err != nil {
			return nil, err
		}
		messages = append(messages, toDomain(d))
	}
	return messages, nil
}

func (m MessageRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	var d diskMessage
	err := m.db.View(func(txn *badger.Txn) error {
		key, err := resolveID(txn, id)
		if err != nil {
			return err
		}
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &d)
		})
	})
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return domain.Message{}, errors.ErrNotFound
		}
		return domain.Message{}, err
	}
	return toDomain(d), nil
}

func (m MessageRepository) DeleteByID(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := m.db.Update(func(txn *badger.Txn) error {
		key, err := resolveID(txn, id)
		if err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		return txn.Delete(idKey(id))
	})
	if err == badger.ErrKeyNotFound {
		return errors.ErrNotFound
	}
	return err
}

// DeleteBySenderReceiver removes every message the sender addressed to the
// receiver and reports the count. The other direction is untouched.
func (m MessageRepository) DeleteBySenderReceiver(ctx context.Context, senderID, receiverID string) (int, error) {
	prefix := []byte("msg:" + pairKey(senderID, receiverID) + ":")

	count := 0
	err := m.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		type victim struct {
			key []byte
			id  uuid.UUID
		}
		var victims []victim

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			var d diskMessage
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &d)
			}); err != nil {
				return err
			}
			if d.SenderID == senderID && d.ReceiverID == receiverID {
				victims = append(victims, victim{key: item.KeyCopy(nil), id: d.ID})
			}
		}

		for _, v := range victims {
			if err := txn.Delete(v.key); err != nil {
				return err
			}
			if err := txn.Delete(idKey(v.id)); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// resolveID follows the secondary index to the primary key.
func resolveID(txn *badger.Txn, id uuid.UUID) ([]byte, error) {
	item, err := txn.Get(idKey(id))
	if err != nil {
		return nil, err
	}
	var key []byte
	if err := item.Value(func(val []byte) error {
		key = append([]byte{}, val...)
		return nil
	}); err != nil {
		return nil, err
	}
	return key, nil
}

func fromDomain(msg domain.Message) diskMessage {
	return diskMessage{
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Text:       msg.Text,
		ImageURL:   msg.ImageURL,
		At:         msg.CreatedAt.UnixNano(),
	}
}

func toDomain(d diskMessage) domain.Message {
	return domain.Message{
		ID:         d.ID,
		SenderID:   d.SenderID,
		ReceiverID: d.ReceiverID,
		Text:       d.Text,
		ImageURL:   d.ImageURL,
		CreatedAt:  time.Unix(0, d.At).UTC(),
	}
}

// SplitKey exposes the key layout to the inspector tool.
func SplitKey(key string) (pair, timestamp, id string, ok bool) {
	parts := strings.SplitN(key, ":", 4)
	if len(parts) != 4 || parts[0] != "msg" {
		return "", "", "", false
	}
	return parts[1], parts[2], parts[3], true
}
