// Package reconcile merges the push stream and the pull snapshot into one
// conversation view. The two sources overlap on purpose: the same message
// may arrive over the socket and again in a catch-up query, and the
// timeline must absorb the duplicate.
package reconcile

import (
	"context"
	"sync"
	"time"

	"dm-lab/domain"
	"dm-lab/domain/event"
)

// nearDuplicateWindow bounds the clock skew under which two copies of the
// same logical message may disagree on createdAt.
const nearDuplicateWindow = 2 * time.Second

// Timeline is an in-memory, ascending-by-createdAt conversation view.
// It implements contract.EventSink so a client can point both its socket
// and its polling loop at the same instance.
type Timeline struct {
	mu       sync.Mutex
	messages []domain.Message
}

func NewTimeline() *Timeline {
	return &Timeline{}
}

// Merge inserts a message unless the timeline already holds it. Two
// messages are the same when their IDs match, or when text, sender and
// near-identical timestamps match, which covers a copy that lost its ID
// crossing a degraded path.
func (t *Timeline) Merge(msg domain.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, existing := range t.messages {
		if t.sameMessage(existing, msg) {
			return false
		}
	}
	t.insert(msg)
	return true
}

// MergeAll merges a catch-up batch and reports how many were new.
func (t *Timeline) MergeAll(msgs []domain.Message) int {
	added := 0
	for _, msg := range msgs {
		if t.Merge(msg) {
			added++
		}
	}
	return added
}

// Consume applies a delivery event to the timeline. Unknown events are
// ignored so the sink survives protocol additions.
func (t *Timeline) Consume(_ context.Context, e event.DeliveryEvent) error {
	switch ev := e.(type) {
	case event.NewMessage:
		t.Merge(ev.Message)
	case event.MessageDeleted:
		t.remove(ev.MessageID.String())
	case event.MessagesCleared:
		t.removeFrom(ev.SenderID, ev.ReceiverID)
	}
	return nil
}

// Messages returns an ascending copy of the current view.
func (t *Timeline) Messages() []domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Latest returns the newest createdAt, the cursor for the next catch-up
// query. The second return is false on an empty timeline.
func (t *Timeline) Latest() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.messages) == 0 {
		return time.Time{}, false
	}
	return t.messages[len(t.messages)-1].CreatedAt, true
}

func (t *Timeline) sameMessage(a, b domain.Message) bool {
	if a.ID == b.ID {
		return true
	}
	if a.Text == "" || a.Text != b.Text || a.SenderID != b.SenderID {
		return false
	}
	delta := a.CreatedAt.Sub(b.CreatedAt)
	if delta < 0 {
		delta = -delta
	}
	return delta < nearDuplicateWindow
}

// insert keeps ascending createdAt order. Catch-up batches arrive sorted
// and live events are near-now, so the scan from the tail is short.
func (t *Timeline) insert(msg domain.Message) {
	i := len(t.messages)
	for i > 0 && t.messages[i-1].CreatedAt.After(msg.CreatedAt) {
		i--
	}
	t.messages = append(t.messages, domain.Message{})
	copy(t.messages[i+1:], t.messages[i:])
	t.messages[i] = msg
}

func (t *Timeline) remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := t.messages[:0]
	for _, m := range t.messages {
		if m.ID.String() != id {
			kept = append(kept, m)
		}
	}
	t.messages = kept
}

func (t *Timeline) removeFrom(senderID, receiverID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := t.messages[:0]
	for _, m := range t.messages {
		if m.SenderID == senderID && m.ReceiverID == receiverID {
			continue
		}
		kept = append(kept, m)
	}
	t.messages = kept
}
