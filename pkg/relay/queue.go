package relay

import (
	"time"

	"github.com/mahaj/duo-relay/pkg/model"
	"github.com/samber/lo"
)

// Message is a relayed chat message. Its delivery state lives in the Tracker.
type Message struct {
	ID        string
	Sender    string
	Body      string
	CreatedAt time.Time
}

func (m Message) wire(status model.DeliveryStatus, pending bool) model.Message {
	return model.Message{
		ID:        m.ID,
		Username:  m.Sender,
		Content:   m.Body,
		Timestamp: m.CreatedAt,
		Status:    status,
		IsPending: pending,
	}
}

// Queue holds messages for offline recipients, plus provisional holds for
// messages sent before any counterpart existed.
type Queue struct {
	pending map[string][]Message
	holds   map[string][]Message
	// senders in the order they first placed a hold
	holders []string
}

func NewQueue() *Queue {
	return &Queue{
		pending: make(map[string][]Message),
		holds:   make(map[string][]Message),
	}
}

func (q *Queue) Enqueue(recipient string, msg Message) {
	q.pending[recipient] = append(q.pending[recipient], msg)
}

// Drain removes and returns every message queued for recipient, oldest first.
func (q *Queue) Drain(recipient string) []Message {
	msgs := q.pending[recipient]
	delete(q.pending, recipient)
	return msgs
}

// Requeue puts msgs back at the front of recipient's queue, ahead of anything
// enqueued since.
func (q *Queue) Requeue(recipient string, msgs []Message) {
	if len(msgs) == 0 {
		return
	}
	q.pending[recipient] = append(append([]Message(nil), msgs...), q.pending[recipient]...)
}

func (q *Queue) Len(recipient string) int {
	return len(q.pending[recipient])
}

// HoldProvisional stores a message whose recipient is not known yet.
func (q *Queue) HoldProvisional(sender string, msg Message) {
	if _, ok := q.holds[sender]; !ok {
		q.holders = append(q.holders, sender)
	}
	q.holds[sender] = append(q.holds[sender], msg)
}

// RedeemProvisional removes and returns every held message not sent by
// excluding. Holds placed by excluding stay in place.
func (q *Queue) RedeemProvisional(excluding string) []Message {
	var out []Message
	for _, sender := range q.holders {
		if sender == excluding {
			continue
		}
		out = append(out, q.holds[sender]...)
		delete(q.holds, sender)
	}
	q.holders = lo.Filter(q.holders, func(s string, _ int) bool {
		_, ok := q.holds[s]
		return ok
	})
	return out
}

// Held counts provisionally held messages across all senders.
func (q *Queue) Held() int {
	return lo.SumBy(lo.Values(q.holds), func(m []Message) int { return len(m) })
}

// Queued counts messages waiting in every offline queue.
func (q *Queue) Queued() int {
	return lo.SumBy(lo.Values(q.pending), func(m []Message) int { return len(m) })
}
