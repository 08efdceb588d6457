package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func ids(msgs []Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestQueueDrainKeepsEnqueueOrder(t *testing.T) {
	q := NewQueue()
	for _, id := range []string{"m1", "m2", "m3"} {
		q.Enqueue("bob", Message{ID: id, Sender: "alice"})
	}
	q.Enqueue("alice", Message{ID: "x1", Sender: "bob"})

	assert.Equal(t, 3, q.Len("bob"))
	assert.Equal(t, 4, q.Queued())
	assert.Equal(t, []string{"m1", "m2", "m3"}, ids(q.Drain("bob")))
	assert.Empty(t, q.Drain("bob"), "drain removes everything")
	assert.Equal(t, 1, q.Len("alice"))
}

func TestQueueDrainUnknownRecipient(t *testing.T) {
	q := NewQueue()
	assert.Empty(t, q.Drain("nobody"))
}

func TestQueueRedeemProvisional(t *testing.T) {
	q := NewQueue()
	q.HoldProvisional("alice", Message{ID: "a1", Sender: "alice"})
	q.HoldProvisional("alice", Message{ID: "a2", Sender: "alice"})

	// alice coming back alone must not redeem her own holds
	assert.Empty(t, q.RedeemProvisional("alice"))
	assert.Equal(t, 2, q.Held())

	assert.Equal(t, []string{"a1", "a2"}, ids(q.RedeemProvisional("bob")))
	assert.Zero(t, q.Held())
	assert.Empty(t, q.RedeemProvisional("bob"))
}

func TestQueueRedeemAcrossSenders(t *testing.T) {
	q := NewQueue()
	q.HoldProvisional("carol", Message{ID: "c1"})
	q.HoldProvisional("alice", Message{ID: "a1"})
	q.HoldProvisional("carol", Message{ID: "c2"})
	q.HoldProvisional("bob", Message{ID: "b1"})

	got := q.RedeemProvisional("bob")
	assert.Equal(t, []string{"c1", "c2", "a1"}, ids(got))
	assert.Equal(t, 1, q.Held())

	assert.Equal(t, []string{"b1"}, ids(q.RedeemProvisional("alice")))
}

func TestQueueRequeueGoesFirst(t *testing.T) {
	q := NewQueue()
	q.Enqueue("bob", Message{ID: "m3"})
	q.Requeue("bob", []Message{{ID: "m1"}, {ID: "m2"}})
	q.Requeue("bob", nil)

	assert.Equal(t, []string{"m1", "m2", "m3"}, ids(q.Drain("bob")))
}
