package journal

import (
	"context"
	"testing"
	"time"

	"github.com/mahaj/duo-relay/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRejectsUnknownKind(t *testing.T) {
	_, err := Decode([]byte(`{"kind":"typing","message_id":"m1"}`))
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)

	_, err = Encode(model.Record{Kind: "typing"})
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestEncodeDecode(t *testing.T) {
	rec := model.Record{
		Kind:           model.RecordStatus,
		ConversationID: model.ConversationID("bob", "alice"),
		MessageID:      "m1",
		Status:         model.StatusRead,
		Timestamp:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	value, err := Encode(rec)
	require.NoError(t, err)

	got, err := Decode(value)
	require.NoError(t, err)
	assert.Equal(t, "dm:alice:bob", got.ConversationID)
	assert.Equal(t, rec.Status, got.Status)
	assert.True(t, rec.Timestamp.Equal(got.Timestamp))
}

func TestNoop(t *testing.T) {
	var p Publisher = Noop{}
	assert.NoError(t, p.Publish(context.Background(), model.Record{Kind: model.RecordMessage}))
	assert.NoError(t, p.Close())
}
