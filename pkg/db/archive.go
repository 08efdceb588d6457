package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/gocql/gocql"
	"github.com/mahaj/duo-relay/pkg/model"
)

type Table struct {
	Name string
	DDL  string
}

// Tables holds the archive schema, in creation order.
var Tables = []Table{
	{"messages", `CREATE TABLE IF NOT EXISTS messages (
		conversation_id text,
		timestamp timestamp,
		id text,
		sender text,
		recipient text,
		content text,
		route text,
		PRIMARY KEY (conversation_id, timestamp, id)
	) WITH CLUSTERING ORDER BY (timestamp DESC, id DESC)`},
	{"message_status", `CREATE TABLE IF NOT EXISTS message_status (
		message_id text PRIMARY KEY,
		conversation_id text,
		delivered boolean,
		read boolean,
		updated timestamp
	)`},
}

// ArchivedMessage is a message as read back from the archive.
type ArchivedMessage struct {
	model.Message
	Recipient string `json:"recipient"`
}

// Archive stores the journal in Scylla. Archived data is history only; the
// relay never reads it.
type Archive struct {
	session *Session
}

func NewArchive(session *Session) *Archive {
	return &Archive{session: session}
}

func (a *Archive) EnsureSchema(ctx context.Context) error {
	for _, t := range Tables {
		if err := a.session.Query(t.DDL).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// Save persists one journal record.
func (a *Archive) Save(ctx context.Context, rec model.Record) error {
	switch rec.Kind {
	case model.RecordMessage:
		return a.saveMessage(ctx, rec)
	case model.RecordStatus:
		return a.saveStatus(ctx, rec)
	default:
		return fmt.Errorf("unsupported record kind %q", rec.Kind)
	}
}

func (a *Archive) saveMessage(ctx context.Context, rec model.Record) error {
	q := `INSERT INTO messages (conversation_id, timestamp, id, sender, recipient, content, route) VALUES (?, ?, ?, ?, ?, ?, ?)`
	err := a.session.Query(q, rec.ConversationID, rec.Timestamp, rec.MessageID, rec.Sender, rec.Recipient, rec.Content, rec.Route).
		WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("save message %s: %w", rec.MessageID, err)
	}
	return nil
}

// saveStatus only ever sets flags, so replays and reordering cannot regress
// a message.
func (a *Archive) saveStatus(ctx context.Context, rec model.Record) error {
	q := `UPDATE message_status SET delivered = true, conversation_id = ?, updated = ? WHERE message_id = ?`
	if rec.Status == model.StatusRead {
		q = `UPDATE message_status SET delivered = true, read = true, conversation_id = ?, updated = ? WHERE message_id = ?`
	}
	if err := a.session.Query(q, rec.ConversationID, rec.Timestamp, rec.MessageID).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("save status of %s: %w", rec.MessageID, err)
	}
	return nil
}

// History returns up to limit messages of a conversation, newest first.
func (a *Archive) History(ctx context.Context, conversationID string, limit int) ([]ArchivedMessage, error) {
	iter := a.session.Query(
		`SELECT id, sender, recipient, content, timestamp FROM messages WHERE conversation_id = ? LIMIT ?`,
		conversationID, limit,
	).WithContext(ctx).Iter()

	var out []ArchivedMessage
	var m ArchivedMessage
	for iter.Scan(&m.ID, &m.Username, &m.Recipient, &m.Content, &m.Timestamp) {
		m.Status = model.StatusSent
		out = append(out, m)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("read history of %s: %w", conversationID, err)
	}

	for i := range out {
		var delivered, read bool
		err := a.session.Query(`SELECT delivered, read FROM message_status WHERE message_id = ?`, out[i].ID).
			WithContext(ctx).Scan(&delivered, &read)
		if errors.Is(err, gocql.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read status of %s: %w", out[i].ID, err)
		}
		switch {
		case read:
			out[i].Status = model.StatusRead
		case delivered:
			out[i].Status = model.StatusDelivered
		}
	}
	return out, nil
}
