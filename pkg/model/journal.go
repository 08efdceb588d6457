package model

import (
	"sort"
	"strings"
	"time"
)

type RecordKind string

const (
	RecordMessage RecordKind = "message"
	RecordStatus  RecordKind = "status"
)

// Record is one entry of the relay journal. Message records carry the
// routing outcome, status records carry an acknowledgement.
type Record struct {
	Kind           RecordKind     `json:"kind"`
	ConversationID string         `json:"conversation_id"`
	MessageID      string         `json:"message_id"`
	Sender         string         `json:"sender,omitempty"`
	Recipient      string         `json:"recipient,omitempty"`
	Content        string         `json:"content,omitempty"`
	Route          string         `json:"route,omitempty"`
	Status         DeliveryStatus `json:"status"`
	Timestamp      time.Time      `json:"timestamp"`
}

// ConversationID returns the stable key of the conversation between two
// identities, independent of argument order.
func ConversationID(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return "dm:" + strings.Join(pair, ":")
}
