package relay

import (
	"sort"

	"github.com/mahaj/duo-relay/pkg/model"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// MaxParticipants is the number of distinct identities a relay accepts over
// its lifetime.
const MaxParticipants = 2

// Presence maps identities to their live connection and remembers every
// identity that ever logged in.
type Presence struct {
	live   map[string]Conn
	byConn map[Conn]string
	seen   []string
	log    logrus.FieldLogger
}

func NewPresence(log logrus.FieldLogger) *Presence {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Presence{
		live:   make(map[string]Conn),
		byConn: make(map[Conn]string),
		log:    log,
	}
}

// Connect binds identity to conn. A newer login for the same identity
// replaces the previous binding. A third distinct identity is refused.
func (p *Presence) Connect(identity string, conn Conn) error {
	if identity == "" {
		return ErrEmptyIdentity
	}
	if !p.HasSeen(identity) && len(p.seen) >= MaxParticipants {
		return ErrConversationFull
	}

	// the same socket logging in under another name drops its old identity first
	if prev, ok := p.byConn[conn]; ok && prev != identity {
		p.Disconnect(conn)
	}
	if old, ok := p.live[identity]; ok && old != conn {
		delete(p.byConn, old)
		p.log.WithField("username", identity).Info("Login replaced previous connection")
	}

	p.live[identity] = conn
	p.byConn[conn] = identity
	if !p.HasSeen(identity) {
		p.seen = append(p.seen, identity)
	}

	p.Broadcast(conn, model.EventUserJoined, model.Peer{Username: identity})
	p.log.WithFields(logrus.Fields{
		"username": identity,
		"online":   len(p.live),
	}).Info("User online")
	return nil
}

// Disconnect unbinds conn. It returns the identity that went offline, or
// false when conn was not bound (never logged in, or superseded).
func (p *Presence) Disconnect(conn Conn) (string, bool) {
	identity, ok := p.byConn[conn]
	if !ok {
		return "", false
	}
	delete(p.byConn, conn)
	delete(p.live, identity)

	p.Broadcast(conn, model.EventUserLeft, model.Peer{Username: identity})
	p.log.WithFields(logrus.Fields{
		"username": identity,
		"online":   len(p.live),
	}).Info("User offline")
	return identity, true
}

// Broadcast sends an event to every live connection except from.
func (p *Presence) Broadcast(from Conn, event model.EventType, data any) {
	for _, identity := range p.Online() {
		conn := p.live[identity]
		if conn == from {
			continue
		}
		emit(p.log, conn, event, data)
	}
}

func (p *Presence) Identity(conn Conn) (string, bool) {
	identity, ok := p.byConn[conn]
	return identity, ok
}

func (p *Presence) ResolveConnection(identity string) (Conn, bool) {
	conn, ok := p.live[identity]
	return conn, ok
}

// ResolveCounterpart returns the other identity ever seen, live or not.
func (p *Presence) ResolveCounterpart(identity string) (string, bool) {
	return lo.Find(p.seen, func(s string) bool { return s != identity })
}

func (p *Presence) HasSeen(identity string) bool {
	return lo.Contains(p.seen, identity)
}

// Online returns the live identities, sorted.
func (p *Presence) Online() []string {
	online := lo.Keys(p.live)
	sort.Strings(online)
	return online
}

// Seen returns every identity ever connected, in first-login order.
func (p *Presence) Seen() []string {
	return append([]string(nil), p.seen...)
}
