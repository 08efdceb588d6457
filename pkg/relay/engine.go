// Package relay routes messages between the two participants of a
// conversation: live forwarding, offline queueing with push notification,
// provisional holds, and delivery/read acknowledgements.
//
// An Engine is not safe for concurrent use. All calls must come from one
// event loop; side effects that block (push dispatch) are spawned after the
// state transition has completed.
package relay

import (
	"context"
	"strings"
	"time"

	"github.com/mahaj/duo-relay/pkg/model"
	"github.com/mahaj/duo-relay/pkg/snowflake"
	"github.com/sirupsen/logrus"
)

// Notifier delivers a background notification to an offline identity.
type Notifier interface {
	Dispatch(ctx context.Context, recipient string, payload model.PushPayload) error
}

// TokenIssuer mints the session token returned on login.
type TokenIssuer interface {
	Issue(identity string) (string, error)
}

type IDGenerator interface {
	NewID() string
}

type Route int

const (
	RouteLive Route = iota
	RouteQueued
	RouteHeld
)

func (r Route) String() string {
	switch r {
	case RouteLive:
		return "live"
	case RouteQueued:
		return "queued"
	case RouteHeld:
		return "held"
	default:
		return "unknown"
	}
}

// State is everything the relay knows. It is owned by one Engine.
type State struct {
	Presence *Presence
	Queue    *Queue
	Status   *Tracker
}

func NewState(log logrus.FieldLogger) *State {
	return &State{
		Presence: NewPresence(log),
		Queue:    NewQueue(),
		Status:   NewTracker(),
	}
}

type SendRequest struct {
	ID        string
	Body      string
	CreatedAt time.Time
}

type SendResult struct {
	Message   Message
	Recipient string
	Route     Route
	// Unbound lists identities that went offline while handling the call.
	Unbound []string
}

type LoginResult struct {
	Identity string
	Queued   []Message
	Redeemed []Message
	// Unbound lists identities that went offline while handling the call:
	// the socket's previous name, or the caller itself when its connection
	// refused the replay.
	Unbound []string
}

type Stats struct {
	Online  []string `json:"online"`
	Seen    []string `json:"seen"`
	Queued  int      `json:"queued"`
	Held    int      `json:"held"`
	Tracked int      `json:"tracked"`
}

type Engine struct {
	state    *State
	notifier Notifier
	tokens   TokenIssuer
	ids      IDGenerator
	now      func() time.Time
	spawn    func(func())
	log      logrus.FieldLogger
}

type Option func(*Engine)

func WithNotifier(n Notifier) Option { return func(e *Engine) { e.notifier = n } }

func WithTokenIssuer(t TokenIssuer) Option { return func(e *Engine) { e.tokens = t } }

func WithIDGenerator(g IDGenerator) Option { return func(e *Engine) { e.ids = g } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func WithLogger(log logrus.FieldLogger) Option { return func(e *Engine) { e.log = log } }

// WithSpawner replaces the goroutine used for push dispatch.
func WithSpawner(spawn func(func())) Option { return func(e *Engine) { e.spawn = spawn } }

func New(state *State, opts ...Option) *Engine {
	e := &Engine{
		state: state,
		now:   time.Now,
		spawn: func(f func()) { go f() },
		log:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.ids == nil {
		e.ids = snowflake.MustNode(0)
	}
	return e
}

// Login binds conn to username and replays everything that waited for it.
func (e *Engine) Login(conn Conn, username string) (LoginResult, error) {
	log := e.log.WithField("username", username)
	prev, rebinding := e.state.Presence.Identity(conn)
	if err := e.state.Presence.Connect(username, conn); err != nil {
		log.WithError(err).Warn("Login rejected")
		emit(e.log, conn, model.EventLoginRejected, model.Reason{Reason: err.Error()})
		return LoginResult{}, err
	}

	accepted := model.LoginAccepted{Username: username}
	if e.tokens != nil {
		token, err := e.tokens.Issue(username)
		if err != nil {
			log.WithError(err).Error("Failed to issue session token")
		}
		accepted.Token = token
	}
	ok := emit(e.log, conn, model.EventLoginAccepted, accepted)

	res := LoginResult{
		Identity: username,
		Queued:   e.state.Queue.Drain(username),
		Redeemed: e.state.Queue.RedeemProvisional(username),
	}
	if rebinding && prev != username {
		res.Unbound = append(res.Unbound, prev)
	}
	batch := append(append([]Message(nil), res.Queued...), res.Redeemed...)

	sent := 0
	if ok && len(batch) > 0 {
		ok = emit(e.log, conn, model.EventPendingStart, model.PendingStart{Count: len(batch)})
		for ok && sent < len(batch) {
			msg := batch[sent]
			if ok = emit(e.log, conn, model.EventReceiveMessage, msg.wire(e.statusOf(msg.ID), true)); ok {
				sent++
			}
		}
	}
	if !ok {
		// whatever the connection refused stays queued for the next login
		e.state.Queue.Requeue(username, batch[sent:])
		e.state.Presence.Disconnect(conn)
		res.Unbound = append(res.Unbound, username)
		log.WithField("requeued", len(batch)-sent).Warn("Connection refused pending messages, unbound")
		return res, nil
	}
	if len(batch) == 0 {
		return res, nil
	}
	log.WithFields(logrus.Fields{
		"queued":   len(res.Queued),
		"redeemed": len(res.Redeemed),
	}).Info("Sent pending messages")
	return res, nil
}

// Send routes one message from the identity bound to conn.
func (e *Engine) Send(conn Conn, req SendRequest) (SendResult, error) {
	sender, ok := e.state.Presence.Identity(conn)
	if !ok {
		return SendResult{}, ErrNotLoggedIn
	}
	if strings.TrimSpace(req.Body) == "" {
		return SendResult{}, ErrEmptyBody
	}
	if req.ID != "" && e.state.Status.Has(req.ID) {
		return SendResult{}, ErrDuplicateMessageID
	}

	msg := Message{ID: req.ID, Sender: sender, Body: req.Body, CreatedAt: req.CreatedAt}
	for msg.ID == "" || e.state.Status.Has(msg.ID) {
		msg.ID = e.ids.NewID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = e.now().UTC()
	}
	if err := e.state.Status.Track(msg.ID, sender); err != nil {
		return SendResult{}, err
	}

	res := SendResult{Message: msg}
	recipient, known := e.state.Presence.ResolveCounterpart(sender)
	log := e.log.WithFields(logrus.Fields{
		"message_id": msg.ID,
		"sender":     sender,
		"recipient":  recipient,
	})

	switch {
	case known:
		res.Recipient = recipient
		if peer, live := e.state.Presence.ResolveConnection(recipient); live {
			if emit(e.log, peer, model.EventReceiveMessage, msg.wire(model.StatusSent, false)) {
				res.Route = RouteLive
				log.Info("Message forwarded to online user")
				break
			}
			// a connection that refuses a frame is gone; fall back to the queue
			e.state.Presence.Disconnect(peer)
			res.Unbound = append(res.Unbound, recipient)
			log.Warn("Live forward refused, recipient unbound")
		}
		res.Route = RouteQueued
		e.state.Queue.Enqueue(recipient, msg)
		log.WithField("queue_len", e.state.Queue.Len(recipient)).Info("Message stored for offline user")
		e.notify(recipient, msg)
	default:
		res.Route = RouteHeld
		e.state.Queue.HoldProvisional(sender, msg)
		log.Info("Message held until a second user logs in")
	}

	if !emit(e.log, conn, model.EventReceiveMessage, msg.wire(model.StatusSent, false)) {
		e.state.Presence.Disconnect(conn)
		res.Unbound = append(res.Unbound, sender)
	}
	return res, nil
}

func (e *Engine) notify(recipient string, msg Message) {
	if e.notifier == nil {
		return
	}
	payload := model.PushPayload{Username: msg.Sender, Message: msg.Body, URL: "/"}
	log := e.log.WithFields(logrus.Fields{"recipient": recipient, "message_id": msg.ID})
	notifier := e.notifier
	e.spawn(func() {
		if err := notifier.Dispatch(context.Background(), recipient, payload); err != nil {
			log.WithError(err).Warn("Push notification not sent")
			return
		}
		log.Info("Push notification sent")
	})
}

// Ack describes an acknowledgement that advanced a message's state.
type Ack struct {
	MessageID string
	Sender    string
	Status    model.DeliveryStatus
}

// AckDelivered records a delivery acknowledgement. It reports false for
// unknown ids and for messages already delivered.
func (e *Engine) AckDelivered(messageID string) (Ack, bool) {
	rec, advanced := e.state.Status.MarkDelivered(messageID)
	return e.acked(messageID, rec, advanced)
}

// AckRead records a read acknowledgement. It reports false for unknown ids
// and for messages already read.
func (e *Engine) AckRead(messageID string) (Ack, bool) {
	rec, advanced := e.state.Status.MarkRead(messageID)
	return e.acked(messageID, rec, advanced)
}

func (e *Engine) acked(messageID string, rec Record, advanced bool) (Ack, bool) {
	if !advanced {
		return Ack{}, false
	}
	ack := Ack{MessageID: messageID, Sender: rec.Sender, Status: rec.Status()}
	if conn, ok := e.state.Presence.ResolveConnection(rec.Sender); ok {
		emit(e.log, conn, model.EventStatusUpdate, model.StatusUpdate{MessageID: messageID, Status: ack.Status})
	}
	return ack, true
}

// Typing relays a typing indicator to the other live participant.
func (e *Engine) Typing(conn Conn, started bool) error {
	identity, ok := e.state.Presence.Identity(conn)
	if !ok {
		return ErrNotLoggedIn
	}
	event := model.EventUserStopTyping
	if started {
		event = model.EventUserTyping
	}
	e.state.Presence.Broadcast(conn, event, model.Peer{Username: identity})
	return nil
}

// Disconnect unbinds conn and returns the identity that went offline.
func (e *Engine) Disconnect(conn Conn) (string, bool) {
	return e.state.Presence.Disconnect(conn)
}

// Counterpart returns the other participant of identity's conversation.
func (e *Engine) Counterpart(identity string) (string, bool) {
	return e.state.Presence.ResolveCounterpart(identity)
}

// Identity returns the identity bound to conn.
func (e *Engine) Identity(conn Conn) (string, bool) {
	return e.state.Presence.Identity(conn)
}

// Status returns the current delivery state of a message.
func (e *Engine) Status(messageID string) (model.DeliveryStatus, bool) {
	rec, ok := e.state.Status.Get(messageID)
	if !ok {
		return "", false
	}
	return rec.Status(), true
}

func (e *Engine) Stats() Stats {
	return Stats{
		Online:  e.state.Presence.Online(),
		Seen:    e.state.Presence.Seen(),
		Queued:  e.state.Queue.Queued(),
		Held:    e.state.Queue.Held(),
		Tracked: e.state.Status.Len(),
	}
}

func (e *Engine) statusOf(messageID string) model.DeliveryStatus {
	if s, ok := e.Status(messageID); ok {
		return s
	}
	return model.StatusSent
}
