package main

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mahaj/duo-relay/pkg/journal"
	"github.com/mahaj/duo-relay/pkg/model"
	"github.com/mahaj/duo-relay/pkg/presence"
	"github.com/mahaj/duo-relay/pkg/relay"
	"github.com/sirupsen/logrus"
)

const effectQueueSize = 1024

type inbound struct {
	client    *Client
	env       model.Envelope
	malformed bool
}

// Hub owns the relay engine. Every engine call happens on the Run goroutine;
// Redis and Kafka writes are queued to a separate worker afterwards.
type Hub struct {
	engine   *relay.Engine
	mirror   presence.Mirror
	journal  journal.Publisher
	validate *validator.Validate
	log      logrus.FieldLogger

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	inbound    chan inbound
	stats      chan chan relay.Stats
	effects    chan func(context.Context)
	done       chan struct{}
}

func NewHub(engine *relay.Engine, mirror presence.Mirror, pub journal.Publisher, log logrus.FieldLogger) *Hub {
	if mirror == nil {
		mirror = presence.Noop{}
	}
	if pub == nil {
		pub = journal.Noop{}
	}
	return &Hub{
		engine:     engine,
		mirror:     mirror,
		journal:    pub,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		log:        log,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inbound),
		stats:      make(chan chan relay.Stats),
		effects:    make(chan func(context.Context), effectQueueSize),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	go h.runEffects(ctx)
	h.effect(func(ctx context.Context) error { return h.mirror.Reset(ctx) })

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			close(h.done)
			h.log.Info("Hub stopped")
			return

		case client := <-h.register:
			h.clients[client] = true
			h.log.WithField("conn_id", client.ID).Debug("Client connected")

		case client := <-h.unregister:
			if !h.clients[client] {
				continue
			}
			h.drop(client)
			if identity, ok := h.engine.Disconnect(client); ok {
				h.effect(func(ctx context.Context) error { return h.mirror.Offline(ctx, identity) })
			}
			h.log.WithField("conn_id", client.ID).Debug("Client disconnected")

		case in := <-h.inbound:
			// events still buffered from a client that is already gone
			if !h.clients[in.client] {
				continue
			}
			if in.malformed {
				h.reply(in.client, model.EventError, model.Reason{Reason: "malformed envelope"})
				continue
			}
			h.handle(in.client, in.env)

		case reply := <-h.stats:
			reply <- h.engine.Stats()
		}
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	client.closed = true
	close(client.send)
}

// Stats asks the event loop for a snapshot of the relay.
func (h *Hub) Stats(ctx context.Context) (relay.Stats, error) {
	reply := make(chan relay.Stats, 1)
	select {
	case h.stats <- reply:
	case <-h.done:
		return relay.Stats{}, errors.New("hub stopped")
	case <-ctx.Done():
		return relay.Stats{}, ctx.Err()
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return relay.Stats{}, ctx.Err()
	}
}

func (h *Hub) handle(c *Client, env model.Envelope) {
	log := h.log.WithFields(logrus.Fields{"conn_id": c.ID, "event": env.Event})

	switch env.Event {
	case model.EventLogin:
		var req model.LoginRequest
		if !h.decode(c, env, &req) {
			return
		}
		res, err := h.engine.Login(c, req.Username)
		if err != nil {
			return
		}
		h.effect(func(ctx context.Context) error { return h.mirror.Online(ctx, res.Identity) })
		h.offline(res.Unbound)
		for _, msg := range res.Redeemed {
			rec := messageRecord(msg, res.Identity, relay.RouteHeld)
			h.effect(func(ctx context.Context) error { return h.journal.Publish(ctx, rec) })
		}

	case model.EventSend:
		var req model.SendRequest
		if !h.decode(c, env, &req) {
			return
		}
		res, err := h.engine.Send(c, relay.SendRequest{ID: req.ID, Body: req.Content, CreatedAt: req.Timestamp})
		if err != nil {
			log.WithError(err).Info("Send rejected")
			h.reject(c, err)
			return
		}
		h.offline(res.Unbound)
		if res.Route == relay.RouteHeld {
			// journaled once the recipient is known
			return
		}
		rec := messageRecord(res.Message, res.Recipient, res.Route)
		h.effect(func(ctx context.Context) error { return h.journal.Publish(ctx, rec) })

	case model.EventDelivered, model.EventRead:
		var req model.AckRequest
		if !h.decode(c, env, &req) {
			return
		}
		ack := h.engine.AckDelivered
		if env.Event == model.EventRead {
			ack = h.engine.AckRead
		}
		res, ok := ack(req.MessageID)
		if !ok {
			log.WithField("message_id", req.MessageID).Debug("Acknowledgement ignored")
			return
		}
		counterpart, _ := h.engine.Counterpart(res.Sender)
		rec := model.Record{
			Kind:           model.RecordStatus,
			ConversationID: model.ConversationID(res.Sender, counterpart),
			MessageID:      res.MessageID,
			Status:         res.Status,
			Timestamp:      time.Now().UTC(),
		}
		h.effect(func(ctx context.Context) error { return h.journal.Publish(ctx, rec) })

	case model.EventTypingStart, model.EventTypingStop:
		if err := h.engine.Typing(c, env.Event == model.EventTypingStart); err != nil {
			log.WithError(err).Debug("Typing indicator ignored")
		}

	case model.EventPing:
		h.reply(c, model.EventPong, nil)

	default:
		log.Warn("Unknown event")
		h.reply(c, model.EventError, model.Reason{Reason: "unknown event " + string(env.Event)})
	}
}

// offline mirrors identities the engine unbound while handling an event.
// The Offline write is queued after any Online for the same identity.
func (h *Hub) offline(identities []string) {
	for _, identity := range identities {
		h.effect(func(ctx context.Context) error { return h.mirror.Offline(ctx, identity) })
	}
}

func (h *Hub) decode(c *Client, env model.Envelope, v any) bool {
	if err := env.Decode(v); err != nil {
		h.reply(c, model.EventError, model.Reason{Reason: "malformed payload"})
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		h.reply(c, model.EventError, model.Reason{Reason: err.Error()})
		return false
	}
	return true
}

func (h *Hub) reject(c *Client, err error) {
	h.reply(c, model.EventError, model.Reason{Reason: err.Error()})
}

func (h *Hub) reply(c *Client, event model.EventType, data any) {
	env, err := model.NewEnvelope(event, data)
	if err != nil {
		h.log.WithError(err).Error("Failed to encode reply")
		return
	}
	c.Send(env)
}

// effect queues an outer-service write. When the worker falls behind the
// write is dropped; relay state never depends on it.
func (h *Hub) effect(f func(ctx context.Context) error) {
	select {
	case h.effects <- func(ctx context.Context) {
		if err := f(ctx); err != nil {
			h.log.WithError(err).Warn("Side effect failed")
		}
	}:
	default:
		h.log.Warn("Side effect queue full, dropping write")
	}
}

func (h *Hub) runEffects(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-h.effects:
			f(ctx)
		}
	}
}

func messageRecord(msg relay.Message, recipient string, route relay.Route) model.Record {
	return model.Record{
		Kind:           model.RecordMessage,
		ConversationID: model.ConversationID(msg.Sender, recipient),
		MessageID:      msg.ID,
		Sender:         msg.Sender,
		Recipient:      recipient,
		Content:        msg.Body,
		Route:          route.String(),
		Status:         model.StatusSent,
		Timestamp:      msg.CreatedAt,
	}
}
