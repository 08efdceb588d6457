// Package push delivers background notifications to offline users through
// the Web Push protocol.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/mahaj/duo-relay/pkg/model"
	"github.com/sirupsen/logrus"
)

var (
	ErrNoSubscription   = errors.New("no push subscription registered")
	ErrSubscriptionGone = errors.New("push subscription expired or invalid")
	ErrTransient        = errors.New("push delivery failed")
	ErrInvalid          = errors.New("push subscription is missing endpoint or keys")
)

// Sender hands an encrypted payload to the push service and returns the HTTP
// status it answered with.
type Sender interface {
	Send(ctx context.Context, payload []byte, sub *webpush.Subscription) (int, error)
}

// Bridge keeps one subscription per identity. It is safe for concurrent use:
// registrations arrive over HTTP while dispatches run in their own goroutines.
type Bridge struct {
	mu     sync.RWMutex
	subs   map[string]*webpush.Subscription
	sender Sender
	log    logrus.FieldLogger
}

func NewBridge(sender Sender, log logrus.FieldLogger) *Bridge {
	return &Bridge{
		subs:   make(map[string]*webpush.Subscription),
		sender: sender,
		log:    log,
	}
}

// RegisterSubscription replaces any previous subscription of identity.
func (b *Bridge) RegisterSubscription(identity string, sub webpush.Subscription) error {
	if sub.Endpoint == "" || sub.Keys.Auth == "" || sub.Keys.P256dh == "" {
		return ErrInvalid
	}
	b.mu.Lock()
	b.subs[identity] = &sub
	b.mu.Unlock()

	b.log.WithField("username", identity).Info("Push subscription saved")
	return nil
}

func (b *Bridge) Deregister(identity string) {
	b.mu.Lock()
	delete(b.subs, identity)
	b.mu.Unlock()
}

func (b *Bridge) Has(identity string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.subs[identity]
	return ok
}

// Dispatch sends payload to the subscription of identity. Permanent
// failures drop the subscription; nothing is retried.
func (b *Bridge) Dispatch(ctx context.Context, identity string, payload model.PushPayload) error {
	b.mu.RLock()
	sub, ok := b.subs[identity]
	b.mu.RUnlock()

	log := b.log.WithField("username", identity)
	if !ok {
		log.Debug("No push subscription, notification skipped")
		return ErrNoSubscription
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode push payload: %w", err)
	}

	status, err := b.sender.Send(ctx, body, sub)
	if err != nil {
		log.WithError(err).Warn("Push service unreachable")
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}

	switch {
	case status == http.StatusNotFound || status == http.StatusGone:
		b.mu.Lock()
		// a fresh registration may have landed while we were sending
		if b.subs[identity] == sub {
			delete(b.subs, identity)
		}
		b.mu.Unlock()
		log.WithField("status", status).Warn("Removed invalid push subscription")
		return ErrSubscriptionGone
	case status >= 200 && status < 300:
		return nil
	default:
		log.WithField("status", status).Warn("Push service rejected notification")
		return fmt.Errorf("%w: status %d", ErrTransient, status)
	}
}
