package push

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
)

var ErrMissingKeys = errors.New("VAPID public and private keys are required")

// VAPIDSender signs requests with the server's VAPID key pair.
type VAPIDSender struct {
	options webpush.Options
}

func NewVAPIDSender(publicKey, privateKey, subscriber string, ttl time.Duration, client *http.Client) (*VAPIDSender, error) {
	if publicKey == "" || privateKey == "" {
		return nil, ErrMissingKeys
	}
	opts := webpush.Options{
		Subscriber:      subscriber,
		VAPIDPublicKey:  publicKey,
		VAPIDPrivateKey: privateKey,
		TTL:             int(ttl.Seconds()),
	}
	if client != nil {
		opts.HTTPClient = client
	}
	return &VAPIDSender{options: opts}, nil
}

func (s *VAPIDSender) Send(ctx context.Context, payload []byte, sub *webpush.Subscription) (int, error) {
	opts := s.options
	resp, err := webpush.SendNotificationWithContext(ctx, payload, sub, &opts)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// GenerateKeys returns a fresh VAPID key pair, public key first.
func GenerateKeys() (publicKey, privateKey string, err error) {
	privateKey, publicKey, err = webpush.GenerateVAPIDKeys()
	return publicKey, privateKey, err
}
