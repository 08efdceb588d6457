package relay

import (
	"context"
	"errors"
	"io"
	"strconv"
	"testing"

	"github.com/mahaj/duo-relay/pkg/model"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	name   string
	events []model.Envelope
	// limit > 0 refuses frames once that many are held
	limit int
}

func newConn(name string) *fakeConn { return &fakeConn{name: name} }

func (c *fakeConn) Send(env model.Envelope) bool {
	if c.limit > 0 && len(c.events) >= c.limit {
		return false
	}
	c.events = append(c.events, env)
	return true
}

func (c *fakeConn) reset() { c.events = nil }

func (c *fakeConn) kinds() []model.EventType {
	out := make([]model.EventType, 0, len(c.events))
	for _, env := range c.events {
		out = append(out, env.Event)
	}
	return out
}

func (c *fakeConn) messages(t *testing.T) []model.Message {
	t.Helper()
	var out []model.Message
	for _, env := range c.events {
		if env.Event != model.EventReceiveMessage {
			continue
		}
		var m model.Message
		require.NoError(t, env.Decode(&m))
		out = append(out, m)
	}
	return out
}

func (c *fakeConn) statusUpdates(t *testing.T) []model.StatusUpdate {
	t.Helper()
	var out []model.StatusUpdate
	for _, env := range c.events {
		if env.Event != model.EventStatusUpdate {
			continue
		}
		var s model.StatusUpdate
		require.NoError(t, env.Decode(&s))
		out = append(out, s)
	}
	return out
}

type dispatchCall struct {
	recipient string
	payload   model.PushPayload
}

type fakeNotifier struct {
	calls []dispatchCall
	err   error
}

func (n *fakeNotifier) Dispatch(_ context.Context, recipient string, payload model.PushPayload) error {
	n.calls = append(n.calls, dispatchCall{recipient: recipient, payload: payload})
	return n.err
}

type staticTokens struct{}

func (staticTokens) Issue(identity string) (string, error) { return "token-" + identity, nil }

type failingTokens struct{}

func (failingTokens) Issue(string) (string, error) { return "", errors.New("no key") }

type seqIDs struct{ n int }

func (s *seqIDs) NewID() string {
	s.n++
	return "gen-" + strconv.Itoa(s.n)
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestEngine(opts ...Option) (*Engine, *State, *fakeNotifier) {
	log := quietLogger()
	state := NewState(log)
	notifier := &fakeNotifier{}
	base := []Option{
		WithLogger(log),
		WithNotifier(notifier),
		WithSpawner(func(f func()) { f() }),
	}
	return New(state, append(base, opts...)...), state, notifier
}
