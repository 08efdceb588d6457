package relay

import (
	"errors"
	"testing"
	"time"

	"github.com/mahaj/duo-relay/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func login(t *testing.T, e *Engine, name string) *fakeConn {
	t.Helper()
	conn := newConn(name)
	_, err := e.Login(conn, name)
	require.NoError(t, err)
	return conn
}

func send(t *testing.T, e *Engine, conn *fakeConn, req SendRequest) SendResult {
	t.Helper()
	res, err := e.Send(conn, req)
	require.NoError(t, err)
	return res
}

func TestEngineHeldBeforeSecondUser(t *testing.T) {
	e, state, notifier := newTestEngine()
	alice := login(t, e, "alice")
	alice.reset()

	res := send(t, e, alice, SendRequest{Body: "hi"})
	assert.Equal(t, RouteHeld, res.Route)
	assert.Empty(t, res.Recipient)
	assert.Equal(t, 1, state.Queue.Held())
	assert.Empty(t, notifier.calls)

	echo := alice.messages(t)
	require.Len(t, echo, 1)
	assert.Equal(t, "hi", echo[0].Content)
	assert.Equal(t, model.StatusSent, echo[0].Status)

	bob := newConn("bob")
	result, err := e.Login(bob, "bob")
	require.NoError(t, err)
	assert.Len(t, result.Redeemed, 1)
	assert.Zero(t, state.Queue.Held())

	assert.Equal(t, []model.EventType{
		model.EventLoginAccepted,
		model.EventPendingStart,
		model.EventReceiveMessage,
	}, bob.kinds())

	var start model.PendingStart
	require.NoError(t, bob.events[1].Decode(&start))
	assert.Equal(t, 1, start.Count)

	got := bob.messages(t)
	require.Len(t, got, 1)
	assert.Equal(t, "hi", got[0].Content)
	assert.Equal(t, "alice", got[0].Username)
	assert.True(t, got[0].IsPending)
}

func TestEngineLiveDelivery(t *testing.T) {
	e, state, notifier := newTestEngine()
	alice := login(t, e, "alice")
	bob := login(t, e, "bob")
	alice.reset()
	bob.reset()

	res := send(t, e, alice, SendRequest{Body: "hey"})
	assert.Equal(t, RouteLive, res.Route)
	assert.Equal(t, "bob", res.Recipient)
	assert.Empty(t, notifier.calls, "live delivery never pushes")
	assert.Zero(t, state.Queue.Queued())

	got := bob.messages(t)
	require.Len(t, got, 1)
	assert.Equal(t, "hey", got[0].Content)
	assert.False(t, got[0].IsPending)
	assert.Len(t, alice.messages(t), 1, "self echo")
}

func TestEngineOfflineQueueAndPush(t *testing.T) {
	e, state, notifier := newTestEngine()
	alice := login(t, e, "alice")
	bob := login(t, e, "bob")
	e.Disconnect(bob)
	alice.reset()

	res := send(t, e, alice, SendRequest{Body: "yo"})
	assert.Equal(t, RouteQueued, res.Route)
	assert.Equal(t, 1, state.Queue.Len("bob"))
	require.Len(t, notifier.calls, 1)
	assert.Equal(t, "bob", notifier.calls[0].recipient)
	assert.Equal(t, model.PushPayload{Username: "alice", Message: "yo", URL: "/"}, notifier.calls[0].payload)
	assert.Len(t, alice.messages(t), 1)
}

func TestEnginePushFailureKeepsMessageQueued(t *testing.T) {
	e, state, notifier := newTestEngine()
	notifier.err = errors.New("subscription gone")
	alice := login(t, e, "alice")
	e.Disconnect(login(t, e, "bob"))

	res := send(t, e, alice, SendRequest{Body: "still here"})
	assert.Equal(t, RouteQueued, res.Route)
	assert.Equal(t, 1, state.Queue.Len("bob"))
}

func TestEngineReconnectDrainsInOrder(t *testing.T) {
	e, state, _ := newTestEngine()
	alice := login(t, e, "alice")
	e.Disconnect(login(t, e, "bob"))

	for _, body := range []string{"one", "two", "three"} {
		send(t, e, alice, SendRequest{Body: body})
	}

	bob := newConn("bob")
	res, err := e.Login(bob, "bob")
	require.NoError(t, err)
	assert.Len(t, res.Queued, 3)
	assert.Zero(t, state.Queue.Len("bob"))

	var start model.PendingStart
	require.Equal(t, model.EventPendingStart, bob.events[1].Event)
	require.NoError(t, bob.events[1].Decode(&start))
	assert.Equal(t, 3, start.Count)

	got := bob.messages(t)
	require.Len(t, got, 3)
	for i, body := range []string{"one", "two", "three"} {
		assert.Equal(t, body, got[i].Content)
		assert.True(t, got[i].IsPending)
	}
}

func TestEngineLoginWithoutPending(t *testing.T) {
	e, _, _ := newTestEngine(WithTokenIssuer(staticTokens{}))
	alice := login(t, e, "alice")

	assert.Equal(t, []model.EventType{model.EventLoginAccepted}, alice.kinds())
	var accepted model.LoginAccepted
	require.NoError(t, alice.events[0].Decode(&accepted))
	assert.Equal(t, model.LoginAccepted{Username: "alice", Token: "token-alice"}, accepted)
}

func TestEngineLoginTokenFailureStillAccepts(t *testing.T) {
	e, _, _ := newTestEngine(WithTokenIssuer(failingTokens{}))
	alice := login(t, e, "alice")

	var accepted model.LoginAccepted
	require.NoError(t, alice.events[0].Decode(&accepted))
	assert.Empty(t, accepted.Token)
}

func TestEngineThirdIdentityRejected(t *testing.T) {
	e, state, _ := newTestEngine()
	login(t, e, "alice")
	login(t, e, "bob")

	carol := newConn("carol")
	_, err := e.Login(carol, "carol")
	assert.ErrorIs(t, err, ErrConversationFull)
	assert.Equal(t, []model.EventType{model.EventLoginRejected}, carol.kinds())
	assert.Equal(t, []string{"alice", "bob"}, state.Presence.Seen())

	_, err = e.Send(carol, SendRequest{Body: "let me in"})
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestEngineStatusUpdates(t *testing.T) {
	e, _, _ := newTestEngine()
	alice := login(t, e, "alice")
	login(t, e, "bob")
	send(t, e, alice, SendRequest{ID: "m1", Body: "hello"})
	alice.reset()

	ack, ok := e.AckDelivered("m1")
	require.True(t, ok)
	assert.Equal(t, Ack{MessageID: "m1", Sender: "alice", Status: model.StatusDelivered}, ack)
	ack, ok = e.AckRead("m1")
	require.True(t, ok)
	assert.Equal(t, model.StatusRead, ack.Status)

	assert.Equal(t, []model.StatusUpdate{
		{MessageID: "m1", Status: model.StatusDelivered},
		{MessageID: "m1", Status: model.StatusRead},
	}, alice.statusUpdates(t))

	// duplicates and late acks change nothing
	_, ok = e.AckRead("m1")
	assert.False(t, ok)
	_, ok = e.AckDelivered("m1")
	assert.False(t, ok)
	assert.Len(t, alice.events, 2)

	status, ok := e.Status("m1")
	require.True(t, ok)
	assert.Equal(t, model.StatusRead, status)
}

func TestEngineStatusUpdateSenderOffline(t *testing.T) {
	e, _, _ := newTestEngine()
	alice := login(t, e, "alice")
	login(t, e, "bob")
	send(t, e, alice, SendRequest{ID: "m1", Body: "hello"})
	e.Disconnect(alice)
	alice.reset()

	_, ok := e.AckDelivered("m1")
	assert.True(t, ok)
	assert.Empty(t, alice.events)

	status, _ := e.Status("m1")
	assert.Equal(t, model.StatusDelivered, status)
}

func TestEngineUnknownAck(t *testing.T) {
	e, _, _ := newTestEngine()
	alice := login(t, e, "alice")
	bob := login(t, e, "bob")
	alice.reset()
	bob.reset()

	_, ok := e.AckDelivered("zzz")
	assert.False(t, ok)
	_, ok = e.AckRead("zzz")
	assert.False(t, ok)
	assert.Empty(t, alice.events)
	assert.Empty(t, bob.events)
}

func TestEngineExactlyOneRoute(t *testing.T) {
	e, state, notifier := newTestEngine()
	alice := login(t, e, "alice")

	held := send(t, e, alice, SendRequest{Body: "first"})
	bob := login(t, e, "bob")
	live := send(t, e, alice, SendRequest{Body: "second"})
	e.Disconnect(bob)
	queued := send(t, e, alice, SendRequest{Body: "third"})

	assert.Equal(t, []Route{RouteHeld, RouteLive, RouteQueued},
		[]Route{held.Route, live.Route, queued.Route})
	assert.Zero(t, state.Queue.Held())
	assert.Equal(t, []string{queued.Message.ID}, ids(state.Queue.Drain("bob")))
	assert.Len(t, notifier.calls, 1)

	echoes := alice.messages(t)
	assert.Len(t, echoes, 3)
	assert.Len(t, bob.messages(t), 2, "redeemed hold plus live message")
}

func TestEngineRejectsMalformed(t *testing.T) {
	e, state, _ := newTestEngine()
	stranger := newConn("stranger")

	_, err := e.Send(stranger, SendRequest{Body: "x"})
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	alice := login(t, e, "alice")
	alice.reset()

	_, err = e.Send(alice, SendRequest{Body: "   "})
	assert.ErrorIs(t, err, ErrEmptyBody)

	send(t, e, alice, SendRequest{ID: "m1", Body: "ok"})
	_, err = e.Send(alice, SendRequest{ID: "m1", Body: "again"})
	assert.ErrorIs(t, err, ErrDuplicateMessageID)

	assert.Equal(t, 1, state.Status.Len())
	assert.Equal(t, 1, state.Queue.Held())
	assert.Len(t, alice.events, 1)
}

func TestEngineAssignsIDAndTimestamp(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	gen := &seqIDs{}
	e, state, _ := newTestEngine(WithIDGenerator(gen), WithClock(func() time.Time { return fixed }))
	alice := login(t, e, "alice")

	// a client id that collides with the next generated one is skipped
	send(t, e, alice, SendRequest{ID: "gen-1", Body: "client id"})
	res := send(t, e, alice, SendRequest{Body: "generated"})

	assert.Equal(t, "gen-2", res.Message.ID)
	assert.Equal(t, fixed, res.Message.CreatedAt)
	assert.True(t, state.Status.Has("gen-2"))

	stamp := fixed.Add(-time.Minute)
	res = send(t, e, alice, SendRequest{Body: "client stamp", CreatedAt: stamp})
	assert.Equal(t, stamp, res.Message.CreatedAt)
}

func TestEngineTyping(t *testing.T) {
	e, _, _ := newTestEngine()
	alice := login(t, e, "alice")
	bob := login(t, e, "bob")
	alice.reset()
	bob.reset()

	require.NoError(t, e.Typing(alice, true))
	require.NoError(t, e.Typing(alice, false))

	assert.Empty(t, alice.events)
	assert.Equal(t, []model.EventType{model.EventUserTyping, model.EventUserStopTyping}, bob.kinds())
	assert.ErrorIs(t, e.Typing(newConn("x"), true), ErrNotLoggedIn)
}

func TestEngineStats(t *testing.T) {
	e, _, _ := newTestEngine()
	alice := login(t, e, "alice")
	send(t, e, alice, SendRequest{Body: "held"})
	e.Disconnect(login(t, e, "bob"))
	send(t, e, alice, SendRequest{Body: "queued"})

	assert.Equal(t, Stats{
		Online:  []string{"alice"},
		Seen:    []string{"alice", "bob"},
		Queued:  1,
		Held:    0,
		Tracked: 2,
	}, e.Stats())
}

func TestRouteString(t *testing.T) {
	assert.Equal(t, "live", RouteLive.String())
	assert.Equal(t, "queued", RouteQueued.String())
	assert.Equal(t, "held", RouteHeld.String())
	assert.Equal(t, "unknown", Route(42).String())
}

func TestEngineRefusedLiveForwardQueues(t *testing.T) {
	e, state, notifier := newTestEngine()
	alice := login(t, e, "alice")
	bob := login(t, e, "bob")
	bob.reset()
	bob.limit = 1

	first := send(t, e, alice, SendRequest{ID: "m1", Body: "fits"})
	assert.Equal(t, RouteLive, first.Route)
	assert.Empty(t, first.Unbound)

	second := send(t, e, alice, SendRequest{ID: "m2", Body: "overflows"})
	assert.Equal(t, RouteQueued, second.Route)
	assert.Equal(t, []string{"bob"}, second.Unbound)
	_, live := state.Presence.ResolveConnection("bob")
	assert.False(t, live, "a connection that refused a frame is unbound")
	require.Len(t, notifier.calls, 1)
	assert.Equal(t, "bob", notifier.calls[0].recipient)

	third := send(t, e, alice, SendRequest{ID: "m3", Body: "later"})
	assert.Equal(t, RouteQueued, third.Route)
	assert.Empty(t, third.Unbound)

	again := newConn("bob")
	_, err := e.Login(again, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"m2", "m3"}, messageIDs(again.messages(t)))
}

func TestEngineRefusedReplayStaysQueued(t *testing.T) {
	e, state, _ := newTestEngine()
	alice := login(t, e, "alice")
	e.Disconnect(login(t, e, "bob"))
	for _, id := range []string{"m1", "m2", "m3"} {
		send(t, e, alice, SendRequest{ID: id, Body: id})
	}

	// login-accepted, pending-messages-start and one message fit
	slow := newConn("bob")
	slow.limit = 3
	res, err := e.Login(slow, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, res.Unbound)
	assert.Equal(t, []string{"m1"}, messageIDs(slow.messages(t)))
	assert.Equal(t, 2, state.Queue.Len("bob"))
	_, live := state.Presence.ResolveConnection("bob")
	assert.False(t, live)

	fresh := newConn("bob")
	_, err = e.Login(fresh, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"m2", "m3"}, messageIDs(fresh.messages(t)))
	assert.Zero(t, state.Queue.Queued())
}

func TestEngineReloginReportsPreviousName(t *testing.T) {
	e, state, _ := newTestEngine()
	conn := login(t, e, "alice")

	res, err := e.Login(conn, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, res.Unbound)
	assert.Equal(t, []string{"bob"}, state.Presence.Online())

	res, err = e.Login(conn, "bob")
	require.NoError(t, err)
	assert.Empty(t, res.Unbound, "same name on the same socket unbinds nothing")
}

func TestEngineDuplicateDeliveredAck(t *testing.T) {
	e, _, _ := newTestEngine()
	alice := login(t, e, "alice")
	login(t, e, "bob")
	send(t, e, alice, SendRequest{ID: "m1", Body: "hello"})
	alice.reset()

	_, ok := e.AckDelivered("m1")
	require.True(t, ok)
	_, ok = e.AckDelivered("m1")
	assert.False(t, ok)

	assert.Equal(t, []model.StatusUpdate{{MessageID: "m1", Status: model.StatusDelivered}}, alice.statusUpdates(t))
	assert.Len(t, alice.events, 1)
}

func messageIDs(msgs []model.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}
