package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(store *fakeStore, users ...string) (*Handler, *Registry, *fakeResolver) {
	reg := NewRegistry(nil)
	resolver := newFakeResolver(users...)
	return NewHandler(nil, resolver, store, reg), reg, resolver
}

func errorReason(t *testing.T, evt Event) string {
	t.Helper()
	require.Equal(t, EventErrorMessage, evt.Name)
	payload, ok := evt.Payload.(ErrorPayload)
	require.True(t, ok)
	return payload.Reason
}

func bodies(events []Event) []string {
	out := make([]string, 0, len(events))
	for _, evt := range events {
		out = append(out, evt.Payload.(MessageReceivedPayload).Message)
	}
	return out
}

func TestSession_JoinMovesToInRoom(t *testing.T) {
	h, reg, _ := newTestHandler(&fakeStore{}, "u1", "u2")
	conn := newFakeConn("c1")
	s := h.NewSession(conn)

	require.NoError(t, s.Join(context.Background(), "u1", "u2"))

	assert.Equal(t, StateInRoom, s.State())
	assert.Equal(t, []string{"u1_u2"}, s.Rooms())
	assert.Equal(t, 1, reg.Members("u1_u2"))
	assert.Empty(t, conn.Events())
}

func TestSession_JoinUnknownUserKeepsConnectionUsable(t *testing.T) {
	h, reg, _ := newTestHandler(&fakeStore{}, "u1", "u2")
	conn := newFakeConn("c1")
	s := h.NewSession(conn)

	err := s.Join(context.Background(), "u1", "ghost")
	require.ErrorIs(t, err, ErrUnknownUser)

	events := conn.Events()
	require.Len(t, events, 1)
	assert.Equal(t, ReasonUnknownUser, errorReason(t, events[0]))
	assert.Equal(t, "Invalid users", events[0].Payload.(ErrorPayload).Error)
	assert.Equal(t, StateConnected, s.State())
	assert.Equal(t, 0, reg.Members("ghost_u1"))

	require.NoError(t, s.Join(context.Background(), "u1", "u2"))
	assert.Equal(t, StateInRoom, s.State())
}

func TestSession_JoinIdentityLookupFailure(t *testing.T) {
	h, _, resolver := newTestHandler(&fakeStore{}, "u1", "u2")
	resolver.err = errors.New("db unreachable")
	conn := newFakeConn("c1")

	err := h.NewSession(conn).Join(context.Background(), "u1", "u2")
	require.ErrorIs(t, err, ErrIdentityLookup)
	require.Len(t, conn.Events(), 1)
	assert.Equal(t, ReasonIdentityLookup, errorReason(t, conn.Events()[0]))
}

func TestSession_RejectsInvalidParticipants(t *testing.T) {
	h, _, resolver := newTestHandler(&fakeStore{}, "u1")
	conn := newFakeConn("c1")
	s := h.NewSession(conn)

	require.ErrorIs(t, s.Join(context.Background(), "u1", "u1"), ErrInvalidParticipants)
	_, err := s.Send(context.Background(), "", "u1", "hola")
	require.ErrorIs(t, err, ErrInvalidParticipants)

	assert.Zero(t, resolver.calls)
	for _, evt := range conn.Events() {
		assert.Equal(t, ReasonInvalidParticipants, errorReason(t, evt))
	}
}

func TestSession_SendWithoutJoinStillPersists(t *testing.T) {
	store := &fakeStore{}
	h, _, _ := newTestHandler(store, "u1", "u2")
	listener := h.NewSession(newFakeConn("listener"))
	require.NoError(t, listener.Join(context.Background(), "u2", "u1"))

	senderConn := newFakeConn("sender")
	sender := h.NewSession(senderConn)
	msg, err := sender.Send(context.Background(), "u1", "u2", "hola")
	require.NoError(t, err)

	assert.Equal(t, "u1_u2", msg.RoomID)
	assert.Equal(t, "u1", msg.FromUserID)
	assert.Equal(t, "u2", msg.ToUserID)
	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.CreatedAt.IsZero())
	require.Len(t, store.ByRoom("u1_u2"), 1)

	assert.Empty(t, senderConn.Events())
	assert.Equal(t, StateConnected, sender.State())
	assert.Equal(t, []string{"hola"}, bodies(listener.conn.(*fakeConn).Named(EventMessageReceived)))
}

func TestSession_SenderReceivesItsOwnMessage(t *testing.T) {
	h, _, _ := newTestHandler(&fakeStore{}, "u1", "u2")
	conn := newFakeConn("c1")
	s := h.NewSession(conn)
	require.NoError(t, s.Join(context.Background(), "u1", "u2"))

	_, err := s.Send(context.Background(), "u1", "u2", "hola")
	require.NoError(t, err)

	received := conn.Named(EventMessageReceived)
	require.Len(t, received, 1)
	assert.Equal(t, MessageReceivedPayload{FromUserID: "u1", Message: "hola"}, received[0].Payload)
}

func TestSession_SendRejectsEmptyOrLongBody(t *testing.T) {
	store := &fakeStore{}
	reg := NewRegistry(nil)
	h := NewHandler(nil, newFakeResolver("u1", "u2"), store, reg, WithMaxMessageLength(5))
	conn := newFakeConn("c1")
	s := h.NewSession(conn)

	_, err := s.Send(context.Background(), "u1", "u2", "   ")
	require.ErrorIs(t, err, ErrInvalidMessage)
	_, err = s.Send(context.Background(), "u1", "u2", "demasiado")
	require.ErrorIs(t, err, ErrInvalidMessage)
	_, err = s.Send(context.Background(), "u1", "u2", "ñandú")
	require.NoError(t, err)

	assert.Len(t, store.ByRoom("u1_u2"), 1)
	assert.Len(t, conn.Named(EventErrorMessage), 2)
}

func TestSession_PersistenceFailureSkipsBroadcast(t *testing.T) {
	store := &fakeStore{err: errStoreDown}
	h, _, _ := newTestHandler(store, "u1", "u2")
	senderConn, peerConn := newFakeConn("sender"), newFakeConn("peer")
	sender, peer := h.NewSession(senderConn), h.NewSession(peerConn)
	require.NoError(t, sender.Join(context.Background(), "u1", "u2"))
	require.NoError(t, peer.Join(context.Background(), "u2", "u1"))

	_, err := sender.Send(context.Background(), "u1", "u2", "hola")
	require.ErrorIs(t, err, ErrPersistence)

	require.Len(t, senderConn.Events(), 1)
	assert.Equal(t, ReasonPersistence, errorReason(t, senderConn.Events()[0]))
	assert.Equal(t, "Failed to send message", senderConn.Events()[0].Payload.(ErrorPayload).Error)
	assert.Empty(t, peerConn.Events())
	assert.Equal(t, StateInRoom, sender.State())
}

func TestSession_UnknownUserErrorGoesOnlyToSender(t *testing.T) {
	store := &fakeStore{}
	h, _, _ := newTestHandler(store, "u1", "u2")
	senderConn, peerConn := newFakeConn("sender"), newFakeConn("peer")
	require.NoError(t, h.NewSession(peerConn).Join(context.Background(), "u2", "u1"))

	_, err := h.NewSession(senderConn).Send(context.Background(), "u1", "ghost", "hola")
	require.ErrorIs(t, err, ErrUnknownUser)

	assert.Len(t, senderConn.Named(EventErrorMessage), 1)
	assert.Empty(t, peerConn.Events())
	assert.Empty(t, store.ByRoom("ghost_u1"))
}

func TestSession_LateJoinerMissesEarlierMessages(t *testing.T) {
	store := &fakeStore{}
	h, _, _ := newTestHandler(store, "u1", "u2")
	sender := h.NewSession(newFakeConn("sender"))
	for i := 0; i < 3; i++ {
		_, err := sender.Send(context.Background(), "u1", "u2", fmt.Sprintf("m%d", i))
		require.NoError(t, err)
	}

	lateConn := newFakeConn("late")
	require.NoError(t, h.NewSession(lateConn).Join(context.Background(), "u2", "u1"))

	assert.Empty(t, lateConn.Events())
	assert.Len(t, store.ByRoom("u1_u2"), 3)
}

func TestSession_DisconnectMidSendStillPersists(t *testing.T) {
	store := &fakeStore{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	h, reg, _ := newTestHandler(store, "u1", "u2")
	senderConn, peerConn := newFakeConn("sender"), newFakeConn("peer")
	sender, peer := h.NewSession(senderConn), h.NewSession(peerConn)
	require.NoError(t, sender.Join(context.Background(), "u1", "u2"))
	require.NoError(t, peer.Join(context.Background(), "u2", "u1"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := sender.Send(ctx, "u1", "u2", "hola")
		done <- err
	}()

	<-store.entered
	cancel()
	sender.Disconnect("transport closed")
	close(store.gate)
	require.NoError(t, <-done)

	assert.Len(t, store.ByRoom("u1_u2"), 1)
	assert.Equal(t, []string{"hola"}, bodies(peerConn.Named(EventMessageReceived)))
	assert.Empty(t, senderConn.Named(EventMessageReceived))
	assert.Equal(t, 1, reg.Members("u1_u2"))
}

func TestSession_ClosedSessionIgnoresOperations(t *testing.T) {
	store := &fakeStore{}
	h, reg, _ := newTestHandler(store, "u1", "u2")
	conn := newFakeConn("c1")
	s := h.NewSession(conn)
	require.NoError(t, s.Join(context.Background(), "u1", "u2"))

	s.Disconnect("client left")
	s.Disconnect("again")

	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, 0, reg.Members("u1_u2"))
	assert.ErrorIs(t, s.Join(context.Background(), "u1", "u2"), ErrSessionClosed)
	_, err := s.Send(context.Background(), "u1", "u2", "hola")
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.ErrorIs(t, s.Dispatch(context.Background(), "bogus", nil), ErrSessionClosed)

	assert.Empty(t, conn.Events())
	assert.Empty(t, store.ByRoom("u1_u2"))
}

func TestSession_PerRoomOrderMatchesStoredOrder(t *testing.T) {
	store := &fakeStore{}
	h, _, _ := newTestHandler(store, "u1", "u2")
	listenerConn := newFakeConn("listener")
	require.NoError(t, h.NewSession(listenerConn).Join(context.Background(), "u1", "u2"))

	var wg sync.WaitGroup
	for _, pair := range [][2]string{{"u1", "u2"}, {"u2", "u1"}} {
		wg.Add(1)
		go func(from, to string) {
			defer wg.Done()
			s := h.NewSession(newFakeConn("sender-" + from))
			for i := 0; i < 25; i++ {
				_, err := s.Send(context.Background(), from, to, fmt.Sprintf("%s-%d", from, i))
				assert.NoError(t, err)
			}
		}(pair[0], pair[1])
	}
	wg.Wait()

	stored := store.ByRoom("u1_u2")
	require.Len(t, stored, 50)
	want := make([]string, 0, len(stored))
	for i, m := range stored {
		want = append(want, m.Body)
		if i > 0 {
			assert.False(t, m.CreatedAt.Before(stored[i-1].CreatedAt))
		}
	}
	assert.Equal(t, want, bodies(listenerConn.Named(EventMessageReceived)))
}

func TestSession_DispatchDecodesEvents(t *testing.T) {
	store := &fakeStore{}
	h, _, _ := newTestHandler(store, "u1", "u2")
	conn := newFakeConn("c1")
	s := h.NewSession(conn)
	ctx := context.Background()

	join, _ := json.Marshal(JoinRoomPayload{FromUserID: "u1", ToUserID: "u2"})
	require.NoError(t, s.Dispatch(ctx, EventJoinRoom, join))
	send, _ := json.Marshal(SendMessagePayload{FromUserID: "u1", ToUserID: "u2", Message: "hola"})
	require.NoError(t, s.Dispatch(ctx, EventSendMessage, send))

	assert.Equal(t, []string{"hola"}, bodies(conn.Named(EventMessageReceived)))
	assert.Len(t, store.ByRoom("u1_u2"), 1)
}

func TestSession_DispatchRejectsMalformedInput(t *testing.T) {
	h, _, _ := newTestHandler(&fakeStore{}, "u1", "u2")
	conn := newFakeConn("c1")
	s := h.NewSession(conn)

	assert.Error(t, s.Dispatch(context.Background(), EventSendMessage, json.RawMessage(`{"message":`)))
	assert.Error(t, s.Dispatch(context.Background(), "typing", json.RawMessage(`{}`)))

	events := conn.Events()
	require.Len(t, events, 2)
	for _, evt := range events {
		assert.Equal(t, ReasonBadRequest, errorReason(t, evt))
	}
	assert.Equal(t, StateConnected, s.State())
}

func TestSession_BoundIdentityRejectsOtherSenders(t *testing.T) {
	store := &fakeStore{}
	h, reg, resolver := newTestHandler(store, "u1", "u2")
	impostorConn, peerConn := newFakeConn("impostor"), newFakeConn("peer")
	require.NoError(t, h.NewSession(peerConn).Join(context.Background(), "u2", "u1"))
	resolver.mu.Lock()
	resolver.calls = 0
	resolver.mu.Unlock()

	s := h.NewSession(impostorConn, WithIdentity(" u1 "))
	assert.Equal(t, "u1", s.Identity())

	require.ErrorIs(t, s.Join(context.Background(), "u2", "u1"), ErrSenderMismatch)
	_, err := s.Send(context.Background(), "u2", "u1", "soy otro")
	require.ErrorIs(t, err, ErrSenderMismatch)

	errs := impostorConn.Named(EventErrorMessage)
	require.Len(t, errs, 2)
	assert.Equal(t, ReasonForbidden, errorReason(t, errs[0]))
	assert.Equal(t, ReasonForbidden, errorReason(t, errs[1]))
	assert.Empty(t, peerConn.Events())
	assert.Empty(t, store.ByRoom("u1_u2"))
	assert.Equal(t, 1, reg.Members("u1_u2"))
	assert.Equal(t, StateConnected, s.State())
	assert.Zero(t, resolver.calls)

	_, err = s.Send(context.Background(), "u1", "u2", "soy yo")
	require.NoError(t, err)
	assert.Equal(t, []string{"soy yo"}, bodies(peerConn.Named(EventMessageReceived)))
}
