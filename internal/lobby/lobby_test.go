package lobby

import (
	"context"
	"testing"
	"time"

	"github.com/DoyleJ11/ark-scoreboard/pkg/types"
	"go.uber.org/zap"
)

// helper: receive one message with a timeout so tests never hang
func recvMsg(t *testing.T, ch <-chan types.ServerMessage, within time.Duration) types.ServerMessage {
	t.Helper()
	select {
	case m, ok := <-ch:
		if !ok {
			t.Fatalf("outbox closed unexpectedly")
		}
		return m
	case <-time.After(within):
		t.Fatalf("timed out waiting for message")
		return types.ServerMessage{} // unreachable
	}
}

func recvNoMsg(t *testing.T, ch <-chan types.ServerMessage, within time.Duration) {
	t.Helper()
	select {
	case m, ok := <-ch:
		if !ok {
			t.Fatalf("outbox closed unexpectedly")
		}
		t.Fatalf("expected no message within %v, but got: %+v", within, m)
	case <-time.After(within):
		// good: nothing delivered
	}
}

func recvClosed(t *testing.T, ch <-chan types.ServerMessage, within time.Duration) {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("outbox not closed within %v", within)
		}
	}
}

func recvView(t *testing.T, l *Lobby) View {
	t.Helper()
	reply := make(chan View, 1)
	l.Inbox() <- GetState{Reply: reply}
	select {
	case v := <-reply:
		return v
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("timed out waiting for view")
		return View{} // unreachable
	}
}

func newTestLobby(t *testing.T) *Lobby {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewLobby(ctx, zap.NewNop())
}

func join(l *Lobby, s Session, buf int) chan types.ServerMessage {
	out := make(chan types.ServerMessage, buf)
	l.Inbox() <- Join{Session: s, Outbox: out}
	return out
}

func TestLobby_PublishTargets(t *testing.T) {
	l := newTestLobby(t)

	a := join(l, Session{ID: "s1", Role: RoleTeam, TeamID: "A"}, 4)
	b := join(l, Session{ID: "s2", Role: RoleTeam, TeamID: "B"}, 4)
	ref := join(l, Session{ID: "s3", Role: RoleObserver}, 4)

	// all
	l.Inbox() <- Publish{Target: ToAll(), Msg: types.ServerMessage{Type: types.EvtStateUpdate, Version: 1}}
	for _, ch := range []chan types.ServerMessage{a, b, ref} {
		if m := recvMsg(t, ch, 100*time.Millisecond); m.Version != 1 {
			t.Fatalf("broadcast: want version 1, got %+v", m)
		}
	}

	// one session
	l.Inbox() <- Publish{Target: ToSession("s2"), Msg: types.ServerMessage{Type: types.EvtLoginSuccess}}
	if m := recvMsg(t, b, 100*time.Millisecond); m.Type != types.EvtLoginSuccess {
		t.Fatalf("private: got %+v", m)
	}
	recvNoMsg(t, a, 50*time.Millisecond)
	recvNoMsg(t, ref, 50*time.Millisecond)

	// one group
	l.Inbox() <- Publish{Target: Target{Group: ObserverGroup}, Msg: types.ServerMessage{Type: types.EvtGlobalStateUpdate}}
	if m := recvMsg(t, ref, 100*time.Millisecond); m.Type != types.EvtGlobalStateUpdate {
		t.Fatalf("group: got %+v", m)
	}
	recvNoMsg(t, a, 50*time.Millisecond)
	recvNoMsg(t, b, 50*time.Millisecond)
}

func TestLobby_DropSlowClient(t *testing.T) {
	l := newTestLobby(t)

	slow := join(l, Session{ID: "slow", Role: RoleTeam, TeamID: "A"}, 1)
	fast := join(l, Session{ID: "fast", Role: RoleTeam, TeamID: "B"}, 4)

	l.Inbox() <- Publish{Msg: types.ServerMessage{Type: types.EvtStateUpdate, Version: 1}}
	l.Inbox() <- Publish{Msg: types.ServerMessage{Type: types.EvtStateUpdate, Version: 2}}

	view := recvView(t, l)
	if view.NumClients != 1 {
		t.Fatalf("expected slow client to be dropped; NumClients=%d", view.NumClients)
	}
	recvMsg(t, fast, 100*time.Millisecond)
	recvMsg(t, fast, 100*time.Millisecond)
	recvMsg(t, slow, 100*time.Millisecond)
	recvClosed(t, slow, 100*time.Millisecond)

	// A dropped session cannot rejoin with its closed outbox.
	l.Inbox() <- Join{Session: Session{ID: "slow", Role: RoleTeam, TeamID: "A"}, Outbox: slow}
	if v := recvView(t, l); v.NumClients != 1 {
		t.Fatalf("dropped session rejoined; NumClients=%d", v.NumClients)
	}
	// Its connection closing later sends a Leave, which changes nothing.
	l.Inbox() <- Leave{SessionID: "slow"}
	if v := recvView(t, l); v.NumClients != 1 {
		t.Fatalf("leave of dropped session changed members; NumClients=%d", v.NumClients)
	}
	l.Inbox() <- Publish{Msg: types.ServerMessage{Type: types.EvtStateUpdate, Version: 3}}
	if m := recvMsg(t, fast, 100*time.Millisecond); m.Version != 3 {
		t.Fatalf("fast session missed publish after leave, got %+v", m)
	}
}

func TestLobby_RejoinMovesGroup(t *testing.T) {
	l := newTestLobby(t)

	out := join(l, Session{ID: "s1", Role: RoleTeam, TeamID: "A"}, 4)
	l.Inbox() <- Join{Session: Session{ID: "s1", Role: RoleObserver}, Outbox: out}

	v := recvView(t, l)
	if v.NumClients != 1 || v.Groups[ObserverGroup] != 1 || v.Groups["team:A"] != 0 {
		t.Fatalf("want one observer session, got %+v", v)
	}

	l.Inbox() <- Publish{Target: Target{Group: ObserverGroup}, Msg: types.ServerMessage{Type: types.EvtGlobalStateUpdate}}
	recvMsg(t, out, 100*time.Millisecond)
}

func TestLobby_PendingSessionWaitsForActivate(t *testing.T) {
	l := newTestLobby(t)

	out := make(chan types.ServerMessage, 4)
	l.Inbox() <- Join{Session: Session{ID: "s1", Role: RoleTeam, TeamID: "A"}, Outbox: out, Pending: true}

	l.Inbox() <- Publish{Msg: types.ServerMessage{Type: types.EvtStateUpdate, Version: 1}}
	l.Inbox() <- Publish{Target: Target{Group: "team:A"}, Msg: types.ServerMessage{Type: types.EvtStateUpdate, Version: 2}}
	l.Inbox() <- Publish{Target: ToSession("s1"), Msg: types.ServerMessage{Type: types.EvtLoginSuccess}}
	if m := recvMsg(t, out, 100*time.Millisecond); m.Type != types.EvtLoginSuccess {
		t.Fatalf("pending session got %+v before its own message", m)
	}
	recvNoMsg(t, out, 50*time.Millisecond)

	l.Inbox() <- Activate{SessionID: "s1"}
	l.Inbox() <- Publish{Msg: types.ServerMessage{Type: types.EvtStateUpdate, Version: 3}}
	if m := recvMsg(t, out, 100*time.Millisecond); m.Version != 3 {
		t.Fatalf("active session want version 3, got %+v", m)
	}
}

func TestLobby_LeaveClosesOutbox(t *testing.T) {
	l := newTestLobby(t)

	out := join(l, Session{ID: "s1", Role: RoleTeam, TeamID: "A"}, 4)
	l.Inbox() <- Leave{SessionID: "s1"}
	recvClosed(t, out, 100*time.Millisecond)

	if v := recvView(t, l); v.NumClients != 0 {
		t.Fatalf("want no sessions, got %d", v.NumClients)
	}
}

func TestLobby_Shutdown_ClosesAllAndRejectsSend(t *testing.T) {
	l := newTestLobby(t)

	a := join(l, Session{ID: "s1", Role: RoleTeam, TeamID: "A"}, 4)
	b := join(l, Session{ID: "s2", Role: RoleObserver}, 4)
	l.Inbox() <- Shutdown{}

	recvClosed(t, a, 200*time.Millisecond)
	recvClosed(t, b, 200*time.Millisecond)

	select {
	case <-l.Done():
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("lobby not done after shutdown")
	}
	if l.Send(context.Background(), Leave{SessionID: "s1"}) {
		t.Fatalf("send after shutdown should fail")
	}
}
