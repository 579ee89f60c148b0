package hub

import (
	"context"
	"time"

	"github.com/DoyleJ11/ark-scoreboard/internal/lobby"
	"github.com/DoyleJ11/ark-scoreboard/internal/store"
	"github.com/DoyleJ11/ark-scoreboard/pkg/types"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Publisher is the part of the session registry the hub needs.
type Publisher interface {
	Send(ctx context.Context, m lobby.Msg) bool
}

type HubMsg interface{ isHubMsg() }

// StateChanged asks for a stateUpdate to every session.
type StateChanged struct{}

// GlobalChanged asks for a globalStateUpdate to every session.
type GlobalChanged struct{}

// SendSnapshot delivers the current state to one session, preceded by
// Login when it is set, and then activates the session in the registry.
// Broadcasts handled before it never reach a session that joined pending.
type SendSnapshot struct {
	SessionID string
	Login     *types.LoginSuccess
}

type GetVersion struct {
	Reply chan int64
}

type ShutdownHub struct{}

func (StateChanged) isHubMsg()  {}
func (GlobalChanged) isHubMsg() {}
func (SendSnapshot) isHubMsg()  {}
func (GetVersion) isHubMsg()    {}
func (ShutdownHub) isHubMsg()   {}

const readTimeout = 5 * time.Second

// Hub turns change notifications into frames. It reads the store again for
// every message it handles, one at a time, so the last frame a session
// receives always reflects the newest committed state.
type Hub struct {
	inbox   chan HubMsg
	store   store.Store
	out     Publisher
	log     *zap.Logger
	version int64
	clock   clockwork.Clock
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(parent context.Context, st store.Store, out Publisher, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan HubMsg, 256),
		store:  st,
		out:    out,
		log:    log,
		clock:  clockwork.NewRealClock(),
		ctx:    ctx,
		cancel: cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Done is closed once the hub stops.
func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case StateChanged:
				h.broadcastState()

			case GlobalChanged:
				h.broadcastGlobal()

			case SendSnapshot:
				h.admit(msg)

			case GetVersion:
				msg.Reply <- h.version

			case ShutdownHub:
				h.cancel()
				return
			}
		}
	}
}

func (h *Hub) broadcastState() {
	ctx, cancel := context.WithTimeout(h.ctx, readTimeout)
	defer cancel()

	teams, err := h.store.ListTeams(ctx)
	if err != nil {
		h.log.Error("read teams for broadcast", zap.Error(err))
		return
	}
	h.version++
	h.publish(lobby.ToAll(), types.ServerMessage{
		Type:    types.EvtStateUpdate,
		Version: h.version,
		Data:    types.NewTeamViews(teams),
	})
}

func (h *Hub) broadcastGlobal() {
	ctx, cancel := context.WithTimeout(h.ctx, readTimeout)
	defer cancel()

	g, err := h.store.GetGlobal(ctx)
	if err != nil {
		h.log.Error("read global for broadcast", zap.Error(err))
		return
	}
	h.publish(lobby.ToAll(), types.ServerMessage{
		Type: types.EvtGlobalStateUpdate,
		Data: types.NewGlobalView(g, h.clock.Now()),
	})
}

func (h *Hub) sendSnapshot(msg SendSnapshot) {
	to := lobby.ToSession(msg.SessionID)
	if msg.Login != nil {
		h.publish(to, types.ServerMessage{Type: types.EvtLoginSuccess, Data: *msg.Login})
	}

	ctx, cancel := context.WithTimeout(h.ctx, readTimeout)
	defer cancel()

	teams, err := h.store.ListTeams(ctx)
	if err != nil {
		h.log.Error("read teams for snapshot", zap.String("session_id", msg.SessionID), zap.Error(err))
		return
	}
	h.publish(to, types.ServerMessage{
		Type:    types.EvtStateUpdate,
		Version: h.version,
		Data:    types.NewTeamViews(teams),
	})

	g, err := h.store.GetGlobal(ctx)
	if err != nil {
		h.log.Error("read global for snapshot", zap.String("session_id", msg.SessionID), zap.Error(err))
		return
	}
	h.publish(to, types.ServerMessage{Type: types.EvtGlobalStateUpdate, Data: types.NewGlobalView(g, h.clock.Now())})
}

func (h *Hub) admit(msg SendSnapshot) {
	h.sendSnapshot(msg)
	if !h.out.Send(h.ctx, lobby.Activate{SessionID: msg.SessionID}) {
		h.log.Debug("activate dropped, registry closed", zap.String("session_id", msg.SessionID))
	}
}

func (h *Hub) publish(t lobby.Target, msg types.ServerMessage) {
	if !h.out.Send(h.ctx, lobby.Publish{Target: t, Msg: msg}) {
		h.log.Debug("publish dropped, registry closed", zap.String("type", msg.Type))
	}
}

func (h *Hub) send(ctx context.Context, m HubMsg) bool {
	if h.ctx.Err() != nil {
		return false
	}
	select {
	case h.inbox <- m:
		return true
	case <-ctx.Done():
		return false
	case <-h.ctx.Done():
		return false
	}
}

// NotifyState queues a team state broadcast.
func (h *Hub) NotifyState(ctx context.Context) bool { return h.send(ctx, StateChanged{}) }

// NotifyGlobal queues a countdown broadcast.
func (h *Hub) NotifyGlobal(ctx context.Context) bool { return h.send(ctx, GlobalChanged{}) }

// Version returns the version of the latest state broadcast.
func (h *Hub) Version(ctx context.Context) (int64, bool) {
	reply := make(chan int64, 1)
	if !h.send(ctx, GetVersion{Reply: reply}) {
		return 0, false
	}
	select {
	case v := <-reply:
		return v, true
	case <-ctx.Done():
		return 0, false
	case <-h.ctx.Done():
		return 0, false
	}
}

func (h *Hub) SendSnapshot(ctx context.Context, sessionID string, login *types.LoginSuccess) bool {
	return h.send(ctx, SendSnapshot{SessionID: sessionID, Login: login})
}
