package lobby

import (
	"context"

	"github.com/DoyleJ11/ark-scoreboard/pkg/types"
	"go.uber.org/zap"
)

type Role string

const (
	RoleTeam     Role = "team"
	RoleObserver Role = "observer"
)

const ObserverGroup = "observer"

// Session is an authenticated connection.
type Session struct {
	ID     string
	Role   Role
	TeamID string
}

func (s Session) Group() string {
	if s.Role == RoleObserver {
		return ObserverGroup
	}
	return "team:" + s.TeamID
}

// Target addresses a Publish. The zero value reaches every session.
type Target struct {
	SessionID string
	Group     string
}

func ToAll() Target              { return Target{} }
func ToSession(id string) Target { return Target{SessionID: id} }

type Msg interface{ isLobbyMsg() }

// Join registers a session, or moves an already joined session to a new
// role. Outbox is owned by the lobby from then on and is closed on Leave,
// Shutdown, or when the session is dropped for being slow. A Pending session
// receives only messages addressed to it until an Activate for it arrives.
type Join struct {
	Session Session
	Outbox  chan types.ServerMessage
	Pending bool
}

func (Join) isLobbyMsg() {}

// Activate lets a pending session receive broadcasts.
type Activate struct{ SessionID string }

func (Activate) isLobbyMsg() {}

type Leave struct{ SessionID string }

func (Leave) isLobbyMsg() {}

type Publish struct {
	Target Target
	Msg    types.ServerMessage
}

func (Publish) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

type View struct {
	NumClients int
	Groups     map[string]int
}

type member struct {
	session Session
	outbox  chan types.ServerMessage
	pending bool
}

type Lobby struct {
	inbox   chan Msg
	members map[string]member
	dropped map[string]bool // dropped as slow, until their Leave arrives
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewLobby(parent context.Context, log *zap.Logger) *Lobby {
	ctx, cancel := context.WithCancel(parent)

	l := &Lobby{
		inbox:   make(chan Msg, 256),
		members: make(map[string]member),
		dropped: make(map[string]bool),
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}

	go l.loop()
	return l
}

func (l *Lobby) loop() {
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				if l.dropped[msg.Session.ID] {
					break
				}
				if cur, ok := l.members[msg.Session.ID]; ok {
					cur.session = msg.Session
					cur.pending = msg.Pending
					l.members[msg.Session.ID] = cur
					break
				}
				l.members[msg.Session.ID] = member{session: msg.Session, outbox: msg.Outbox, pending: msg.Pending}
				l.log.Debug("session joined",
					zap.String("session_id", msg.Session.ID),
					zap.String("group", msg.Session.Group()),
					zap.Int("sessions", len(l.members)))

			case Activate:
				if cur, ok := l.members[msg.SessionID]; ok {
					cur.pending = false
					l.members[msg.SessionID] = cur
				}

			case Leave:
				delete(l.dropped, msg.SessionID)
				if cur, ok := l.members[msg.SessionID]; ok {
					close(cur.outbox)
					delete(l.members, msg.SessionID)
				}

			case Publish:
				l.publish(msg.Target, msg.Msg)

			case GetState:
				v := View{NumClients: len(l.members), Groups: make(map[string]int)}
				for _, mem := range l.members {
					v.Groups[mem.session.Group()]++
				}
				msg.Reply <- v

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

func (l *Lobby) shutdown() {
	for id, mem := range l.members {
		close(mem.outbox)
		delete(l.members, id)
	}
	l.cancel()
}

func (l *Lobby) publish(t Target, msg types.ServerMessage) {
	for id, mem := range l.members {
		if t.SessionID != "" && id != t.SessionID {
			continue
		}
		if t.SessionID == "" && mem.pending {
			continue
		}
		if t.Group != "" && mem.session.Group() != t.Group {
			continue
		}
		select {
		case mem.outbox <- msg:
		default:
			// Slow client: drop it rather than stall everyone else.
			l.log.Warn("session outbox full, dropping", zap.String("session_id", id))
			close(mem.outbox)
			delete(l.members, id)
			l.dropped[id] = true
		}
	}
}

// Inbox exposes the lobby's message channel.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

// Send delivers m unless ctx or the lobby is done first.
func (l *Lobby) Send(ctx context.Context, m Msg) bool {
	if l.ctx.Err() != nil {
		return false
	}
	select {
	case l.inbox <- m:
		return true
	case <-ctx.Done():
		return false
	case <-l.ctx.Done():
		return false
	}
}

// Done is closed once the lobby stops.
func (l *Lobby) Done() <-chan struct{} { return l.ctx.Done() }
