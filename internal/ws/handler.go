package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/DoyleJ11/ark-scoreboard/internal/engine"
	"github.com/DoyleJ11/ark-scoreboard/internal/game"
	"github.com/DoyleJ11/ark-scoreboard/internal/hub"
	"github.com/DoyleJ11/ark-scoreboard/internal/lobby"
	"github.com/DoyleJ11/ark-scoreboard/internal/store"
	"github.com/DoyleJ11/ark-scoreboard/pkg/types"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Options struct {
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	OutboxSize     int
	OriginPatterns []string
}

func (o Options) withDefaults() Options {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.OutboxSize <= 0 {
		o.OutboxSize = 32
	}
	return o
}

// Handler upgrades to a websocket and serves one session until it
// disconnects.
func Handler(svc *game.Service, lb *lobby.Lobby, h *hub.Hub, opts Options, log *zap.Logger) http.HandlerFunc {
	opts = opts.withDefaults()
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			log.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		id := uuid.NewString()
		c := &client{
			id:   id,
			conn: conn,
			out:  make(chan types.ServerMessage, opts.OutboxSize),
			svc:  svc,
			lb:   lb,
			hub:  h,
			opts: opts,
			log:  log.With(zap.String("session_id", id)),
		}
		c.log.Debug("connection opened", zap.String("remote_addr", r.RemoteAddr))

		defer func() {
			if c.who != nil {
				lb.Send(context.Background(), lobby.Leave{SessionID: c.id})
			}
			c.log.Debug("connection closed")
		}()

		go c.writeLoop(ctx, cancel)
		if opts.PingInterval > 0 {
			go c.pingLoop(ctx, cancel)
		}
		c.readLoop(ctx)
	}
}

type client struct {
	id   string
	conn *websocket.Conn
	out  chan types.ServerMessage
	who  *game.Identity

	svc  *game.Service
	lb   *lobby.Lobby
	hub  *hub.Hub
	opts Options
	log  *zap.Logger
}

func (c *client) readLoop(ctx context.Context) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if ctx.Err() == nil {
					c.log.Debug("read failed", zap.Error(err))
				}
			}
			return
		}

		var cm types.ClientMessage
		if err := json.Unmarshal(data, &cm); err != nil {
			c.replyError(ctx, "bad json")
			continue
		}
		c.dispatch(ctx, cm)
	}
}

// writeLoop drains the outbox the registry publishes into. A closed outbox
// means the registry dropped the session.
func (c *client) writeLoop(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.out:
			if !ok {
				c.conn.Close(websocket.StatusPolicyViolation, "session dropped")
				return
			}
			if err := c.write(ctx, msg); err != nil {
				c.log.Debug("write failed", zap.Error(err))
				return
			}
		}
	}
}

func (c *client) pingLoop(ctx context.Context, cancel context.CancelFunc) {
	t := time.NewTicker(c.opts.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, pcancel := context.WithTimeout(ctx, c.opts.WriteTimeout)
			err := c.conn.Ping(pctx)
			pcancel()
			if err != nil {
				c.log.Debug("ping failed", zap.Error(err))
				cancel()
				return
			}
		}
	}
}

func (c *client) write(ctx context.Context, msg types.ServerMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, c.opts.WriteTimeout)
	defer cancel()
	return c.conn.Write(wctx, websocket.MessageText, payload)
}

// reply writes straight to this connection. The outbox belongs to the
// registry once the session joined, so caller-only frames bypass it.
func (c *client) reply(ctx context.Context, msg types.ServerMessage) {
	if err := c.write(ctx, msg); err != nil {
		c.log.Debug("reply failed", zap.String("type", msg.Type), zap.Error(err))
	}
}

func (c *client) replyError(ctx context.Context, text string) {
	c.reply(ctx, types.ServerMessage{Type: types.EvtError, Error: text})
}

func (c *client) dispatch(ctx context.Context, cm types.ClientMessage) {
	log := c.log.With(zap.String("event", cm.Type))

	var err error
	switch cm.Type {
	case types.EvtLogin:
		var req types.LoginRequest
		if err := decode(cm.Data, &req); err != nil {
			c.replyError(ctx, err.Error())
			return
		}
		c.login(ctx, req)
		return

	case types.EvtUpdateProgress:
		var req types.UpdateProgressRequest
		if err := decode(cm.Data, &req); err != nil {
			c.replyError(ctx, err.Error())
			return
		}
		err = c.svc.SetProgress(ctx, c.who, req.TeamID, req.Index, req.Checked)

	case types.EvtUpdateScoreField:
		var req types.UpdateScoreFieldRequest
		if err := decode(cm.Data, &req); err != nil {
			c.replyError(ctx, err.Error())
			return
		}
		err = c.svc.SetScoreField(ctx, c.who, req.TeamID, req.FieldID, req.Value)

	case types.EvtTryLockFirst:
		var req types.TryLockFirstRequest
		if err := decode(cm.Data, &req); err != nil {
			c.replyError(ctx, err.Error())
			return
		}
		_, err = c.svc.TryClaim(ctx, c.who, engine.Claim{
			TeamID:          req.TeamID,
			FieldID:         req.FieldID,
			WinValue:        req.WinValue,
			LoseValue:       req.LoseValue,
			OpponentTeamID:  req.OpponentTeamID,
			OpponentFieldID: req.OpponentFieldID,
		})

	case types.EvtAdminStartTimer:
		_, err = c.svc.StartTimer(ctx, c.who)

	case types.EvtAdminEndGame:
		_, err = c.svc.EndGame(ctx, c.who)

	default:
		c.replyError(ctx, "unknown event type")
		return
	}

	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		log.Warn("record not found", zap.Error(err))
	case errors.Is(err, store.ErrUnavailable):
		log.Error("store unavailable", zap.Error(err))
		c.replyError(ctx, "store unavailable, try again")
	default:
		log.Debug("request rejected", zap.Error(err))
		c.replyError(ctx, err.Error())
	}
}

func (c *client) login(ctx context.Context, req types.LoginRequest) {
	id, err := c.svc.Login(ctx, req.TeamID, req.Password)
	if errors.Is(err, game.ErrAuthFailed) {
		c.log.Info("login failed", zap.String("team_id", req.TeamID))
		c.reply(ctx, types.ServerMessage{Type: types.EvtLoginError, Error: "Invalid team ID or password"})
		return
	}
	if err != nil {
		c.log.Error("login", zap.Error(err))
		c.replyError(ctx, "store unavailable, try again")
		return
	}

	sess := lobby.Session{ID: c.id, Role: lobby.RoleTeam, TeamID: id.TeamID}
	if id.Observer {
		sess.Role = lobby.RoleObserver
	}
	if !c.lb.Send(ctx, lobby.Join{Session: sess, Outbox: c.out, Pending: true}) {
		return
	}
	c.who = &id
	c.log.Info("logged in", zap.String("team_id", id.TeamID), zap.Bool("observer", id.Observer))

	// The session joined pending: broadcasts the hub handles before this
	// snapshot skip it, and the hub activates it once the snapshot is out.
	c.hub.SendSnapshot(ctx, c.id, &types.LoginSuccess{TeamID: id.TeamID, IsReferee: id.Observer})
}

var errBadPayload = errors.New("bad payload")

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errBadPayload
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errBadPayload
	}
	return nil
}
