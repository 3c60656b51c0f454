package web

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/GoMudEngine/ansitags"
	"github.com/GoMudEngine/palaver/internal/mudlog"
	"github.com/GoMudEngine/palaver/internal/usercommands"
	"github.com/GoMudEngine/palaver/internal/users"
	"github.com/GoMudEngine/palaver/internal/util"
	"github.com/GoMudEngine/palaver/internal/world"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 64

	droppedLogWidth = 80

	typingEndPrefix = `<npc_typing_end>`
	unknownCommand  = `That's not a command. Try <ansi fg="command">help</ansi>.`
)

type session struct {
	id    string
	user  *users.UserRecord
	conn  *websocket.Conn
	plain bool

	send      chan string
	done      chan struct{}
	closeOnce sync.Once
}

func (sess *session) close() {
	sess.closeOnce.Do(func() {
		close(sess.done)
		sess.conn.Close()
	})
}

// deliver queues text for the write pump. A client that can't keep up
// loses text rather than stalling the world loop.
func (sess *session) deliver(text string) {
	select {
	case <-sess.done:
	case sess.send <- text:
	default:
		mudlog.Warn("Web", "session", sess.id, "dropped", util.Truncate(text, droppedLogWidth))
	}
}

// render turns markup into what the client shows. Control markers pass
// through untouched.
func (sess *session) render(text string) string {
	if strings.HasPrefix(text, typingEndPrefix) {
		return text
	}
	if sess.plain {
		return ansitags.Parse(text, ansitags.StripTags)
	}
	return ansitags.Parse(text)
}

func (sess *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sess.close()
	}()

	for {
		select {
		case <-sess.done:
			sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			sess.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ``))
			return
		case text := <-sess.send:
			sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sess.conn.WriteMessage(websocket.TextMessage, []byte(sess.render(text))); err != nil {
				mudlog.Debug("Web", "session", sess.id, "write", err)
				return
			}
		case <-ticker.C:
			sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sess.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// spawnPoint is the configured spawn with any overrides from the query.
func (s *Server) spawnPoint(r *http.Request) (world.Position, error) {
	pos := s.spawn
	q := r.URL.Query()

	if w := q.Get(`world`); w != `` {
		pos.World = w
	}
	for key, dst := range map[string]*float64{`x`: &pos.X, `y`: &pos.Y, `z`: &pos.Z} {
		v := q.Get(key)
		if v == `` {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return pos, fmt.Errorf("%s is not a number: %q", key, v)
		}
		*dst = f
	}
	return pos, nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get(`name`))
	if name == `` {
		writeJSONError(w, http.StatusBadRequest, `bad_request`, `name is required`)
		return
	}

	pos, err := s.spawnPoint(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, `bad_request`, err.Error())
		return
	}

	plain, _ := strconv.ParseBool(r.URL.Query().Get(`plain`))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		mudlog.Error("Web", "upgrade", err)
		return
	}

	sess := &session{
		id:    uuid.NewString(),
		conn:  conn,
		plain: plain,
		send:  make(chan string, sendBuffer),
		done:  make(chan struct{}),
	}

	s.loop.Call(func() {
		sess.user = s.attach(sess, name, pos)
	})

	mudlog.Info("Web", "connected", name, "session", sess.id, "remote", r.RemoteAddr)

	go sess.writePump()
	s.readPump(sess)
	s.detach(sess)

	mudlog.Info("Web", "disconnected", name, "session", sess.id)
}

// attach runs on the world loop. A player reconnecting takes over their
// previous session.
func (s *Server) attach(sess *session, name string, pos world.Position) *users.UserRecord {
	rlm := s.commands.Realm

	u, ok := rlm.User(world.PlayerId(name))
	if !ok {
		u = users.NewUserRecord(name, pos)
		rlm.AddPlayer(u)
	}
	u.MoveTo(pos)
	u.SetOnline(true)
	u.SetAdmin(s.cfg.IsAdmin(name))

	s.lock.Lock()
	previous := s.sessions[string(u.Id())]
	s.sessions[string(u.Id())] = sess
	s.lock.Unlock()

	if previous != nil {
		previous.close()
	}

	u.SetConnection(sess.deliver)
	u.SendText(fmt.Sprintf(`Welcome, <ansi fg="username">%s</ansi>. Type <ansi fg="command">help</ansi> to see what you can do.`, u.Name()))

	return u
}

func (s *Server) readPump(sess *session) {
	sess.conn.SetReadLimit(maxMessageSize)
	sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	sess.conn.SetPongHandler(func(string) error {
		sess.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, data, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				mudlog.Debug("Web", "session", sess.id, "read", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		input := string(data)
		s.loop.Call(func() {
			handled, err := usercommands.Run(input, sess.user, s.commands)
			if !handled && err == nil && strings.TrimSpace(input) != `` {
				sess.user.SendText(unknownCommand)
			}
		})
	}
}

// detach leaves the player's conversation unless a newer session took
// over the player.
func (s *Server) detach(sess *session) {
	sess.close()

	s.lock.Lock()
	current := s.sessions[string(sess.user.Id())] == sess
	if current {
		delete(s.sessions, string(sess.user.Id()))
	}
	s.lock.Unlock()

	if !current {
		return
	}

	s.loop.Call(func() {
		u := sess.user
		u.SetConnection(nil)
		u.SetOnline(false)

		m := s.commands.Manager
		if c := m.ConversationOf(u.Id()); c != nil {
			m.RemovePlayer(u, c)
		}
	})
}
