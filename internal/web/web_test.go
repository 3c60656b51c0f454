package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/GoMudEngine/palaver/internal/configs"
	"github.com/GoMudEngine/palaver/internal/conversations"
	"github.com/GoMudEngine/palaver/internal/language"
	"github.com/GoMudEngine/palaver/internal/mobinterfaces"
	"github.com/GoMudEngine/palaver/internal/realm"
	"github.com/GoMudEngine/palaver/internal/scheduler"
	"github.com/GoMudEngine/palaver/internal/usercommands"
	"github.com/GoMudEngine/palaver/internal/users"
	"github.com/GoMudEngine/palaver/internal/world"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mutedGenerator struct{}

func (mutedGenerator) NextSpeaker(context.Context, conversations.Snapshot) (string, error) {
	return ``, nil
}

func (mutedGenerator) BehavioralDirective(context.Context, conversations.Snapshot, string) (string, error) {
	return ``, nil
}

func (mutedGenerator) NPCResponse(context.Context, string, []string, bool) (string, error) {
	return ``, nil
}

func (mutedGenerator) SummarizeConversation(context.Context, conversations.Snapshot) error {
	return nil
}

func (mutedGenerator) SummarizeForNPC(context.Context, []conversations.Message, string) error {
	return nil
}

func (mutedGenerator) Goodbye(context.Context, string, []conversations.Message) (string, error) {
	return ``, nil
}

var spawn = world.Position{World: `overworld`}

type fixture struct {
	loop   *scheduler.Loop
	realm  *realm.Realm
	env    *usercommands.Env
	server *Server
	http   *httptest.Server
}

func newFixture(t *testing.T, token string) *fixture {
	t.Helper()

	cfg := configs.Default().Conversations
	cfg.ChatEnabled = false
	cfg.ProximityCheckInterval = 3600

	loop := scheduler.NewLoop(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)

	r := realm.New()
	notices := language.NewNotices(`en`)
	m, err := conversations.NewManager(conversations.Options{
		Loop:      loop,
		Directory: r,
		Generator: mutedGenerator{},
		Notices:   notices,
		Config:    &cfg,
	})
	require.NoError(t, err)

	f := &fixture{
		loop:  loop,
		realm: r,
		env:   &usercommands.Env{Manager: m, Realm: r, Notices: notices},
	}
	f.server = New(Options{
		Loop:     loop,
		Commands: f.env,
		Server:   configs.Server{Admins: []string{`Root`}, AdminToken: configs.ConfigSecret(token)},
		Spawn:    spawn,
	})
	f.http = httptest.NewServer(f.server.Router())

	t.Cleanup(func() {
		f.server.Shutdown(context.Background())
		f.http.Close()
		cancel()
	})
	return f
}

func (f *fixture) npc(name string, x float64) *mobinterfaces.Mob {
	m := mobinterfaces.NewMob(name, world.Position{World: spawn.World, X: x})
	f.realm.AddNPC(m)
	return m
}

func (f *fixture) startConversation(t *testing.T) *conversations.Conversation {
	t.Helper()
	alice := users.NewUserRecord(`Alice`, spawn)
	f.realm.AddPlayer(alice)
	guard := f.npc(`Guard`, 1)

	var c *conversations.Conversation
	f.loop.Call(func() { c, _ = f.env.Manager.Start(alice, guard) })
	require.NotNil(t, c)
	return c
}

func (f *fixture) request(t *testing.T, method, path, token string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, f.http.URL+path, nil)
	require.NoError(t, err)
	if token != `` {
		req.Header.Set(`Authorization`, `Bearer `+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func (f *fixture) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := `ws` + strings.TrimPrefix(f.http.URL, `http`) + `/ws?` + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	return conn
}

// readUntil reads frames until one contains want.
func readUntil(t *testing.T, conn *websocket.Conn, want string) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %q", want)
		if strings.Contains(string(data), want) {
			return string(data)
		}
	}
}

func TestPing(t *testing.T) {
	f := newFixture(t, ``)
	status, body := f.request(t, http.MethodGet, `/ping`, ``)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, `pong`, string(body))
}

func TestRequestIdHeader(t *testing.T) {
	f := newFixture(t, ``)

	resp, err := http.Get(f.http.URL + `/ping`)
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get(headerRequestId))

	req, _ := http.NewRequest(http.MethodGet, f.http.URL+`/ping`, nil)
	req.Header.Set(headerRequestId, `abc`)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, `abc`, resp.Header.Get(headerRequestId))
}

func TestAPIToken(t *testing.T) {
	f := newFixture(t, `s3cret`)

	status, body := f.request(t, http.MethodGet, `/api/conversations`, ``)
	assert.Equal(t, http.StatusUnauthorized, status)

	var env errorEnvelope
	require.NoError(t, json.Unmarshal(body, &env))
	assert.Equal(t, `unauthorized`, env.Error.Code)

	status, _ = f.request(t, http.MethodGet, `/api/conversations`, `wrong`)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = f.request(t, http.MethodGet, `/api/conversations`, `s3cret`)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(body))
}

func TestConversationAPI(t *testing.T) {
	f := newFixture(t, ``)
	c := f.startConversation(t)
	f.loop.Call(func() { f.env.Manager.FeedSystemMessage(c, `A bell rings.`) })
	id := strconv.Itoa(c.Id)

	status, body := f.request(t, http.MethodGet, `/api/conversations`, ``)
	require.Equal(t, http.StatusOK, status)

	var list []conversationView
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 1)
	assert.Equal(t, c.Id, list[0].Id)
	assert.Equal(t, []string{`Alice`}, list[0].Players)
	assert.Equal(t, []string{`Guard`}, list[0].NPCs)
	assert.Empty(t, list[0].History)

	status, body = f.request(t, http.MethodGet, `/api/conversations/`+id, ``)
	require.Equal(t, http.StatusOK, status)

	var detail conversationView
	require.NoError(t, json.Unmarshal(body, &detail))
	require.NotEmpty(t, detail.History)
	assert.Equal(t, `A bell rings.`, detail.History[len(detail.History)-1].Content)

	status, _ = f.request(t, http.MethodGet, `/api/conversations/999`, ``)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = f.request(t, http.MethodGet, `/api/conversations/abc`, ``)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = f.request(t, http.MethodPost, `/api/conversations/`+id+`/end?skipMemory=true`, ``)
	assert.Equal(t, http.StatusAccepted, status)

	require.Eventually(t, func() bool {
		var gone bool
		f.loop.Call(func() { gone = f.env.Manager.ById(c.Id) == nil })
		return gone
	}, time.Second, 5*time.Millisecond)

	status, _ = f.request(t, http.MethodPost, `/api/conversations/`+id+`/end`, ``)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestWebSocketRequiresName(t *testing.T) {
	f := newFixture(t, ``)
	status, _ := f.request(t, http.MethodGet, `/ws`, ``)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = f.request(t, http.MethodGet, `/ws?name=Alice&x=far`, ``)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestWebSocketSession(t *testing.T) {
	f := newFixture(t, ``)
	f.npc(`Guard`, 2)

	conn := f.dial(t, `name=Alice&plain=true&x=1`)
	welcome := readUntil(t, conn, `Welcome`)
	assert.NotContains(t, welcome, `<ansi`)

	u, ok := f.realm.User(`Alice`)
	require.True(t, ok)
	pos, online := u.Position()
	assert.True(t, online)
	assert.Equal(t, 1.0, pos.X)
	assert.False(t, u.IsAdmin())
	assert.Equal(t, 1, f.server.SessionCount())

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`dance wildly`)))
	readUntil(t, conn, `That's not a command`)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`say Good morning, Guard.`)))
	readUntil(t, conn, `You say`)

	var inConversation bool
	f.loop.Call(func() { inConversation = f.env.Manager.InConversation(u.Id()) })
	assert.True(t, inConversation)

	conn.Close()

	require.Eventually(t, func() bool {
		var left bool
		f.loop.Call(func() { left = !f.env.Manager.InConversation(u.Id()) })
		return left && !u.Online()
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, f.server.SessionCount())
}

func TestWebSocketReconnectTakesOver(t *testing.T) {
	f := newFixture(t, ``)

	first := f.dial(t, `name=Root`)
	readUntil(t, first, `Welcome`)

	second := f.dial(t, `name=Root`)
	readUntil(t, second, `Welcome`)
	defer second.Close()

	// the old socket gets closed under it
	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			break
		}
	}

	u, ok := f.realm.User(`Root`)
	require.True(t, ok)
	assert.True(t, u.IsAdmin())
	assert.Eventually(t, func() bool { return u.Online() && f.server.SessionCount() == 1 }, time.Second, 5*time.Millisecond)
}
