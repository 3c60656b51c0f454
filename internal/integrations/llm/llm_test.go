package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/GoMudEngine/palaver/internal/configs"
	"github.com/GoMudEngine/palaver/internal/conversations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	lock     sync.Mutex
	requests []map[string]any
	paths    []string
	auth     []string
	reply    func(req map[string]any) (int, string)
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	json.NewDecoder(r.Body).Decode(&body)

	f.lock.Lock()
	f.requests = append(f.requests, body)
	f.paths = append(f.paths, r.URL.Path)
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	reply := f.reply
	f.lock.Unlock()

	status, text := reply(body)
	w.WriteHeader(status)
	fmt.Fprint(w, text)
}

func (f *fakeBackend) count() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return len(f.requests)
}

func (f *fakeBackend) last() map[string]any {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.requests[len(f.requests)-1]
}

// ollamaReply answers every request with text as a single body.
func ollamaReply(text string) func(map[string]any) (int, string) {
	return func(map[string]any) (int, string) {
		b, _ := json.Marshal(map[string]any{
			"message":           map[string]string{"role": "assistant", "content": text},
			"done":              true,
			"prompt_eval_count": 10,
			"eval_count":        4,
		})
		return http.StatusOK, string(b)
	}
}

func systemPrompt(req map[string]any) string {
	msgs := req["messages"].([]any)
	return msgs[0].(map[string]any)["content"].(string)
}

type fakeMemory struct {
	lock     sync.Mutex
	memories map[string]string
	sig      map[string]int
}

func (f *fakeMemory) AddMemory(ctx context.Context, owner, content string, significance int) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.memories[owner] = content
	f.sig[owner] = significance
	return nil
}

type fakeCast struct{}

func (fakeCast) Relationships(npc string) []string {
	if npc == `Guard` {
		return []string{`Guard distrusts Smith.`}
	}
	return nil
}
func (fakeCast) Personality(string) string  { return `Gruff.` }
func (fakeCast) IsGeneric(name string) bool { return name == `Beggar` }
func (fakeCast) Farewell(string) string     { return `Be off with you.` }
func (fakeCast) Greeting(string) string     { return `` }

func newTestClient(t *testing.T, adjust func(cfg *configs.IntegrationsLLM)) (*Client, *fakeBackend, *fakeMemory) {
	t.Helper()

	backend := &fakeBackend{reply: ollamaReply(`Halt!`)}
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)

	cfg := configs.Default().Integrations.LLM
	cfg.BaseURL = configs.ConfigString(server.URL)
	cfg.LowCostModel = `small`
	if adjust != nil {
		adjust(&cfg)
	}

	memory := &fakeMemory{memories: map[string]string{}, sig: map[string]int{}}
	c := New(Options{
		Config:     cfg,
		Characters: fakeCast{},
		Memory:     memory,
	})
	return c, backend, memory
}

func history(lines ...string) []conversations.Message {
	out := []conversations.Message{}
	for _, l := range lines {
		out = append(out, conversations.NewMessage(conversations.RoleUser, l))
	}
	return out
}

func TestNextSpeaker(t *testing.T) {
	ctx := context.Background()

	t.Run("single candidate skips the request", func(t *testing.T) {
		c, backend, _ := newTestClient(t, nil)
		name, err := c.NextSpeaker(ctx, conversations.Snapshot{NPCNames: []string{`Guard`, `Smith`}, MutedNames: []string{`smith`}})
		require.NoError(t, err)
		assert.Equal(t, `Guard`, name)
		assert.Equal(t, 0, backend.count())
	})

	t.Run("nobody to pick", func(t *testing.T) {
		c, _, _ := newTestClient(t, nil)
		name, err := c.NextSpeaker(ctx, conversations.Snapshot{})
		require.NoError(t, err)
		assert.Equal(t, ``, name)
	})

	t.Run("answer is matched to a member", func(t *testing.T) {
		c, backend, _ := newTestClient(t, nil)
		backend.reply = ollamaReply(`smith.`)
		name, err := c.NextSpeaker(ctx, conversations.Snapshot{
			NPCNames: []string{`Guard`, `Smith`},
			History:  history(`Alice: hello`),
		})
		require.NoError(t, err)
		assert.Equal(t, `Smith`, name)
		assert.Equal(t, `small`, backend.last()["model"])
		assert.Contains(t, systemPrompt(backend.last()), `Guard, Smith`)
	})

	t.Run("unknown answer falls back to the first name", func(t *testing.T) {
		c, backend, _ := newTestClient(t, nil)
		backend.reply = ollamaReply(`The innkeeper`)
		name, err := c.NextSpeaker(ctx, conversations.Snapshot{NPCNames: []string{`Guard`, `Smith`}})
		require.NoError(t, err)
		assert.Equal(t, `Guard`, name)
	})

	t.Run("failure falls back to the first name", func(t *testing.T) {
		c, backend, _ := newTestClient(t, nil)
		backend.reply = func(map[string]any) (int, string) { return http.StatusInternalServerError, `boom` }
		name, err := c.NextSpeaker(ctx, conversations.Snapshot{NPCNames: []string{`Guard`, `Smith`}})
		require.NoError(t, err)
		assert.Equal(t, `Guard`, name)
	})
}

func TestNPCResponse(t *testing.T) {
	ctx := context.Background()

	t.Run("atomic", func(t *testing.T) {
		c, backend, _ := newTestClient(t, nil)
		backend.reply = ollamaReply(`Guard: Halt! Who goes there?`)

		text, err := c.NPCResponse(ctx, `Guard`, []string{`Alice: hello`, `Reply as Guard.`}, false)
		require.NoError(t, err)
		assert.Equal(t, `Halt! Who goes there?`, text)

		req := backend.last()
		assert.Equal(t, false, req["stream"])
		assert.Equal(t, `llama3`, req["model"])
		assert.Contains(t, systemPrompt(req), `Gruff.`)
		assert.Equal(t, `/api/chat`, backend.paths[0])

		usage := c.Tokens().Usage(`Guard`)
		assert.Equal(t, 1, usage.TotalCalls)
		assert.Equal(t, 10, usage.InputTokens)
		assert.Equal(t, 4, usage.OutputTokens)
	})

	t.Run("streamed", func(t *testing.T) {
		c, backend, _ := newTestClient(t, nil)
		backend.reply = func(map[string]any) (int, string) {
			return http.StatusOK, strings.Join([]string{
				`{"message":{"content":"Halt"},"done":false}`,
				`not json`,
				`{"message":{"content":"!"},"done":false}`,
				`{"message":{"content":""},"done":true,"eval_count":2}`,
			}, "\n")
		}

		text, err := c.NPCResponse(ctx, `Guard`, []string{`Alice: hi`}, true)
		require.NoError(t, err)
		assert.Equal(t, `Halt!`, text)
		assert.Equal(t, true, backend.last()["stream"])
	})

	t.Run("error in body", func(t *testing.T) {
		c, backend, _ := newTestClient(t, nil)
		backend.reply = func(map[string]any) (int, string) { return http.StatusOK, `{"error":"model not found"}` }

		_, err := c.NPCResponse(ctx, `Guard`, []string{`hi`}, false)
		require.Error(t, err)
	})
}

func TestOpenAI(t *testing.T) {
	c, backend, _ := newTestClient(t, func(cfg *configs.IntegrationsLLM) {
		cfg.Provider = `openai`
		cfg.APIKey = `sk-test`
		cfg.Model = `gpt-4.1-nano`
	})
	backend.reply = func(map[string]any) (int, string) {
		return http.StatusOK, `{"choices":[{"message":{"content":"Well met."}}],"usage":{"prompt_tokens":1000,"completion_tokens":1000}}`
	}

	text, err := c.NPCResponse(context.Background(), `Smith`, []string{`hi`}, false)
	require.NoError(t, err)
	assert.Equal(t, `Well met.`, text)
	assert.Equal(t, `/chat/completions`, backend.paths[0])
	assert.Equal(t, `Bearer sk-test`, backend.auth[0])

	usage := c.Tokens().Usage(`Smith`)
	assert.InDelta(t, 0.0005, usage.TotalCost, 1e-9)
	assert.Equal(t, 1, c.Tokens().Total().TotalCalls)
}

func TestBackoffAndDisabled(t *testing.T) {
	ctx := context.Background()

	c, backend, _ := newTestClient(t, nil)
	backend.reply = func(map[string]any) (int, string) { return http.StatusBadGateway, `down` }

	_, err := c.NPCResponse(ctx, `Guard`, []string{`hi`}, false)
	require.Error(t, err)

	_, err = c.NPCResponse(ctx, `Guard`, []string{`hi`}, false)
	require.ErrorIs(t, err, ErrBackoff)
	assert.Equal(t, 1, backend.count())

	c.resetBackoff()
	backend.reply = ollamaReply(`Back.`)
	text, err := c.NPCResponse(ctx, `Guard`, []string{`hi`}, false)
	require.NoError(t, err)
	assert.Equal(t, `Back.`, text)

	off, offBackend, _ := newTestClient(t, func(cfg *configs.IntegrationsLLM) { cfg.Enabled = false })
	_, err = off.NPCResponse(ctx, `Guard`, []string{`hi`}, false)
	require.ErrorIs(t, err, ErrDisabled)
	assert.Equal(t, 0, offBackend.count())
}

func TestBehavioralDirectiveIncludesRelationships(t *testing.T) {
	c, backend, _ := newTestClient(t, nil)
	backend.reply = ollamaReply(`Be suspicious.`)

	text, err := c.BehavioralDirective(context.Background(), conversations.Snapshot{
		NPCNames: []string{`Guard`},
		History:  history(`Smith: let me through`),
	}, `Guard`)
	require.NoError(t, err)
	assert.Equal(t, `Be suspicious.`, text)

	prompt := systemPrompt(backend.last())
	assert.Contains(t, prompt, `Guard distrusts Smith.`)
	assert.Contains(t, prompt, `Smith: let me through`)
}

func TestSummarizeConversation(t *testing.T) {
	ctx := context.Background()

	c, backend, memory := newTestClient(t, nil)
	backend.reply = func(req map[string]any) (int, string) {
		return ollamaReply(`I remember: ` + systemPrompt(req)[:12])(req)
	}

	short := conversations.Snapshot{NPCNames: []string{`Guard`}, PlayerNames: []string{`Alice`}, History: history(`a`, `b`)}
	require.NoError(t, c.SummarizeConversation(ctx, short))
	assert.Equal(t, 0, backend.count())

	full := conversations.Snapshot{
		NPCNames:    []string{`Guard`, `Beggar`},
		PlayerNames: []string{`Alice`},
		History:     history(`Alice: hi`, `Guard: halt`, `Alice: why`),
	}
	require.NoError(t, c.SummarizeConversation(ctx, full))

	assert.Equal(t, 2, backend.count())
	assert.Contains(t, memory.memories, `Guard`)
	assert.Contains(t, memory.memories, `Alice`)
	assert.NotContains(t, memory.memories, `Beggar`)
	assert.Equal(t, conversations.Significance(3, 2), memory.sig[`Guard`])

	require.NoError(t, c.SummarizeForNPC(ctx, full.History, `Beggar`))
	assert.Equal(t, 2, backend.count())
	require.NoError(t, c.SummarizeForNPC(ctx, full.History, `Guard`))
	assert.Equal(t, 3, backend.count())
}

func TestGoodbyeFallsBackToFarewell(t *testing.T) {
	c, backend, _ := newTestClient(t, nil)

	text, err := c.Goodbye(context.Background(), `Guard`, history(`Alice: bye`))
	require.NoError(t, err)
	assert.Equal(t, `Halt!`, text)

	backend.reply = func(map[string]any) (int, string) { return http.StatusInternalServerError, `` }
	text, err = c.Goodbye(context.Background(), `Guard`, nil)
	require.NoError(t, err)
	assert.Equal(t, `Be off with you.`, text)

	_, err = c.Greeting(context.Background(), `Guard`, `Alice`)
	require.Error(t, err)
}

func TestParseIntent(t *testing.T) {
	tests := []struct {
		answer string
		kind   string
		action string
		ok     bool
	}{
		{`INTENT: FOLLOW | ACTION: follow Alice to the gate`, `FOLLOW`, `follow Alice to the gate`, true},
		{"Sure.\nintent: attack | action: draw sword", `ATTACK`, `draw sword`, true},
		{`INTENT: NONE | ACTION: NONE`, IntentNone, ``, true},
		{`INTENT: QUEST`, `QUEST`, ``, true},
		{`INTENT: | ACTION: x`, ``, ``, false},
		{`nothing to see`, ``, ``, false},
	}

	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			kind, action, ok := ParseIntent(tt.answer)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.kind, kind)
			assert.Equal(t, tt.action, action)
		})
	}
}

func TestRecognizeIntents(t *testing.T) {
	backend := &fakeBackend{reply: ollamaReply(`INTENT: FOLLOW | ACTION: follow Alice`)}
	server := httptest.NewServer(backend)
	defer server.Close()

	cfg := configs.Default().Integrations.LLM
	cfg.BaseURL = configs.ConfigString(server.URL)

	var got []Intent
	c := New(Options{Config: cfg, OnIntent: func(i Intent) { got = append(got, i) }})

	lastTwo := history(`Alice: follow me`, `Guard: lead the way`)
	require.NoError(t, c.RecognizeActionIntents(context.Background(), `Guard`, lastTwo, `Alice`))
	require.Len(t, got, 1)
	assert.Equal(t, Intent{NPC: `Guard`, Player: `Alice`, Kind: `FOLLOW`, Action: `follow Alice`}, got[0])

	backend.reply = ollamaReply(`INTENT: NONE | ACTION: NONE`)
	require.NoError(t, c.RecognizeQuestGivingIntent(context.Background(), `Guard`, lastTwo, `Alice`))
	assert.Len(t, got, 1)
	assert.Contains(t, systemPrompt(backend.last()), `Alice`)

	require.NoError(t, c.RecognizeActionIntents(context.Background(), `Guard`, nil, `Alice`))
	assert.Equal(t, 2, backend.count())
}

func TestTokenTracker(t *testing.T) {
	tr := NewTokenTracker(false)
	assert.Equal(t, 3, tr.Count(`twelve chars`))
	assert.Equal(t, 0, tr.Count(``))

	tr.Record(`Guard`, `llama3`, 5, 6)
	tr.Record(`Guard`, `llama3`, 1, 1)
	usage := tr.Usage(`Guard`)
	assert.Equal(t, 2, usage.TotalCalls)
	assert.Equal(t, 6, usage.InputTokens)
	assert.Equal(t, 0.0, usage.TotalCost)
	assert.Equal(t, TokenUsage{}, tr.Usage(`Nobody`))
}
