package conversations

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/GoMudEngine/palaver/internal/configs"
	"github.com/GoMudEngine/palaver/internal/language"
	"github.com/GoMudEngine/palaver/internal/mobinterfaces"
	"github.com/GoMudEngine/palaver/internal/realm"
	"github.com/GoMudEngine/palaver/internal/scheduler"
	"github.com/GoMudEngine/palaver/internal/users"
	"github.com/GoMudEngine/palaver/internal/world"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	lock sync.Mutex

	speaker      string
	speakerErr   error
	directive    string
	directiveErr error
	response     string
	responseErr  error
	goodbye      string

	// when set NPCResponse waits for a value before returning
	release chan struct{}

	calls        map[string]int
	lines        [][]string
	streaming    []bool
	summarized   []Snapshot
	inFlight     int
	maxInFlight  int
	npcSummaries []string
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{
		speaker:   "Guard",
		directive: "Be stern.",
		response:  "Halt!",
		goodbye:   "Farewell.",
		calls:     map[string]int{},
	}
}

func (g *fakeGenerator) record(name string) {
	g.lock.Lock()
	g.calls[name]++
	g.lock.Unlock()
}

func (g *fakeGenerator) count(name string) int {
	g.lock.Lock()
	defer g.lock.Unlock()
	return g.calls[name]
}

func (g *fakeGenerator) set(fn func(g *fakeGenerator)) {
	g.lock.Lock()
	fn(g)
	g.lock.Unlock()
}

func (g *fakeGenerator) lastLines() []string {
	g.lock.Lock()
	defer g.lock.Unlock()
	if len(g.lines) == 0 {
		return nil
	}
	return g.lines[len(g.lines)-1]
}

func (g *fakeGenerator) NextSpeaker(ctx context.Context, conv Snapshot) (string, error) {
	g.record("NextSpeaker")
	g.lock.Lock()
	defer g.lock.Unlock()
	return g.speaker, g.speakerErr
}

func (g *fakeGenerator) BehavioralDirective(ctx context.Context, conv Snapshot, npcName string) (string, error) {
	g.record("BehavioralDirective")
	g.lock.Lock()
	defer g.lock.Unlock()
	return g.directive, g.directiveErr
}

func (g *fakeGenerator) NPCResponse(ctx context.Context, npcName string, lines []string, streaming bool) (string, error) {
	g.record("NPCResponse")

	g.lock.Lock()
	g.lines = append(g.lines, lines)
	g.streaming = append(g.streaming, streaming)
	g.inFlight++
	if g.inFlight > g.maxInFlight {
		g.maxInFlight = g.inFlight
	}
	release := g.release
	g.lock.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
		}
	}

	g.lock.Lock()
	defer g.lock.Unlock()
	g.inFlight--
	return g.response, g.responseErr
}

func (g *fakeGenerator) SummarizeConversation(ctx context.Context, conv Snapshot) error {
	g.record("SummarizeConversation")
	g.lock.Lock()
	g.summarized = append(g.summarized, conv)
	g.lock.Unlock()
	return nil
}

func (g *fakeGenerator) SummarizeForNPC(ctx context.Context, history []Message, npcName string) error {
	g.record("SummarizeForNPC")
	g.lock.Lock()
	g.npcSummaries = append(g.npcSummaries, npcName)
	g.lock.Unlock()
	return nil
}

func (g *fakeGenerator) Goodbye(ctx context.Context, npcName string, history []Message) (string, error) {
	g.record("Goodbye")
	g.lock.Lock()
	defer g.lock.Unlock()
	return g.goodbye, nil
}

type fakeMemory struct {
	lock     sync.Mutex
	sources  []InformationSource
	sessions []string
}

func (f *fakeMemory) ProcessInformation(ctx context.Context, source InformationSource) error {
	f.lock.Lock()
	f.sources = append(f.sources, source)
	f.lock.Unlock()
	return nil
}

func (f *fakeMemory) FeedSession(ctx context.Context, text string) error {
	f.lock.Lock()
	f.sessions = append(f.sessions, text)
	f.lock.Unlock()
	return nil
}

func (f *fakeMemory) counts() (int, int) {
	f.lock.Lock()
	defer f.lock.Unlock()
	return len(f.sources), len(f.sessions)
}

type fakePresenter struct {
	lock     sync.Mutex
	thinking map[string]int
	cleanups map[string]int
}

func newFakePresenter() *fakePresenter {
	return &fakePresenter{thinking: map[string]int{}, cleanups: map[string]int{}}
}

func (f *fakePresenter) ShowThinking(npc mobinterfaces.NPC) {
	f.lock.Lock()
	f.thinking[npc.GetName()]++
	f.lock.Unlock()
}

func (f *fakePresenter) ShowListening(npc mobinterfaces.NPC) {}

func (f *fakePresenter) Cleanup(npc mobinterfaces.NPC) {
	f.lock.Lock()
	f.cleanups[npc.GetName()]++
	f.lock.Unlock()
}

func (f *fakePresenter) cleanupsFor(name string) int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.cleanups[name]
}

func (f *fakePresenter) thinkingFor(name string) int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.thinking[name]
}

type fakeIntents struct {
	lock    sync.Mutex
	lastTwo [][]Message
	players []string
}

func (f *fakeIntents) RecognizeQuestGivingIntent(ctx context.Context, npcName string, lastTwo []Message, playerName string) error {
	return nil
}

func (f *fakeIntents) RecognizeActionIntents(ctx context.Context, npcName string, lastTwo []Message, playerName string) error {
	f.lock.Lock()
	f.lastTwo = append(f.lastTwo, lastTwo)
	f.players = append(f.players, playerName)
	f.lock.Unlock()
	return nil
}

type fakeCharacters struct{}

func (fakeCharacters) Appearance(name string) string {
	return "a " + name + " in plain clothes"
}

func (fakeCharacters) Relationships(npcName string) []string {
	if npcName == "Guard" {
		return []string{"Guard distrusts Smith."}
	}
	return nil
}

type harness struct {
	t       *testing.T
	loop    *scheduler.Loop
	realm   *realm.Realm
	gen     *fakeGenerator
	memory  *fakeMemory
	cues    *fakePresenter
	intents *fakeIntents
	m       *Manager
}

func testConfig() configs.Conversations {
	cfg := configs.Default().Conversations
	cfg.ResponseDelay = 0.01
	cfg.ProximityCheckInterval = 3600
	cfg.GenerationTimeout = 5
	return cfg
}

func newHarness(t *testing.T, adjust func(cfg *configs.Conversations)) *harness {
	t.Helper()

	cfg := testConfig()
	if adjust != nil {
		adjust(&cfg)
	}

	loop := scheduler.NewLoop(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	t.Cleanup(cancel)

	h := &harness{
		t:       t,
		loop:    loop,
		realm:   realm.New(),
		gen:     newFakeGenerator(),
		memory:  &fakeMemory{},
		cues:    newFakePresenter(),
		intents: &fakeIntents{},
	}

	m, err := NewManager(Options{
		Loop:          loop,
		Directory:     h.realm,
		Generator:     h.gen,
		Presenter:     h.cues,
		Memory:        h.memory,
		Sessions:      h.memory,
		Intents:       h.intents,
		Appearances:   fakeCharacters{},
		Relationships: fakeCharacters{},
		Notices:       language.NewNotices(`en`),
		Config:        &cfg,
	})
	require.NoError(t, err)
	h.m = m

	return h
}

func pos(x float64) world.Position {
	return world.Position{World: "overworld", X: x}
}

func (h *harness) player(name string, x float64) *users.UserRecord {
	u := users.NewUserRecord(name, pos(x))
	h.realm.AddPlayer(u)
	return u
}

func (h *harness) npc(name string, x float64) *mobinterfaces.Mob {
	m := mobinterfaces.NewMob(name, pos(x))
	h.realm.AddNPC(m)
	return m
}

// do runs fn on the loop and waits for it.
func (h *harness) do(fn func()) {
	h.loop.Call(fn)
}

func (h *harness) history(c *Conversation) []Message {
	var out []Message
	h.do(func() { out = c.History() })
	return out
}

func (h *harness) state(c *Conversation) State {
	var s State
	h.do(func() { s = c.State() })
	return s
}

func waitFor[T any](t *testing.T, f *scheduler.Future[T]) T {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	v, err := f.Wait(ctx)
	require.NoError(t, err)
	return v
}

func contains(texts []string, want string) bool {
	for _, t := range texts {
		if t == want {
			return true
		}
	}
	return false
}
