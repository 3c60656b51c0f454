package conversations

import (
	"context"
	"sync"

	"github.com/GoMudEngine/palaver/internal/configs"
	"github.com/GoMudEngine/palaver/internal/language"
	"github.com/GoMudEngine/palaver/internal/mobinterfaces"
	"github.com/GoMudEngine/palaver/internal/mudlog"
	"github.com/GoMudEngine/palaver/internal/scheduler"
	"github.com/GoMudEngine/palaver/internal/world"
	"github.com/pkg/errors"
)

type Options struct {
	Loop      *scheduler.Loop
	Directory Directory
	Generator Generator

	// Everything below is optional.
	Repository    *Repository
	Presenter     Presenter
	Voice         Voice
	Memory        WorldMemory
	Sessions      SessionFeed
	Intents       IntentRecognizer
	Appearances   Appearances
	Relationships Relationships
	Notices       *language.Notices
	Config        *configs.Conversations
}

// Manager runs the lifecycle of every conversation. Apart from NewManager,
// its methods must be called from the world loop.
type Manager struct {
	loop          *scheduler.Loop
	repo          *Repository
	cfg           configs.Conversations
	dir           Directory
	gen           Generator
	presenter     Presenter
	voice         Voice
	memory        WorldMemory
	sessions      SessionFeed
	intents       IntentRecognizer
	appearances   Appearances
	relationships Relationships
	notices       *language.Notices

	policyLock sync.RWMutex
	policies   []Policy

	proximity map[*Conversation]*scheduler.Task
	debounce  map[int]*scheduler.Task
	timeouts  map[int]*scheduler.Task
	// conversation ids that have begun ending. Never cleared.
	ending sync.Map

	generating map[int]bool
	queued     map[int][]*generation

	ctx    context.Context
	cancel context.CancelFunc
}

func NewManager(opts Options) (*Manager, error) {
	if opts.Loop == nil {
		return nil, errors.New("conversations: a loop is required")
	}
	if opts.Directory == nil {
		return nil, errors.New("conversations: a directory is required")
	}
	if opts.Generator == nil {
		return nil, errors.New("conversations: a generator is required")
	}

	m := &Manager{
		loop:          opts.Loop,
		repo:          opts.Repository,
		dir:           opts.Directory,
		gen:           opts.Generator,
		presenter:     opts.Presenter,
		voice:         opts.Voice,
		memory:        opts.Memory,
		sessions:      opts.Sessions,
		intents:       opts.Intents,
		appearances:   opts.Appearances,
		relationships: opts.Relationships,
		notices:       opts.Notices,
	}

	if opts.Config != nil {
		m.cfg = *opts.Config
		m.cfg.Validate()
	} else {
		m.cfg = configs.GetConversationsConfig()
	}

	if m.repo == nil {
		m.repo = NewRepository()
	}
	if m.presenter == nil {
		m.presenter = nopPresenter{}
	}
	if m.voice == nil {
		m.voice = textVoice{}
	}
	if m.memory == nil {
		m.memory = nopMemory{}
	}
	if m.sessions == nil {
		m.sessions = nopMemory{}
	}
	if m.intents == nil {
		m.intents = nopIntents{}
	}
	if m.appearances == nil {
		m.appearances = nopCharacters{}
	}
	if m.relationships == nil {
		m.relationships = nopCharacters{}
	}
	if m.notices == nil {
		m.notices = language.NewNotices(string(configs.GetServerConfig().Locale))
	}

	m.resetState()

	return m, nil
}

func (m *Manager) resetState() {
	m.proximity = map[*Conversation]*scheduler.Task{}
	m.debounce = map[int]*scheduler.Task{}
	m.timeouts = map[int]*scheduler.Task{}
	m.generating = map[int]bool{}
	m.queued = map[int][]*generation{}
	m.ctx, m.cancel = context.WithCancel(context.Background())
}

func (m *Manager) Config() configs.Conversations {
	return m.cfg
}

func (m *Manager) SetConfig(c configs.Conversations) {
	c.Validate()
	m.cfg = c
}

func (m *Manager) Repository() *Repository {
	return m.repo
}

func (m *Manager) Loop() *scheduler.Loop {
	return m.loop
}

// AddPolicy registers a policy. Policies run in the order they were added.
func (m *Manager) AddPolicy(p Policy) {
	m.policyLock.Lock()
	m.policies = append(m.policies, p)
	m.policyLock.Unlock()
}

func (m *Manager) allow(ev Event) bool {
	m.policyLock.RLock()
	policies := append([]Policy(nil), m.policies...)
	m.policyLock.RUnlock()

	for _, p := range policies {
		if !p.Allow(ev) {
			mudlog.Info("Conversation", "id", ev.ConversationId, "vetoed", ev.Kind.String(), "subject", ev.Subject)
			return false
		}
	}
	return true
}

func (m *Manager) observe(ev Event) {
	m.policyLock.RLock()
	policies := append([]Policy(nil), m.policies...)
	m.policyLock.RUnlock()

	for _, p := range policies {
		p.Allow(ev)
	}
}

//
// Lookups
//

func (m *Manager) ConversationOf(id world.PlayerId) *Conversation {
	return m.repo.FindByPlayer(id)
}

func (m *Manager) ConversationOfNPC(npc mobinterfaces.NPC) *Conversation {
	return m.repo.FindByNPC(npc)
}

func (m *Manager) ConversationOfNPCName(name string) *Conversation {
	return m.repo.FindByNPCName(name)
}

func (m *Manager) ById(id int) *Conversation {
	return m.repo.FindById(id)
}

func (m *Manager) InConversation(id world.PlayerId) bool {
	return m.repo.FindByPlayer(id) != nil
}

func (m *Manager) NPCInConversation(npc mobinterfaces.NPC) bool {
	return m.repo.FindByNPC(npc) != nil
}

func (m *Manager) Active() []*Conversation {
	return m.repo.ListActive()
}

func (m *Manager) Lock(c *Conversation) {
	m.repo.Lock(c.Id)
}

func (m *Manager) Unlock(c *Conversation) {
	m.repo.Unlock(c.Id)
}

func (m *Manager) IsLocked(c *Conversation) bool {
	return m.repo.IsLocked(c.Id)
}

//
// Adjustments
//

func (m *Manager) MuteNPC(npc mobinterfaces.NPC, c *Conversation) error {
	if c == nil || !c.Active() {
		return ErrEnded
	}
	if !c.Mute(npc) {
		return ErrNotMember
	}
	mudlog.Info("Conversation", "id", c.Id, "muted", npc.GetName())
	return nil
}

func (m *Manager) UnmuteNPC(npc mobinterfaces.NPC, c *Conversation) error {
	if c == nil || !c.Active() {
		return ErrEnded
	}
	if !c.HasNPC(npc) {
		return ErrNotMember
	}
	c.Unmute(npc)
	mudlog.Info("Conversation", "id", c.Id, "unmuted", npc.GetName())
	return nil
}

// ToggleChat flips whether NPCs answer automatically and returns the new setting.
func (m *Manager) ToggleChat(c *Conversation) bool {
	c.ChatEnabled = !c.ChatEnabled

	notice := language.ChatDisabled
	if c.ChatEnabled {
		notice = language.ChatEnabled
	} else if t, ok := m.debounce[c.Id]; ok {
		t.Cancel()
		delete(m.debounce, c.Id)
	}
	m.tell(c.Players(), notice, nil)

	return c.ChatEnabled
}

// FeedSystemMessage adds narration that every NPC in the conversation will see.
func (m *Manager) FeedSystemMessage(c *Conversation, text string) error {
	if c == nil || !c.Active() {
		return ErrEnded
	}
	c.AddSystemMessage(text)
	return nil
}

//
// Player messages
//

// AddPlayerMessage records what a player said and schedules NPC replies
// once the conversation has been quiet for the response delay.
func (m *Manager) AddPlayerMessage(p world.Player, c *Conversation, text string) error {
	if c == nil || !c.Active() {
		return ErrEnded
	}
	if !c.HasPlayer(p.Id()) {
		return ErrNotMember
	}

	c.AddPlayerMessage(p.Id(), text)

	for _, npc := range c.NPCs() {
		if !c.IsMuted(npc) {
			m.presenter.ShowThinking(npc)
		}
	}

	if !c.ChatEnabled {
		return nil
	}

	m.debounceResponses(c)
	return nil
}

func (m *Manager) debounceResponses(c *Conversation) {
	id := c.Id

	if t, ok := m.debounce[id]; ok {
		t.Cancel()
	}

	var task *scheduler.Task
	task = m.loop.After(m.cfg.ResponseDelayDuration(), func() {
		m.GenerateResponses(c, ``).Then(m.loop, func(struct{}, error) {
			if m.debounce[id] == task {
				delete(m.debounce, id)
			}
		})
	})
	m.debounce[id] = task
}

//
// Helpers
//

func (m *Manager) callContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(m.ctx, m.cfg.GenerationTimeoutDuration())
}

// async runs a collaborator call off the loop and logs its failure.
func (m *Manager) async(c *Conversation, what string, work func(ctx context.Context) error) {
	id := c.Id
	scheduler.Async(m.loop, func() (struct{}, error) {
		ctx, cancel := m.callContext()
		defer cancel()
		return struct{}{}, work(ctx)
	}, func(_ struct{}, err error) {
		if err != nil {
			mudlog.Error("Conversation", "id", id, "call", what, "error", err)
		}
	})
}

// online resolves ids to the players that are currently connected.
func (m *Manager) online(ids []world.PlayerId) []world.Player {
	out := make([]world.Player, 0, len(ids))
	seen := map[world.PlayerId]struct{}{}
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if p, ok := m.dir.Player(id); ok {
			out = append(out, p)
		}
	}
	return out
}

func (m *Manager) tell(ids []world.PlayerId, notice string, data map[string]any) {
	players := m.online(ids)
	if len(players) == 0 {
		return
	}
	text := m.notices.Text(notice, data)
	for _, p := range players {
		p.SendText(text)
	}
}

func (m *Manager) refreshCues(c *Conversation) {
	if !c.Active() {
		return
	}
	for _, npc := range c.NPCs() {
		m.presenter.ShowListening(npc)
	}
}

func (m *Manager) releaseCues(c *Conversation) {
	for _, npc := range c.NPCs() {
		m.presenter.Cleanup(npc)
	}
}
