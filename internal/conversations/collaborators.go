package conversations

import (
	"context"
	"fmt"

	"github.com/GoMudEngine/palaver/internal/mobinterfaces"
	"github.com/GoMudEngine/palaver/internal/world"
)

// Generator produces dialogue. Every call blocks and is made off the loop.
type Generator interface {
	// NextSpeaker returns the name of the NPC that talks next, or "" for nobody.
	NextSpeaker(ctx context.Context, conv Snapshot) (string, error)
	BehavioralDirective(ctx context.Context, conv Snapshot, npcName string) (string, error)
	NPCResponse(ctx context.Context, npcName string, lines []string, streaming bool) (string, error)
	SummarizeConversation(ctx context.Context, conv Snapshot) error
	SummarizeForNPC(ctx context.Context, history []Message, npcName string) error
	Goodbye(ctx context.Context, npcName string, history []Message) (string, error)
}

// Presenter shows cues around NPCs. Calls are fire and forget.
type Presenter interface {
	ShowThinking(npc mobinterfaces.NPC)
	ShowListening(npc mobinterfaces.NPC)
	Cleanup(npc mobinterfaces.NPC)
}

type InformationSource struct {
	Messages     []Message
	NPCNames     []string
	PlayerNames  []string
	LocationName string
	Significance int
}

type WorldMemory interface {
	ProcessInformation(ctx context.Context, source InformationSource) error
}

type SessionFeed interface {
	FeedSession(ctx context.Context, text string) error
}

// IntentRecognizer looks at an NPC's last exchange with a player for actions
// the NPC committed to.
type IntentRecognizer interface {
	RecognizeQuestGivingIntent(ctx context.Context, npcName string, lastTwo []Message, playerName string) error
	RecognizeActionIntents(ctx context.Context, npcName string, lastTwo []Message, playerName string) error
}

// Appearances describes characters in one line.
type Appearances interface {
	Appearance(name string) string
}

// Relationships returns what an NPC thinks of the people it knows.
type Relationships interface {
	Relationships(npcName string) []string
}

// Directory is the host world as seen by the manager.
type Directory interface {
	Nicknamer
	Player(id world.PlayerId) (world.Player, bool)
	LocationName(npc mobinterfaces.NPC) string
	// PresentationEntity is what visibly stands for the NPC.
	PresentationEntity(npc mobinterfaces.NPC) world.Positioned
}

type nopPresenter struct{}

func (nopPresenter) ShowThinking(mobinterfaces.NPC)  {}
func (nopPresenter) ShowListening(mobinterfaces.NPC) {}
func (nopPresenter) Cleanup(mobinterfaces.NPC)       {}

type nopMemory struct{}

func (nopMemory) ProcessInformation(context.Context, InformationSource) error { return nil }
func (nopMemory) FeedSession(context.Context, string) error                   { return nil }

type nopIntents struct{}

func (nopIntents) RecognizeQuestGivingIntent(context.Context, string, []Message, string) error {
	return nil
}
func (nopIntents) RecognizeActionIntents(context.Context, string, []Message, string) error {
	return nil
}

type nopCharacters struct{}

func (nopCharacters) Appearance(string) string      { return `` }
func (nopCharacters) Relationships(string) []string { return nil }

// Voice delivers NPC lines to the players listening.
type Voice interface {
	Speak(npc mobinterfaces.NPC, text string, listeners []world.Player)
}

type textVoice struct{}

func (textVoice) Speak(npc mobinterfaces.NPC, text string, listeners []world.Player) {
	line := fmt.Sprintf(`%s says, "%s"`, npc.GetName(), text)
	for _, l := range listeners {
		l.SendText(line)
	}
}
