// Package prompts holds the system prompts sent to the language model.
// Defaults are compiled in and a yaml file can override any of them.
package prompts

import (
	_ "embed"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/GoMudEngine/palaver/internal/fileloader"
	"github.com/GoMudEngine/palaver/internal/mudlog"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const (
	NPCResponse         = `npc_response`
	SpeakerSelection    = `speaker_selection`
	BehavioralDirective = `behavioral_directive`
	NPCGreeting         = `npc_greeting`
	NPCGoodbye          = `npc_goodbye`
	NPCMemoryGeneration = `npc_memory_generation`
	ConversationSummary = `conversation_summary`
	ActionIntent        = `npc_action_intent_recognition`
	QuestGivingIntent   = `npc_quest_giving_intent`
)

//go:embed defaults.yaml
var defaultsYaml []byte

// Book is the on-disk form of the prompts file.
type Book struct {
	Prompts map[string]string `yaml:"Prompts"`
}

func (b Book) Validate() error {
	for key, text := range b.Prompts {
		if strings.TrimSpace(text) == `` {
			return errors.New(`prompt "` + key + `" is empty`)
		}
	}
	return nil
}

func (b Book) Filepath() string {
	return `prompts.yaml`
}

type Prompts struct {
	lock    sync.RWMutex
	prompts map[string]string
}

// New returns the compiled-in prompts.
func New() *Prompts {
	p := &Prompts{prompts: map[string]string{}}

	var b Book
	if err := yaml.Unmarshal(defaultsYaml, &b); err != nil {
		panic(err)
	}
	for k, v := range b.Prompts {
		p.prompts[k] = v
	}
	return p
}

// Load overlays the file at path on the defaults. A missing file keeps the defaults.
func Load(path string) (*Prompts, error) {
	p := New()

	if path == `` {
		return p, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		mudlog.Info("prompts", "path", path, "info", "no prompts file, using defaults")
		return p, nil
	}

	b, err := fileloader.LoadFlatFile[Book](path)
	if err != nil {
		return nil, err
	}

	p.lock.Lock()
	for k, v := range b.Prompts {
		p.prompts[k] = v
	}
	p.lock.Unlock()

	mudlog.Info("prompts", "path", path, "overrides", len(b.Prompts))

	return p, nil
}

// Get returns the prompt with every {name} replaced by vars[name].
// Unknown keys come back empty.
func (p *Prompts) Get(key string, vars map[string]string) string {
	p.lock.RLock()
	text, ok := p.prompts[key]
	p.lock.RUnlock()

	if !ok {
		mudlog.Warn("prompts", "missing", key)
		return ``
	}

	return Fill(text, vars)
}

func (p *Prompts) Set(key, text string) {
	p.lock.Lock()
	p.prompts[key] = text
	p.lock.Unlock()
}

func (p *Prompts) Keys() []string {
	p.lock.RLock()
	keys := make([]string, 0, len(p.prompts))
	for k := range p.prompts {
		keys = append(keys, k)
	}
	p.lock.RUnlock()

	sort.Strings(keys)
	return keys
}

func Fill(text string, vars map[string]string) string {
	if len(vars) == 0 {
		return text
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, `{`+k+`}`, v)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
