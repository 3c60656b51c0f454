// Package scripting runs JavaScript conversation policies. A script may
// define any of these global functions, each receiving the event:
//
//	onConversationStart(ev)
//	onPlayerJoin(ev)
//	onNPCJoin(ev)
//	onConversationEnd(ev)
//
// Returning false from the first three vetoes the change. The end hook is
// only told about it.
package scripting

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/GoMudEngine/palaver/internal/conversations"
	"github.com/GoMudEngine/palaver/internal/mudlog"
	"github.com/dop251/goja"
	"github.com/pkg/errors"
)

const defaultTimeout = 50 * time.Millisecond

var hookNames = map[conversations.EventKind]string{
	conversations.EventStart:      `onConversationStart`,
	conversations.EventPlayerJoin: `onPlayerJoin`,
	conversations.EventNPCJoin:    `onNPCJoin`,
	conversations.EventEnd:        `onConversationEnd`,
}

// jsEvent is the event as scripts see it.
type jsEvent struct {
	Kind           string   `json:"kind"`
	ConversationId int      `json:"conversationId"`
	Players        []string `json:"players"`
	NPCs           []string `json:"npcs"`
	Subject        string   `json:"subject"`
}

type script struct {
	name  string
	vm    *goja.Runtime
	hooks map[conversations.EventKind]goja.Callable
}

// PolicyEngine is a conversations.Policy backed by scripts. Scripts run one
// at a time and are interrupted when they take too long.
type PolicyEngine struct {
	lock    sync.Mutex
	scripts []*script
	timeout time.Duration
}

func NewPolicyEngine() *PolicyEngine {
	return &PolicyEngine{timeout: defaultTimeout}
}

// Load compiles every *.js file in dir, in name order. A missing directory
// loads nothing.
func Load(dir string) (*PolicyEngine, error) {
	e := NewPolicyEngine()

	files, err := filepath.Glob(filepath.Join(dir, `*.js`))
	if err != nil {
		return nil, errors.Wrap(err, `scripting: `+dir)
	}
	sort.Strings(files)

	for _, f := range files {
		src, err := os.ReadFile(f)
		if err != nil {
			return nil, errors.Wrap(err, `scripting: `+f)
		}
		if err := e.AddScript(filepath.Base(f), string(src)); err != nil {
			return nil, err
		}
	}

	mudlog.Info("scripting", "path", dir, "scripts", len(e.scripts))

	return e, nil
}

func (e *PolicyEngine) SetTimeout(d time.Duration) {
	e.lock.Lock()
	e.timeout = d
	e.lock.Unlock()
}

// AddScript compiles and runs src once so its hooks are defined.
func (e *PolicyEngine) AddScript(name string, src string) error {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper(`json`, true))

	vm.Set(`log`, func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, a := range call.Arguments {
			parts = append(parts, a.String())
		}
		mudlog.Info("scripting", "script", name, "log", strings.Join(parts, ` `))
		return goja.Undefined()
	})

	if _, err := vm.RunScript(name, src); err != nil {
		return errors.Wrap(err, `scripting: `+name)
	}

	s := &script{
		name:  name,
		vm:    vm,
		hooks: map[conversations.EventKind]goja.Callable{},
	}
	for kind, fn := range hookNames {
		if v := vm.Get(fn); v != nil {
			if callable, ok := goja.AssertFunction(v); ok {
				s.hooks[kind] = callable
			}
		}
	}

	e.lock.Lock()
	e.scripts = append(e.scripts, s)
	e.lock.Unlock()

	return nil
}

func (e *PolicyEngine) Len() int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return len(e.scripts)
}

// Allow runs the matching hook of every script. A script that throws or
// runs too long is logged and does not veto.
func (e *PolicyEngine) Allow(ev conversations.Event) bool {
	e.lock.Lock()
	defer e.lock.Unlock()

	arg := jsEvent{
		Kind:           ev.Kind.String(),
		ConversationId: ev.ConversationId,
		Players:        append([]string{}, ev.Players...),
		NPCs:           append([]string{}, ev.NPCs...),
		Subject:        ev.Subject,
	}

	for _, s := range e.scripts {
		hook, ok := s.hooks[ev.Kind]
		if !ok {
			continue
		}

		result, err := e.call(s, hook, arg)
		if err != nil {
			mudlog.Error("scripting", "script", s.name, "hook", hookNames[ev.Kind], "error", err)
			continue
		}

		if ev.Kind == conversations.EventEnd {
			continue
		}
		if allowed, isBool := result.Export().(bool); isBool && !allowed {
			mudlog.Info("scripting", "script", s.name, "vetoed", ev.Kind.String(), "subject", ev.Subject)
			return false
		}
	}
	return true
}

func (e *PolicyEngine) call(s *script, hook goja.Callable, arg jsEvent) (goja.Value, error) {
	timer := time.AfterFunc(e.timeout, func() {
		s.vm.Interrupt(`script timed out`)
	})
	defer func() {
		timer.Stop()
		s.vm.ClearInterrupt()
	}()

	return hook(goja.Undefined(), s.vm.ToValue(arg))
}
