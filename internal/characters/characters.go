// Package characters holds the yaml profiles that describe how NPCs look,
// who they know and how they greet people.
package characters

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/GoMudEngine/palaver/internal/fileloader"
	"github.com/GoMudEngine/palaver/internal/mudlog"
	"github.com/GoMudEngine/palaver/internal/world"
	"github.com/pkg/errors"
)

type Relationship struct {
	Target  string `yaml:"Target"`
	Feeling string `yaml:"Feeling"` // "distrusts", "is married to", ...
	Note    string `yaml:"Note,omitempty"`
}

func (r Relationship) Line(owner string) string {
	line := fmt.Sprintf("%s %s %s.", owner, r.Feeling, r.Target)
	if r.Note != `` {
		line = fmt.Sprintf("%s %s", line, r.Note)
	}
	return line
}

type Profile struct {
	Name          string          `yaml:"Name"`
	Nicknames     []string        `yaml:"Nicknames,omitempty"` // Other names players call them by
	Appearance    string          `yaml:"Appearance"`
	Personality   string          `yaml:"Personality,omitempty"`
	Greeting      string          `yaml:"Greeting,omitempty"`
	Farewell      string          `yaml:"Farewell,omitempty"`
	Generic       bool            `yaml:"Generic,omitempty"` // Guards, merchants etc. that don't keep memories
	Relationships []Relationship  `yaml:"Relationships,omitempty"`
	Spawn         *world.Position `yaml:"Spawn,omitempty"`
}

func (p Profile) Id() string {
	return strings.ToLower(p.Name)
}

func (p Profile) Validate() error {
	if strings.TrimSpace(p.Name) == `` {
		return errors.New(`character has no Name`)
	}
	for i, r := range p.Relationships {
		if r.Target == `` || r.Feeling == `` {
			return errors.New(fmt.Sprintf(`relationship %d of %s needs a Target and a Feeling`, i, p.Name))
		}
	}
	return nil
}

func (p Profile) Filepath() string {
	return strings.ReplaceAll(strings.ToLower(p.Name), ` `, `_`) + `.yaml`
}

// Book is the set of known character profiles. Lookups are case-insensitive.
type Book struct {
	lock     sync.RWMutex
	basePath string
	profiles map[string]Profile
}

func NewBook() *Book {
	return &Book{profiles: map[string]Profile{}}
}

// Load reads every profile below basePath. A missing directory is an empty book.
func Load(basePath string) (*Book, error) {
	loaded, err := fileloader.LoadAllFlatFiles[string, Profile](basePath, fileloader.FileTypeYaml)
	if err != nil {
		return nil, err
	}

	b := NewBook()
	b.basePath = basePath
	for id, p := range loaded {
		b.profiles[id] = p
	}

	mudlog.Info("characters", "path", basePath, "loaded", len(b.profiles))

	return b, nil
}

func (b *Book) Add(p Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	b.lock.Lock()
	b.profiles[p.Id()] = p
	b.lock.Unlock()
	return nil
}

// Save writes a profile next to the ones the book was loaded from.
func (b *Book) Save(p Profile) error {
	if err := b.Add(p); err != nil {
		return err
	}
	if b.basePath == `` {
		return errors.New(`character book was not loaded from disk`)
	}
	return fileloader.SaveFlatFile(b.basePath, p, fileloader.SaveCareful)
}

func (b *Book) Profile(name string) (Profile, bool) {
	b.lock.RLock()
	defer b.lock.RUnlock()
	p, ok := b.profiles[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

func (b *Book) Names() []string {
	b.lock.RLock()
	names := make([]string, 0, len(b.profiles))
	for _, p := range b.profiles {
		names = append(names, p.Name)
	}
	b.lock.RUnlock()

	sort.Strings(names)
	return names
}

func (b *Book) Appearance(name string) string {
	p, ok := b.Profile(name)
	if !ok {
		return ``
	}
	return p.Appearance
}

func (b *Book) Relationships(npcName string) []string {
	p, ok := b.Profile(npcName)
	if !ok {
		return nil
	}
	lines := make([]string, 0, len(p.Relationships))
	for _, r := range p.Relationships {
		lines = append(lines, r.Line(p.Name))
	}
	return lines
}

// Nicknames are lower cased.
func (b *Book) Nicknames(name string) []string {
	p, ok := b.Profile(name)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(p.Nicknames))
	for _, n := range p.Nicknames {
		if n = strings.ToLower(strings.TrimSpace(n)); n != `` {
			out = append(out, n)
		}
	}
	return out
}

func (b *Book) Personality(name string) string {
	p, _ := b.Profile(name)
	return p.Personality
}

// IsGeneric is true for unknown characters as well.
func (b *Book) IsGeneric(name string) bool {
	p, ok := b.Profile(name)
	return !ok || p.Generic
}

func (b *Book) Greeting(name string) string {
	if p, ok := b.Profile(name); ok && p.Greeting != `` {
		return p.Greeting
	}
	return `Hello there.`
}

func (b *Book) Farewell(name string) string {
	if p, ok := b.Profile(name); ok && p.Farewell != `` {
		return p.Farewell
	}
	return `Farewell.`
}
