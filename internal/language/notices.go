package language

import (
	"embed"
	"sync"

	"github.com/GoMudEngine/palaver/internal/mudlog"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v2"
)

//go:embed locales/*.yaml
var localeFiles embed.FS

const (
	ConversationStarted = `ConversationStarted`
	ConversationJoined  = `ConversationJoined`
	ParticipantJoined   = `ParticipantJoined`
	ParticipantLeft     = `ParticipantLeft`
	ConversationEnding  = `ConversationEnding`
	ConversationEnded   = `ConversationEnded`
	MovedAway           = `MovedAway`
	StartVetoed         = `StartVetoed`
	JoinVetoed          = `JoinVetoed`
	ChatEnabled         = `ChatEnabled`
	ChatDisabled        = `ChatDisabled`
	NotInConversation   = `NotInConversation`
	NoOneNearby         = `NoOneNearby`
)

var (
	bundleOnce sync.Once
	bundle     *i18n.Bundle
)

func loadBundle() *i18n.Bundle {
	bundleOnce.Do(func() {
		bundle = i18n.NewBundle(language.English)
		bundle.RegisterUnmarshalFunc("yaml", yaml.Unmarshal)

		entries, err := localeFiles.ReadDir(`locales`)
		if err != nil {
			mudlog.Error("Language", "error", err)
			return
		}
		for _, e := range entries {
			if _, err := bundle.LoadMessageFileFS(localeFiles, `locales/`+e.Name()); err != nil {
				mudlog.Error("Language", "file", e.Name(), "error", err)
			}
		}
	})
	return bundle
}

// Notices renders player facing text in one locale.
type Notices struct {
	tag       language.Tag
	localizer *i18n.Localizer
}

// NewNotices falls back to English for unknown or malformed locales.
func NewNotices(locale string) *Notices {
	tag, err := language.Parse(locale)
	if err != nil {
		mudlog.Warn("Language", "locale", locale, "error", err)
		tag = language.English
	}
	return &Notices{
		tag:       tag,
		localizer: i18n.NewLocalizer(loadBundle(), tag.String(), language.English.String()),
	}
}

func (n *Notices) Locale() language.Tag {
	return n.tag
}

// Text returns the message id itself when nothing could be rendered.
func (n *Notices) Text(id string, data map[string]any) string {
	out, err := n.localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    id,
		TemplateData: data,
	})
	if err != nil {
		mudlog.Debug("Language", "id", id, "error", err)
		if out != `` {
			return out
		}
		return id
	}
	return out
}
