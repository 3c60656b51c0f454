package language

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoticesEnglish(t *testing.T) {
	n := NewNotices(`en`)

	require.Contains(t, n.Text(ParticipantJoined, map[string]any{"Name": "Alice"}), `Alice joins the conversation.`)
	require.Contains(t, n.Text(ConversationEnded, nil), `The conversation has ended.`)
}

func TestNoticesSpanish(t *testing.T) {
	n := NewNotices(`es`)

	require.Contains(t, n.Text(ParticipantLeft, map[string]any{"Name": "Bob"}), `Bob deja la conversación.`)
}

func TestNoticesFallback(t *testing.T) {
	n := NewNotices(`not a locale!`)
	require.Equal(t, `en`, n.Locale().String())
	require.Contains(t, n.Text(MovedAway, nil), `moved away`)

	// unknown ids come back as-is
	require.Equal(t, `NoSuchNotice`, n.Text(`NoSuchNotice`, nil))

	// locales without a file fall back to English
	fr := NewNotices(`fr`)
	require.Contains(t, fr.Text(ConversationEnded, nil), `The conversation has ended.`)
}
