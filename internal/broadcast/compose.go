package broadcast

import (
	"strings"
	"unicode/utf8"
)

// DefaultFooters are used when the branding does not override a mode.
var DefaultFooters = map[ParseMode]string{
	ModeHTML:     "<b><i><u>✨ This broadcast sent via Broadcast API {version} Made With ❤️ By {developer} ✨</u></i></b>",
	ModeMarkdown: "*✨ This broadcast sent via Broadcast API {version} Made With ❤️ By {developer} ✨*",
	ModePlain:    "✨ This broadcast sent via Broadcast API {version} Made With ❤️ By {developer} ✨",
}

func DefaultBranding() Branding {
	return Branding{
		Developer: "@Kaiiddo on Telegram",
		YouTube:   "@Kaiiddo",
		Twitter:   "@HelloKaiiddo",
		GitHub:    "@ProKaiiddo",
		Version:   "v2.0.0",
	}
}

// Footer renders the footer for mode.
func (b Branding) Footer(mode ParseMode) string {
	tpl, ok := b.Footers[mode]
	if !ok || strings.TrimSpace(tpl) == "" {
		tpl = DefaultFooters[mode]
	}
	r := strings.NewReplacer("{version}", b.Version, "{developer}", b.Developer)
	return r.Replace(tpl)
}

// ComposedMessage is the final text delivered to every recipient of a run.
// It is built once and never modified afterwards.
type ComposedMessage struct {
	text string
	mode ParseMode
}

// Compose appends the branding footer to body.
func Compose(body string, mode ParseMode, b Branding) ComposedMessage {
	footer := b.Footer(mode)
	if footer == "" {
		return ComposedMessage{text: body, mode: mode}
	}
	return ComposedMessage{text: body + "\n\n" + footer, mode: mode}
}

func (m ComposedMessage) Text() string    { return m.text }
func (m ComposedMessage) Mode() ParseMode { return m.mode }

// Len is the length of the message in characters (runes), not bytes.
func (m ComposedMessage) Len() int { return utf8.RuneCountInString(m.text) }
