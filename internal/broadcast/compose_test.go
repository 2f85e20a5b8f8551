package broadcast

import (
	"strings"
	"testing"
)

func TestComposeAppendsFooter(t *testing.T) {
	b := DefaultBranding()
	m := Compose("Hello", ModeHTML, b)
	want := "Hello\n\n<b><i><u>✨ This broadcast sent via Broadcast API v2.0.0 Made With ❤️ By @Kaiiddo on Telegram ✨</u></i></b>"
	if m.Text() != want {
		t.Fatalf("text=%q", m.Text())
	}
	if m.Mode() != ModeHTML {
		t.Fatalf("mode=%v", m.Mode())
	}
}

func TestComposeIsDeterministic(t *testing.T) {
	b := DefaultBranding()
	for _, mode := range []ParseMode{ModeHTML, ModeMarkdown, ModePlain} {
		a := Compose("same body", mode, b)
		c := Compose("same body", mode, b)
		if a != c {
			t.Fatalf("%s: compose not deterministic", mode)
		}
	}
}

func TestFooterPerMode(t *testing.T) {
	b := DefaultBranding()
	if f := b.Footer(ModePlain); strings.ContainsAny(f, "<*") {
		t.Fatalf("plain footer has markup: %q", f)
	}
	if f := b.Footer(ModeMarkdown); !strings.HasPrefix(f, "*") || strings.Contains(f, "<b>") {
		t.Fatalf("markdown footer=%q", f)
	}

	b.Footers = map[ParseMode]string{ModePlain: "sent by {developer} ({version})"}
	b.Developer, b.Version = "me", "v9"
	if f := b.Footer(ModePlain); f != "sent by me (v9)" {
		t.Fatalf("custom footer=%q", f)
	}
	if f := b.Footer(ModeHTML); !strings.Contains(f, "v9") {
		t.Fatalf("html footer should fall back to default template: %q", f)
	}
}

func TestComposedLenCountsRunes(t *testing.T) {
	b := Branding{Footers: map[ParseMode]string{ModePlain: "é"}}
	m := Compose("привет", ModePlain, b)
	// 6 + 2 newlines + 1
	if got := m.Len(); got != 9 {
		t.Fatalf("len=%d want 9", got)
	}
}

func TestParseParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    ParseMode
		wantErr bool
	}{
		{"", ModeHTML, false},
		{"HTML", ModeHTML, false},
		{" markdown ", ModeMarkdown, false},
		{"MD", ModeMarkdown, false},
		{"plain", ModePlain, false},
		{"none", ModePlain, false},
		{"MarkdownV3", ModeHTML, true},
	}
	for _, tt := range tests {
		got, err := ParseParseMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("%q: err=%v", tt.in, err)
		}
		if err == nil && got != tt.want {
			t.Fatalf("%q: got %v want %v", tt.in, got, tt.want)
		}
	}
}
