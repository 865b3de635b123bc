package cli

import (
	"bytes"
	"strings"
	"testing"
)

func newTestPrompter(input string) (*Prompter, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return &Prompter{In: strings.NewReader(input), Out: out}, out
}

func TestAsk(t *testing.T) {
	tests := []struct {
		input, def, want string
	}{
		{"hello\n", "default", "hello"},
		{"\n", "fallback", "fallback"},
		{"   \n", "fallback", "fallback"},
		{"", "eof", "eof"},
	}
	for _, tt := range tests {
		p, _ := newTestPrompter(tt.input)
		if got := p.Ask("Name", tt.def); got != tt.want {
			t.Errorf("Ask(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestAskShowsDefault(t *testing.T) {
	p, out := newTestPrompter("\n")
	p.Ask("Listen address", ":8080")
	if !strings.Contains(out.String(), "Listen address [:8080]: ") {
		t.Errorf("output = %q", out.String())
	}
}

func TestAskSecret(t *testing.T) {
	p, out := newTestPrompter("typed-secret\n\n")
	if got := p.AskSecret("Webhook secret", "generated"); got != "typed-secret" {
		t.Errorf("AskSecret() = %q", got)
	}
	if got := p.AskSecret("Webhook secret", "generated"); got != "generated" {
		t.Errorf("blank AskSecret() = %q, want fallback", got)
	}
	if strings.Contains(out.String(), "generated") {
		t.Error("fallback secret must not be printed")
	}
}

func TestAskList(t *testing.T) {
	p, _ := newTestPrompter(" https://a.example , ,https://b.example\n\n")
	got := p.AskList("Origins", []string{"*"})
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Errorf("AskList() = %v", got)
	}
	got = p.AskList("Origins", []string{"*"})
	if len(got) != 1 || got[0] != "*" {
		t.Errorf("default AskList() = %v", got)
	}
}

func TestChoose(t *testing.T) {
	p, _ := newTestPrompter("2\n")
	if got := p.Choose("Driver", []string{"sqlite", "postgres"}, 0); got != "postgres" {
		t.Errorf("Choose() = %q", got)
	}

	p, _ = newTestPrompter("\n")
	if got := p.Choose("Driver", []string{"sqlite", "postgres"}, 0); got != "sqlite" {
		t.Errorf("default Choose() = %q", got)
	}

	p, out := newTestPrompter("0\n9\n1\n")
	if got := p.Choose("Driver", []string{"sqlite", "postgres"}, 1); got != "sqlite" {
		t.Errorf("Choose() after retries = %q", got)
	}
	if strings.Count(out.String(), "Please enter a number between 1 and 2.") != 2 {
		t.Errorf("expected two retry messages, got %q", out.String())
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input      string
		defaultYes bool
		want       bool
	}{
		{"y\n", false, true},
		{"YES\n", false, true},
		{"n\n", true, false},
		{"\n", true, true},
		{"\n", false, false},
	}
	for _, tt := range tests {
		p, _ := newTestPrompter(tt.input)
		if got := p.Confirm("Enable", tt.defaultYes); got != tt.want {
			t.Errorf("Confirm(%q, %v) = %v, want %v", tt.input, tt.defaultYes, got, tt.want)
		}
	}
}
