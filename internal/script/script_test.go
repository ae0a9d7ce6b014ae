package script_test

import (
	"errors"
	"strings"
	"testing"

	"callqa/internal/script"
	"callqa/internal/services"
)

func TestParseMixedLabels(t *testing.T) {
	raw := strings.Join([]string{
		"客戶：我要查詢訂單",
		"",
		"客服: 好的請提供訂單編號",
		"Customer: 12345",
		"customer: 還有一件事",
		"AGENT : 請說",
	}, "\n")

	parsed, err := script.Parse(raw)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	want := []script.Turn{
		{Speaker: script.SpeakerCustomer, Text: "我要查詢訂單"},
		{Speaker: script.SpeakerAgent, Text: "好的請提供訂單編號"},
		{Speaker: script.SpeakerCustomer, Text: "12345"},
		{Speaker: script.SpeakerCustomer, Text: "還有一件事"},
		{Speaker: script.SpeakerAgent, Text: "請說"},
	}
	if len(parsed.Turns) != len(want) {
		t.Fatalf("expected %d turns, got %d", len(want), len(parsed.Turns))
	}
	for i := range want {
		if parsed.Turns[i] != want[i] {
			t.Fatalf("turn %d = %+v, want %+v", i, parsed.Turns[i], want[i])
		}
	}
}

func TestParseKeepsColonsInsideUtterance(t *testing.T) {
	parsed, err := script.Parse("customer: meet at 10:30\nagent: ok: confirmed")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if parsed.Turns[0].Text != "meet at 10:30" {
		t.Fatalf("unexpected first turn text %q", parsed.Turns[0].Text)
	}
	if parsed.Turns[1].Text != "ok: confirmed" {
		t.Fatalf("unexpected second turn text %q", parsed.Turns[1].Text)
	}
}

func TestParseFullWidthLabel(t *testing.T) {
	parsed, err := script.Parse("ＣＵＳＴＯＭＥＲ：hello\nagent: hi")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if parsed.Turns[0].Speaker != script.SpeakerCustomer {
		t.Fatalf("expected customer speaker, got %s", parsed.Turns[0].Speaker)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantLine int
		fragment string
	}{
		{name: "empty", raw: "   \n\n", fragment: "empty"},
		{name: "no dialogue lines", raw: "hello there\nnothing here", fragment: "no speaker"},
		{name: "unknown label", raw: "customer: hi\nmanager: hello", wantLine: 2, fragment: "unknown speaker label"},
		{name: "empty utterance", raw: "customer: hi\nagent:   ", wantLine: 2, fragment: "empty utterance"},
		{name: "customer only", raw: "customer: hi\ncustomer: anyone?", fragment: "no agent"},
		{name: "agent only", raw: "agent: hello", fragment: "no customer"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := script.Parse(tc.raw)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, services.ErrParse) {
				t.Fatalf("expected ErrParse, got %v", err)
			}
			var parseErr *script.ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("expected *ParseError, got %T", err)
			}
			if parseErr.Line != tc.wantLine {
				t.Fatalf("line = %d, want %d", parseErr.Line, tc.wantLine)
			}
			if !strings.Contains(err.Error(), tc.fragment) {
				t.Fatalf("expected %q in %q", tc.fragment, err.Error())
			}
		})
	}
}

func TestStatsAndText(t *testing.T) {
	raw := "customer: one\nagent: two\ncustomer: three"
	parsed, err := script.Parse(raw)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	stats := parsed.Stats()
	if stats.TotalLines != 3 || stats.DialogueLines != 3 {
		t.Fatalf("unexpected line counts: %+v", stats)
	}
	if stats.CustomerLines != 2 || stats.AgentLines != 1 {
		t.Fatalf("unexpected role counts: %+v", stats)
	}
	if len(stats.Hash) != 8 {
		t.Fatalf("expected 8 character hash, got %q", stats.Hash)
	}
	if got := parsed.Text(); got != "Customer: one\nAgent: two\nCustomer: three" {
		t.Fatalf("unexpected rendered text %q", got)
	}
	if got := parsed.Utterances(); got != "one\ntwo\nthree" {
		t.Fatalf("unexpected utterances %q", got)
	}
}

func TestFromTurnsCopies(t *testing.T) {
	turns := []script.Turn{{Speaker: script.SpeakerCustomer, Text: "a"}, {Speaker: script.SpeakerAgent, Text: "b"}}
	s := script.FromTurns(turns)
	turns[0].Text = "changed"
	if s.Turns[0].Text != "a" {
		t.Fatal("expected FromTurns to copy input slice")
	}
}
