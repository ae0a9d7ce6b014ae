package script

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/width"

	"callqa/internal/services"
)

// Speaker identifies the role that utters a turn.
type Speaker string

const (
	SpeakerCustomer Speaker = "CUSTOMER"
	SpeakerAgent    Speaker = "AGENT"
)

var speakerLabels = map[string]Speaker{
	"customer": SpeakerCustomer,
	"客戶":       SpeakerCustomer,
	"客户":       SpeakerCustomer,
	"agent":    SpeakerAgent,
	"客服":       SpeakerAgent,
}

// ParseSpeaker resolves a role label, ignoring case, surrounding whitespace
// and full-width letter forms.
func ParseSpeaker(label string) (Speaker, bool) {
	normalized := strings.ToLower(strings.TrimSpace(width.Fold.String(label)))
	speaker, ok := speakerLabels[normalized]
	return speaker, ok
}

// Label returns the display label used when rendering a script back to text.
func (s Speaker) Label() string {
	switch s {
	case SpeakerCustomer:
		return "Customer"
	case SpeakerAgent:
		return "Agent"
	default:
		return string(s)
	}
}

// Turn is one utterance attributed to a speaker.
type Turn struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// Script is an ordered conversation.
type Script struct {
	Turns []Turn
	raw   string
}

// Stats summarizes a parsed script.
type Stats struct {
	TotalLines    int
	DialogueLines int
	CustomerLines int
	AgentLines    int
	Hash          string
}

// ParseError reports why raw text could not be turned into a script. Line is
// 1-based and zero when the problem is not tied to a specific line.
type ParseError struct {
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("script: line %d: %s", e.Line, e.Reason)
	}
	return "script: " + e.Reason
}

// Unwrap lets errors.Is match services.ErrParse.
func (e *ParseError) Unwrap() error {
	return services.ErrParse
}

// Parse converts raw dialogue text into a validated Script.
//
// Blank lines and lines without a separator are ignored. A separated line with
// an unrecognized label, or a recognized label with no utterance, is an error.
func Parse(raw string) (Script, error) {
	if strings.TrimSpace(raw) == "" {
		return Script{}, &ParseError{Reason: "script is empty"}
	}

	var turns []Turn
	for idx, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		label, text, ok := splitLine(line)
		if !ok {
			continue
		}
		speaker, known := ParseSpeaker(label)
		if !known {
			return Script{}, &ParseError{Line: idx + 1, Reason: fmt.Sprintf("unknown speaker label %q", strings.TrimSpace(label))}
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return Script{}, &ParseError{Line: idx + 1, Reason: fmt.Sprintf("empty utterance for %s", speaker.Label())}
		}
		turns = append(turns, Turn{Speaker: speaker, Text: text})
	}

	if len(turns) == 0 {
		return Script{}, &ParseError{Reason: "no speaker: utterance lines found"}
	}
	script := Script{Turns: turns, raw: raw}
	stats := script.Stats()
	if stats.CustomerLines == 0 {
		return Script{}, &ParseError{Reason: "script has no customer turns"}
	}
	if stats.AgentLines == 0 {
		return Script{}, &ParseError{Reason: "script has no agent turns"}
	}
	return script, nil
}

// FromTurns builds a Script from already-validated turns, for example when
// reloading a persisted parse result.
func FromTurns(turns []Turn) Script {
	cp := make([]Turn, len(turns))
	copy(cp, turns)
	return Script{Turns: cp}
}

// splitLine splits at the first ASCII or full-width colon.
func splitLine(line string) (string, string, bool) {
	idx := strings.IndexAny(line, ":：")
	if idx < 0 {
		return "", "", false
	}
	_, size := utf8.DecodeRuneInString(line[idx:])
	return line[:idx], line[idx+size:], true
}

// Stats reports line counts and a short content hash.
func (s Script) Stats() Stats {
	stats := Stats{DialogueLines: len(s.Turns)}
	source := s.raw
	if source == "" {
		source = s.Text()
	}
	stats.TotalLines = len(strings.Split(strings.TrimSpace(source), "\n"))
	for _, turn := range s.Turns {
		switch turn.Speaker {
		case SpeakerCustomer:
			stats.CustomerLines++
		case SpeakerAgent:
			stats.AgentLines++
		}
	}
	sum := sha256.Sum256([]byte(source))
	stats.Hash = hex.EncodeToString(sum[:])[:8]
	return stats
}

// Text renders the script back to "Label: text" lines.
func (s Script) Text() string {
	var b strings.Builder
	for i, turn := range s.Turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(turn.Speaker.Label())
		b.WriteString(": ")
		b.WriteString(turn.Text)
	}
	return b.String()
}

// Utterances returns the turn texts without speaker labels, joined by newlines.
func (s Script) Utterances() string {
	parts := make([]string, 0, len(s.Turns))
	for _, turn := range s.Turns {
		parts = append(parts, turn.Text)
	}
	return strings.Join(parts, "\n")
}
