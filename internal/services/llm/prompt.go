package llm

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"callqa/internal/script"
)

// AnalysisSystemPrompt frames the model as a call-center QA reviewer.
const AnalysisSystemPrompt = `You are a call-center quality analyst. You compare a reference
conversation script with the transcript of its synthesized recording and judge
how faithfully the recording reproduces the script. Respond with JSON only.`

const analysisInstructions = `Both texts have had speaker labels and punctuation removed. Compare the
conversation content only; missing labels or punctuation are not differences.

Return a JSON object with exactly these fields:
- "accuracy_score": number from 0 to 100, how closely the transcript matches the reference in meaning.
- "summary": one sentence summarizing the comparison.
- "key_differences": array of strings listing the main differences; empty array when there are none.
- "suggestions": array of strings with concrete improvements; empty array when there are none.
- "reasoning": why you chose this score and summary.`

// BuildAnalysisPrompt renders the user prompt for one comparison.
func BuildAnalysisPrompt(reference, transcript string) string {
	var b strings.Builder
	b.WriteString(analysisInstructions)
	b.WriteString("\n\n[Reference script]\n")
	b.WriteString(reference)
	b.WriteString("\n\n[Transcript]\n")
	b.WriteString(transcript)
	b.WriteString("\n")
	return b.String()
}

// NormalizeText strips leading speaker labels and punctuation from every line
// and collapses whitespace. Blank lines are dropped.
func NormalizeText(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = stripSpeakerLabel(strings.TrimSpace(line))
		line = strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || unicode.IsSpace(r) || r == '_' {
				return r
			}
			return -1
		}, line)
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func stripSpeakerLabel(line string) string {
	idx := strings.IndexAny(line, ":：")
	if idx <= 0 {
		return line
	}
	if _, ok := script.ParseSpeaker(line[:idx]); !ok {
		return line
	}
	_, size := utf8.DecodeRuneInString(line[idx:])
	return strings.TrimSpace(line[idx+size:])
}
