package stage

import (
	"fmt"
	"math"
	"strings"
	"time"

	"callqa/internal/script"
	"callqa/internal/services"
)

// AudioClip is one synthesized utterance. Data holds a complete WAV file.
type AudioClip struct {
	Speaker       script.Speaker
	Data          []byte
	Format        string
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// Duration estimates the playback length from the PCM parameters.
func (c AudioClip) Duration() time.Duration {
	bytesPerSecond := c.SampleRate * c.Channels * c.BitsPerSample / 8
	if bytesPerSecond <= 0 {
		return 0
	}
	return time.Duration(float64(len(c.Data)) / float64(bytesPerSecond) * float64(time.Second))
}

// RecordingHandle references a stored recording. Key is only meaningful to
// the backend named in Backend.
type RecordingHandle struct {
	Key      string        `json:"key"`
	Backend  string        `json:"backend"`
	Size     int64         `json:"size"`
	Duration time.Duration `json:"duration"`
}

// String renders the handle as backend://key for step output.
func (h RecordingHandle) String() string {
	if h.Backend == "" {
		return h.Key
	}
	return h.Backend + "://" + h.Key
}

// Segment is a timed slice of transcript text.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is the text recovered from a recording.
type Transcript struct {
	Text     string    `json:"text"`
	Language string    `json:"language,omitempty"`
	Segments []Segment `json:"segments,omitempty"`
}

// AnalysisResult is the analyzer's structured verdict.
type AnalysisResult struct {
	AccuracyScore  float64
	Summary        string
	KeyDifferences []string
	Suggestions    []string
	Reasoning      string
}

// Validate reports whether the result is usable for a report. Failures are
// tagged with services.ErrMalformedOutput.
func (r AnalysisResult) Validate() error {
	var problem string
	switch {
	case math.IsNaN(r.AccuracyScore) || math.IsInf(r.AccuracyScore, 0):
		problem = "accuracy score is not a finite number"
	case r.AccuracyScore < 0 || r.AccuracyScore > 1:
		problem = fmt.Sprintf("accuracy score %.4f outside [0,1]", r.AccuracyScore)
	case strings.TrimSpace(r.Summary) == "":
		problem = "summary is empty"
	case r.KeyDifferences == nil:
		problem = "key differences missing"
	case r.Suggestions == nil:
		problem = "suggestions missing"
	default:
		return nil
	}
	return services.Wrap(services.ErrMalformedOutput, "analyze", "validate result", problem, nil)
}
