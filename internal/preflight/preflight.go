package preflight

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"callqa/internal/config"
	"callqa/internal/stage"
)

const defaultProbeTimeout = 5 * time.Second

// Result reports the outcome of a single probe.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Unavailable names a dependency that failed its probe.
type Unavailable struct {
	Name   string
	Detail string
}

func (u Unavailable) String() string {
	if u.Detail == "" {
		return u.Name
	}
	return fmt.Sprintf("%s (%s)", u.Name, u.Detail)
}

// Probe is one named readiness check.
type Probe struct {
	Name  string
	Check func(ctx context.Context) Result
}

// Checker runs a fixed list of probes.
type Checker struct {
	probes  []Probe
	timeout time.Duration
}

// NewChecker returns a checker that bounds every probe by timeout.
func NewChecker(timeout time.Duration, probes ...Probe) *Checker {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &Checker{probes: probes, timeout: timeout}
}

// ForPipeline builds the standard probe list: working directories, the
// reference voices, then each adapter's health check.
func ForPipeline(cfg *config.Config, adapters stage.Set) *Checker {
	probes := []Probe{DirectoryProbe("data directory", cfg.Paths.DataDir)}
	if cfg.Storage.Backend != "nats" {
		probes = append(probes, DirectoryProbe("recordings directory", cfg.Paths.RecordingsDir))
	}
	probes = append(probes,
		VoiceFileProbe("customer", cfg.TTS.CustomerVoice),
		VoiceFileProbe("agent", cfg.TTS.AgentVoice),
	)
	if adapters.Synthesizer != nil {
		probes = append(probes, AdapterProbe("synthesizer", adapters.Synthesizer.HealthCheck))
	}
	if adapters.Recorder != nil {
		probes = append(probes, AdapterProbe("recorder", adapters.Recorder.HealthCheck))
	}
	if adapters.Transcriber != nil {
		probes = append(probes, AdapterProbe("transcriber", adapters.Transcriber.HealthCheck))
	}
	if adapters.Analyzer != nil {
		probes = append(probes, AdapterProbe("analyzer", adapters.Analyzer.HealthCheck))
	}
	for _, name := range adapters.Missing() {
		probes = append(probes, missingAdapterProbe(name))
	}
	return NewChecker(cfg.ProbeTimeout(), probes...)
}

// Names lists the probes in declaration order.
func (c *Checker) Names() []string {
	names := make([]string, 0, len(c.probes))
	for _, probe := range c.probes {
		names = append(names, probe.Name)
	}
	return names
}

// RunAll executes every probe concurrently and returns the results in
// declaration order.
func (c *Checker) RunAll(ctx context.Context) []Result {
	results := make([]Result, len(c.probes))
	var wg sync.WaitGroup
	for i, probe := range c.probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.run(ctx, probe)
		}()
	}
	wg.Wait()
	return results
}

// Check returns every failing probe. An empty list means ready.
func (c *Checker) Check(ctx context.Context) []Unavailable {
	var unavailable []Unavailable
	for _, result := range c.RunAll(ctx) {
		if !result.Passed {
			unavailable = append(unavailable, Unavailable{Name: result.Name, Detail: result.Detail})
		}
	}
	return unavailable
}

// run bounds a probe by the checker timeout. A probe that ignores its context
// is abandoned and reported as timed out.
func (c *Checker) run(ctx context.Context, probe Probe) Result {
	probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	done := make(chan Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- Result{Detail: fmt.Sprintf("probe panicked: %v", r)}
			}
		}()
		done <- probe.Check(probeCtx)
	}()
	var result Result
	select {
	case result = <-done:
	case <-probeCtx.Done():
		result = Result{Detail: fmt.Sprintf("probe timed out after %s", c.timeout)}
	}
	result.Name = probe.Name
	if !result.Passed && result.Detail == "" {
		result.Detail = "unavailable"
	}
	return result
}

// Summarize renders unavailable dependencies for a failure message.
func Summarize(unavailable []Unavailable) string {
	parts := make([]string, 0, len(unavailable))
	for _, u := range unavailable {
		parts = append(parts, u.String())
	}
	return strings.Join(parts, "; ")
}
