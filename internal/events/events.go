package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"callqa/internal/config"
)

// Type enumerates job lifecycle events.
type Type string

const (
	JobStarted  Type = "job.started"
	StepChanged Type = "job.step"
	JobFinished Type = "job.finished"
)

// subjectToken is the last subject token for t.
func (t Type) subjectToken() string {
	return strings.TrimPrefix(string(t), "job.")
}

// Event is the JSON payload published for every lifecycle change.
type Event struct {
	Type          Type      `json:"type"`
	JobID         string    `json:"jobId"`
	Stage         string    `json:"stage,omitempty"`
	Status        string    `json:"status"`
	Message       string    `json:"message,omitempty"`
	AccuracyScore *float64  `json:"accuracyScore,omitempty"`
	Time          time.Time `json:"time"`
}

// Publisher defines the event surface exposed to the workflow.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NewPublisher returns a NATS publisher when events are enabled and a
// connection is available, and a noop publisher otherwise.
func NewPublisher(cfg *config.Config, conn *nats.Conn) Publisher {
	if cfg == nil || !cfg.NATS.EventsEnabled || conn == nil {
		return Noop{}
	}
	subject := strings.TrimSpace(cfg.NATS.EventsSubject)
	if subject == "" {
		subject = "callqa.jobs"
	}
	return &natsPublisher{conn: conn, prefix: subject}
}

// Noop discards events.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

type natsPublisher struct {
	conn   *nats.Conn
	prefix string
}

// Subject returns the subject an event of type t is published on.
func Subject(prefix string, t Type) string {
	return prefix + "." + t.subjectToken()
}

func (p *natsPublisher) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := nats.NewMsg(Subject(p.prefix, event.Type))
	msg.Data = data
	msg.Header.Set("Callqa-Job-Id", event.JobID)
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	return nil
}
