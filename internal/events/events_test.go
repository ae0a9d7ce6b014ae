package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"callqa/internal/config"
)

func startServer(t *testing.T) *nats.Conn {
	t.Helper()
	opts := test.DefaultTestOptions
	opts.Port = -1
	natsServer := test.RunServer(&opts)
	t.Cleanup(natsServer.Shutdown)

	conn, err := nats.Connect(natsServer.ClientURL())
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	return conn
}

func TestNewPublisherNoopWhenDisabled(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.NATS.EventsEnabled = false
	_, ok := NewPublisher(&cfg, nil).(Noop)
	require.True(t, ok)

	cfg.NATS.EventsEnabled = true
	_, ok = NewPublisher(&cfg, nil).(Noop)
	require.True(t, ok, "missing connection should fall back to noop")
	require.NoError(t, Noop{}.Publish(context.Background(), Event{Type: JobStarted}))
}

func TestNATSPublisherDeliversEvents(t *testing.T) {
	t.Parallel()
	conn := startServer(t)

	sub, err := conn.SubscribeSync("callqa.test.>")
	require.NoError(t, err)
	require.NoError(t, conn.Flush())

	cfg := config.Default()
	cfg.NATS.EventsEnabled = true
	cfg.NATS.EventsSubject = "callqa.test"
	publisher := NewPublisher(&cfg, conn)

	score := 0.9
	require.NoError(t, publisher.Publish(context.Background(), Event{Type: JobStarted, JobID: "job-1", Status: "RUNNING"}))
	require.NoError(t, publisher.Publish(context.Background(), Event{Type: JobFinished, JobID: "job-1", Status: "SUCCEEDED", AccuracyScore: &score}))

	first, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	require.Equal(t, "callqa.test.started", first.Subject)
	require.Equal(t, "job-1", first.Header.Get("Callqa-Job-Id"))

	var started Event
	require.NoError(t, json.Unmarshal(first.Data, &started))
	require.Equal(t, JobStarted, started.Type)
	require.False(t, started.Time.IsZero())

	second, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	require.Equal(t, "callqa.test.finished", second.Subject)
	var finished Event
	require.NoError(t, json.Unmarshal(second.Data, &finished))
	require.NotNil(t, finished.AccuracyScore)
	require.InDelta(t, 0.9, *finished.AccuracyScore, 1e-9)
}

func TestPublishRespectsCancelledContext(t *testing.T) {
	t.Parallel()
	conn := startServer(t)
	cfg := config.Default()
	cfg.NATS.EventsEnabled = true
	publisher := NewPublisher(&cfg, conn)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, publisher.Publish(ctx, Event{Type: StepChanged, JobID: "job-2"}))
}

func TestSubject(t *testing.T) {
	t.Parallel()
	require.Equal(t, "callqa.jobs.step", Subject("callqa.jobs", StepChanged))
}
