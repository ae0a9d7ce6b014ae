package daemonrun

import (
	"context"
	"log/slog"

	"callqa/internal/config"
	"callqa/internal/preflight"
)

// CheckDependencies probes every pipeline dependency without starting the
// daemon. Failures to reach NATS or build the adapters are reported as
// failed results rather than errors.
func CheckDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) []preflight.Result {
	broker, err := ConnectBroker(cfg, logger)
	if err != nil {
		return []preflight.Result{{Name: "nats", Detail: err.Error()}}
	}
	defer broker.Close()

	var results []preflight.Result
	if broker.Conn != nil {
		results = append(results, preflight.Result{Name: "nats", Passed: true})
	}
	adapters, _, err := BuildAdapters(cfg, broker.JetStream, logger)
	if err != nil {
		return append(results, preflight.Result{Name: "adapters", Detail: err.Error()})
	}
	return append(results, preflight.ForPipeline(cfg, adapters).RunAll(ctx)...)
}
