package workflow_test

import (
	"context"

	"callqa/internal/preflight"
)

type readinessFunc func() []string

func (f readinessFunc) Check(context.Context) []preflight.Unavailable {
	var out []preflight.Unavailable
	for _, name := range f() {
		out = append(out, preflight.Unavailable{Name: name, Detail: "missing"})
	}
	return out
}
