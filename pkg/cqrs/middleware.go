package cqrs

import (
	"context"
	"fmt"
)

// callFrame records one synchronous hop in the dispatch call trail, used
// both to enforce the synchronous recursion ceiling and to
// render a human-readable trail in the resulting error.
type callFrame struct {
	kind     string
	typeName string
}

type callTrailKey struct{}

// callTrailFromContext returns the synchronous call trail accumulated on
// ctx so far, oldest frame first. Empty for a context that has never
// passed through the interceptor.
func callTrailFromContext(ctx context.Context) []callFrame {
	trail, _ := ctx.Value(callTrailKey{}).([]callFrame)
	return trail
}

// appendCallTrail derives a context with frame appended to the existing
// trail. The trail only grows across synchronous nesting within the same
// goroutine — crossing an async/transport hop starts a fresh trail and
// instead advances the hop counter in execctx.
func appendCallTrail(ctx context.Context, frame callFrame) context.Context {
	trail := callTrailFromContext(ctx)
	next := make([]callFrame, len(trail)+1)
	copy(next, trail)
	next[len(trail)] = frame
	return context.WithValue(ctx, callTrailKey{}, next)
}

func trailTypeNames(trail []callFrame) []string {
	names := make([]string, len(trail))
	for i, f := range trail {
		names[i] = fmt.Sprintf("%s:%s", f.kind, f.typeName)
	}
	return names
}

func summarizeResult(result any, err error) string {
	if err != nil {
		return "error"
	}
	if result == nil {
		return "ok"
	}
	return fmt.Sprintf("ok(%T)", result)
}
