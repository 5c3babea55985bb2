package gateway

import "context"

// Reporter receives the FETCH description of every real network call made
// while handling a turn. The pipeline installs one bound to the turn's
// event emitter; background work (warmups, sweeps) runs without one.
type Reporter func(what string)

type reporterKey struct{}

// WithReporter returns a context carrying the reporter.
func WithReporter(ctx context.Context, r Reporter) context.Context {
	return context.WithValue(ctx, reporterKey{}, r)
}

// ReporterFromContext extracts the reporter, or nil when none is set.
func ReporterFromContext(ctx context.Context) Reporter {
	r, _ := ctx.Value(reporterKey{}).(Reporter)
	return r
}
