package cache

import (
	"context"

	"github.com/getsentry/sentry-go"
)

// Lookup traces one cached read. Without a sentry hub in ctx every method is
// a no-op.
type Lookup struct {
	span *sentry.Span
}

// StartLookup opens a span named after the cached resource
func StartLookup(ctx context.Context, resource string, data map[string]interface{}) *Lookup {
	if sentry.GetHubFromContext(ctx) == nil {
		return &Lookup{}
	}

	span := sentry.StartSpan(ctx, "cache.get", sentry.WithDescription("cache."+resource))
	span.SetData("cache.resource", resource)
	for k, v := range data {
		span.SetData(k, v)
	}
	return &Lookup{span: span}
}

// Hit records that the value was served from the cache
func (l *Lookup) Hit() {
	l.finish(true, nil)
}

// Miss records that the value had to be loaded
func (l *Lookup) Miss() {
	l.finish(false, nil)
}

// Fail records a load error
func (l *Lookup) Fail(err error) {
	l.finish(false, err)
}

func (l *Lookup) finish(hit bool, err error) {
	if l.span == nil {
		return
	}
	l.span.SetData("cache.hit", hit)
	l.span.Status = sentry.SpanStatusOK
	if err != nil {
		l.span.Status = sentry.SpanStatusInternalError
		l.span.SetData("error", err.Error())
	}
	l.span.Finish()
	l.span = nil
}
