package dcontext

import "context"

// DetachedContext returns a context that won't be canceled when the parent
// context is canceled. Values such as the logger and the request id are kept.
// Pinning uses it so that a finished batch is replicated even when the client
// has already gone away.
func DetachedContext(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
