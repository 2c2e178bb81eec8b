package titles

import "context"

// Caller identifies who asked for a write. It is logged, not sent to the
// ledger: the gateway's own identity signs every transaction.
type Caller struct {
	Subject string
	Org     string
}

type callerKey struct{}

func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}
