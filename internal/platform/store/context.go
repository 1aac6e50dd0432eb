package store

import "context"

type (
	testTagKey struct{}
	jobIDKey   struct{}
)

// WithTestTag attaches a testing-session qualifier to the context so test
// runs address their own rows without colliding with production data
func WithTestTag(ctx context.Context, tag string) context.Context {
	return context.WithValue(ctx, testTagKey{}, tag)
}

// TestTag retrieves the testing-session qualifier from context if present
func TestTag(ctx context.Context) (string, bool) {
	v := ctx.Value(testTagKey{})
	if v == nil {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// WithJobID attaches a queue item id to the context
func WithJobID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, jobIDKey{}, id)
}

// JobID retrieves a queue item id from context if present
func JobID(ctx context.Context) (string, bool) {
	v := ctx.Value(jobIDKey{})
	if v == nil {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}
