package contextkey

import "context"

// key is a private type to avoid context key collisions across packages.
type key string

const (
	RunID     key = "run_id"
	TestLabel key = "test_label"
	Variant   key = "variant"
)

// WithRunID tags ctx with the identifier of the whole run.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RunID, id)
}

// WithTestLabel tags ctx with the label of the test being executed.
func WithTestLabel(ctx context.Context, label string) context.Context {
	return context.WithValue(ctx, TestLabel, label)
}

// WithVariant tags ctx with the compiler variant being exercised.
func WithVariant(ctx context.Context, variant string) context.Context {
	return context.WithValue(ctx, Variant, variant)
}
