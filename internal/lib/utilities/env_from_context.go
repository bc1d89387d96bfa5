package utilities

import "context"

type contextKey string

const (
	envKey  contextKey = "env"
	userKey contextKey = "user"
)

// WithEnv stores the deployment env in ctx
func WithEnv(ctx context.Context, env string) context.Context {
	return context.WithValue(ctx, envKey, env)
}

// EnvFromContext extracts env key from context
func EnvFromContext(ctx context.Context) string {
	if env, ok := ctx.Value(envKey).(string); ok {
		return env
	}
	return "development" // default
}
