package console

import "context"

type verboseKey struct{}

// SetVerbose marks ctx for verbose output: MCP2221 report dumps and debug
// console lines.
func SetVerbose(parent context.Context, value bool) context.Context {
	return context.WithValue(parent, verboseKey{}, value)
}

func IsVerbose(ctx context.Context) bool {
	v, _ := ctx.Value(verboseKey{}).(bool)
	return v
}
