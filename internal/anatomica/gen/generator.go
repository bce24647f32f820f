// Package gen provides the content-generation boundary: a single opaque
// remote call that turns a prompt into descriptive text.
//
// The call has unspecified latency and failure modes, and callers must treat
// any returned error as just an error: no retry, no cancellation once
// started, no inspection of provider-specific causes. Implementations must
// be safe for concurrent use from multiple goroutines.
package gen

import "context"

// Generator produces descriptive text for a prompt.
type Generator interface {
	// Generate invokes the remote service once. An empty string with a nil
	// error means the service answered but produced no usable text; callers
	// decide how to surface that.
	Generate(ctx context.Context, prompt string) (string, error)
}
