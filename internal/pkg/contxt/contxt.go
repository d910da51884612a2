package contxt

import (
	"context"
	"os"
	"time"
)

// NewContext derives a context bounded by timeout. Setting CONTEXT_TEST
// disables the timeout so requests can be stepped through in a debugger.
func NewContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if os.Getenv("CONTEXT_TEST") != "" {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}
