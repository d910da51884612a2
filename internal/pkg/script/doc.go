// Package script runs user automation scripts.
//
// Capabilities are contributed by providers as named bindings and merged
// once at startup. The Engine loads a script through a Repository, checks
// the capabilities it requires, and runs it on a Host under a per-run
// timeout. Script failures are logged and never reach the caller.
package script
