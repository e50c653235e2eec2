package subscriber

import "errors"

var (
	// ErrReconnectExhausted is returned by Run when the reconnect policy allows
	// no further attempts.
	ErrReconnectExhausted = errors.New("subscriber: reconnect attempts exhausted")

	// ErrMissingDependency is returned by New when a required dependency is nil.
	ErrMissingDependency = errors.New("subscriber: missing dependency")
)
