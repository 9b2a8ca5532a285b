package interfaces

import "context"

// -----------------------------------------------------------------------------
// IConnection is one subscriber connection as seen by the broadcast layer.
// -----------------------------------------------------------------------------

type IConnection interface {
	// ID is stable for the lifetime of the connection.
	ID() string

	// -----------------------------------------------------------------------------
	// Send queues a message. A non-nil error means the connection is unusable.
	Send(message interface{}) error

	// -----------------------------------------------------------------------------
	// Close terminates the connection. Safe to call more than once.
	Close() error
}

// -----------------------------------------------------------------------------
// IDataExchanger is an outward-facing server with a lifecycle.
// -----------------------------------------------------------------------------

type IDataExchanger interface {
	// Start blocks serving until Stop is called or serving fails.
	Start() error

	// -----------------------------------------------------------------------------
	// Stop the server gracefully
	Stop(ctx context.Context) error
}
