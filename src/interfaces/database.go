package interfaces

import "signal-streamer/src/models"

// -----------------------------------------------------------------------------
// ISignalJournal stores outbound trade signals.
// -----------------------------------------------------------------------------

type ISignalJournal interface {

	// -----------------------------------------------------------------------------

	// Initialize sets up the database schema and tables.
	Initialize() error

	// -----------------------------------------------------------------------------

	// SaveSignal appends one trade signal.
	SaveSignal(sig models.MTradeSignal) error

	// -----------------------------------------------------------------------------

	// RecentSignals returns up to limit signals, newest first.
	RecentSignals(limit int) ([]models.MTradeSignal, error)

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}
