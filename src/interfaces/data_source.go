package interfaces

import (
	"context"
	"time"

	"signal-streamer/src/models"
)

// -----------------------------------------------------------------------------
// Market-data collaborators
// -----------------------------------------------------------------------------

// IHistoricalClient fetches raw OHLCV records for a time range.
type IHistoricalClient interface {
	FetchRange(ctx context.Context, req models.MHistoryRequest) ([]models.MRawRecord, error)
}

// -----------------------------------------------------------------------------

// ILiveClient opens live record subscriptions.
type ILiveClient interface {
	Subscribe(ctx context.Context, req models.MLiveRequest) (ILiveSubscription, error)
}

// -----------------------------------------------------------------------------

// ILiveSubscription is one open live stream. Recv blocks until a record
// arrives, the stream fails, or ctx is done.
type ILiveSubscription interface {
	Recv(ctx context.Context) (models.MRawRecord, error)
	Close() error
}

// -----------------------------------------------------------------------------
// Sources consumed by the orchestrator
// -----------------------------------------------------------------------------

// IHistorySource returns bars oldest first and never fails. A lookback of
// zero uses the configured default.
type IHistorySource interface {
	FetchHistory(ctx context.Context, symbol, interval string, lookback time.Duration) []models.MBar
}

// -----------------------------------------------------------------------------

// ILiveSource streams bars into out until ctx is cancelled or a terminal
// error occurs. It can be run once.
type ILiveSource interface {
	Run(ctx context.Context, out chan<- models.MBar) error
}
