package storage

import (
	"fmt"
	"strings"

	"signal-streamer/src/interfaces"
	"signal-streamer/src/logger"
	"signal-streamer/src/models"
)

// NewSignalJournal builds and initializes the journal selected by cfg.DBType.
// "none" (or empty) returns a nil journal and no error.
func NewSignalJournal(cfg models.MStorageConfig, serviceName string, log *logger.Logger) (interfaces.ISignalJournal, error) {
	var (
		journal interfaces.ISignalJournal
		err     error
	)
	switch strings.ToLower(cfg.DBType) {
	case "", "none":
		return nil, nil
	case "sqlite":
		journal, err = NewAsyncSQLiteDB(cfg, log)
	case "postgres":
		journal, err = NewPostgresDB(cfg, serviceName, log)
	default:
		return nil, fmt.Errorf("unsupported journal type %q", cfg.DBType)
	}
	if err != nil {
		return nil, err
	}
	if err := journal.Initialize(); err != nil {
		journal.Close()
		return nil, fmt.Errorf("initialize %s journal: %w", cfg.DBType, err)
	}
	return journal, nil
}
