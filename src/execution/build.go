package execution

import (
	"fmt"
	"io"

	"signal-streamer/src/interfaces"
	"signal-streamer/src/logger"
	"signal-streamer/src/models"
)

// BuildSinks creates the sinks named in cfg.Sinks. The returned closers must
// be closed after the dispatcher stops.
func BuildSinks(cfg models.MExecutionConfig, journal interfaces.ISignalJournal, log *logger.Logger) ([]Sink, []io.Closer, error) {
	var (
		sinks   []Sink
		closers []io.Closer
	)
	for _, name := range cfg.Sinks {
		switch name {
		case "paper":
			sinks = append(sinks, NewPaperSink(cfg.AccountID, cfg.Quantity, log))
		case "journal":
			if journal == nil {
				return nil, nil, fmt.Errorf("journal sink requires execution.journal.db_type")
			}
			sinks = append(sinks, NewJournalSink(journal))
		case "kafka":
			if len(cfg.Kafka.Brokers) == 0 {
				return nil, nil, fmt.Errorf("kafka sink requires brokers")
			}
			k := NewKafkaSink(NewKafkaWriter(cfg.Kafka))
			sinks = append(sinks, k)
			closers = append(closers, k)
		default:
			return nil, nil, fmt.Errorf("unknown execution sink %q", name)
		}
	}
	return sinks, closers, nil
}
