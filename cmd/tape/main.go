package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"signal-streamer/src/bootstrap"
	"signal-streamer/src/config"
	"signal-streamer/src/logger"
)

// tape prints the enriched bar stream for one symbol as JSON lines, the same
// messages a websocket subscriber receives. Logs go to stderr.
func main() {

	// 1. Parse command line flags
	configPath := flag.String("config", "config/default.yaml", "path to config file")
	symbol := flag.String("symbol", "", "symbol to stream, e.g. ES or AAPL")
	limit := flag.Int("n", 0, "exit after n bars (0 streams until interrupted)")
	historyOnly := flag.Bool("history", false, "print the warm-up history and exit")
	flag.Parse()

	sym := strings.ToUpper(strings.TrimSpace(*symbol))
	if sym == "" {
		fmt.Fprintln(os.Stderr, "usage: tape -symbol SYMBOL [-config path] [-n bars] [-history]")
		os.Exit(2)
	}

	// 2. Load config
	conf, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// 3. Setup Logger
	appLogger := logger.NewLoggerWithWriter(os.Stderr, conf.LogLevel, "tape")

	// 4. Setup Components
	components, err := bootstrap.Build(context.Background(), conf, appLogger)
	if err != nil {
		appLogger.Critical("Failed to build components: %v", err)
		return
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := components.Close(ctx); err != nil {
			appLogger.Warning("Shutdown incomplete: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *historyOnly {
		enc := json.NewEncoder(os.Stdout)
		for _, bar := range components.Orchestrator.History(ctx, sym, conf.MarketData.History.Interval) {
			if err := enc.Encode(bar); err != nil {
				appLogger.Error("Write failed: %v", err)
				return
			}
		}
		return
	}

	// 5. Attach and stream
	tape := newTapeConn(os.Stdout, *limit)
	if err := components.Orchestrator.Attach(sym, tape); err != nil {
		appLogger.Error("Attach %s failed: %v", sym, err)
		return
	}
	appLogger.Info("Streaming %s (simulation=%v)", sym, bootstrap.Simulated(conf))

	select {
	case <-ctx.Done():
		appLogger.Info("Interrupted")
	case <-tape.Done():
		if se := tape.StreamError(); se != nil {
			appLogger.Error("Stream ended: %s", se.Error)
		}
	}
	components.Orchestrator.Detach(sym, tape)
}
