package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"signal-streamer/src/bootstrap"
	"signal-streamer/src/config"
	"signal-streamer/src/grpc_control"
	"signal-streamer/src/interfaces"
	"signal-streamer/src/logger"
	"signal-streamer/src/server"
)

const shutdownTimeout = 10 * time.Second

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "config/default.yaml", "path to config file")
	flag.Parse()

	// Load config from YAML file and the environment
	conf, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	appLogger := logger.NewLogger(conf.LogLevel, conf.Name)

	// 1. Setup Components. Execution keeps its own context so queued signals
	// still drain after the interrupt.
	components, err := bootstrap.Build(context.Background(), conf, appLogger)
	if err != nil {
		appLogger.Critical("Failed to build components: %v", err)
		return
	}

	// 2. Servers
	servers := []interfaces.IDataExchanger{
		server.NewFastAPIServer(conf.MConfig, components.Orchestrator, components.Journal, appLogger.Named("Server")),
	}
	if conf.GrpcPort > 0 {
		controlLogger := appLogger.Named("ControlService")
		control := grpc_control.NewControlService(components.Orchestrator, controlLogger)
		servers = append(servers, grpc_control.NewGrpcServer(conf.GrpcHost, conf.GrpcPort, control, controlLogger))
	}

	failed := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv interfaces.IDataExchanger) {
			if err := srv.Start(); err != nil {
				failed <- err
			}
		}(srv)
	}

	// 3. Wait for a signal or a server failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received %s, shutting down...", sig)
	case err := <-failed:
		appLogger.Error("Server failed: %v", err)
	}

	// 4. Graceful shutdown: stop accepting, then tear down pipelines and execution
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for _, srv := range servers {
		if err := srv.Stop(ctx); err != nil {
			appLogger.Warning("Server stop: %v", err)
		}
	}
	if err := components.Close(ctx); err != nil {
		appLogger.Warning("Shutdown incomplete: %v", err)
	}
	appLogger.Info("Shutdown complete.")
}
