// Package main implements the certwatch command-line application.
// Certwatch supervises a TLS server process and keeps its credential files in
// sync with a source directory refreshed by an external certificate issuer,
// triggering an in-place reload whenever the credentials change.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/arhuman/certwatch/internal/checksum"
	"github.com/arhuman/certwatch/internal/config"
	"github.com/arhuman/certwatch/internal/install"
	"github.com/arhuman/certwatch/internal/logging"
	"github.com/arhuman/certwatch/internal/reload"
	"github.com/arhuman/certwatch/internal/rotation"
	"github.com/arhuman/certwatch/internal/supervisor"
	"github.com/arhuman/certwatch/internal/version"

	"go.uber.org/zap"
)

// checkVersionFlag checks if version flag was provided and prints version if so
func checkVersionFlag() bool {
	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-v") {
		fmt.Printf("Certwatch %s\n", version.Info())
		return true
	}
	return false
}

func main() {
	// Check for version flag
	if checkVersionFlag() {
		return
	}

	// Load configuration from environment, .env file, and command line flags
	cfg, err := config.LoadWatcherConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Set up logging with atomic level for dynamic log level control
	logger, _, err := logging.SetupLogger(cfg.Debug)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting certwatch", zap.String("version", version.Component("Certwatch")))
	cfg.LogConfig(logger)

	// Open the persisted fingerprint records
	records, err := checksum.OpenBolt(cfg.StatePath)
	if err != nil {
		logger.Fatal("Failed to open state database", zap.Error(err), zap.String("path", cfg.StatePath))
	}
	defer records.Close()

	// Resolve the service account installed files belong to
	owner, err := install.LookupOwner(cfg.ServiceUser, cfg.ServiceGroup)
	if err != nil {
		logger.Fatal("Failed to resolve service account", zap.Error(err))
	}

	detector := checksum.NewStore(records, logger)
	installer := install.NewInstaller(cfg.DestDir, owner, records, logger)

	pairs := []install.CredentialPair{
		{Role: checksum.RoleCert, SourcePath: cfg.SourceCertPath(), DestPath: cfg.DestCertPath()},
		{Role: checksum.RoleKey, SourcePath: cfg.SourceKeyPath(), DestPath: cfg.DestKeyPath()},
	}

	// Launch the server, or attach to an externally managed one
	var sup *supervisor.Supervisor
	var signaler reload.Signaler
	var serverDone <-chan struct{}
	if cfg.NoSupervise {
		remote, err := supervisor.FromPidFile(cfg.PidFile, logger)
		if err != nil {
			logger.Fatal("Failed to attach to server", zap.Error(err), zap.String("pid_file", cfg.PidFile))
		}
		signaler = remote
	} else {
		sup = supervisor.New(logger)
		if err := sup.Start(cfg.ServerCommand, cfg.ServerArgs...); err != nil {
			logger.Fatal("Failed to start server", zap.Error(err), zap.String("command", cfg.ServerCommand))
		}
		signaler = sup
		serverDone = sup.Done()
	}

	// Pick the reload mechanism
	var reloader rotation.Reloader
	if cfg.ReloadMode == config.ReloadModePostgres {
		db, err := reload.OpenPG(cfg.ReloadConnInfo)
		if err != nil {
			logger.Fatal("Failed to configure postgres reload", zap.Error(err))
		}
		pg := reload.NewPGTrigger(db, logger)
		defer pg.Close()
		reloader = pg
	} else {
		reloader = reload.NewSignalTrigger(signaler, logger)
	}

	// Start the rotation loop
	loop := rotation.NewLoop(pairs, detector, installer, reloader, cfg.PollInterval, cfg.StartupGrace, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		loop.Run(ctx)
	}()
	logger.Info("Rotation loop started")

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Received termination signal, shutting down...", zap.String("signal", sig.String()))
		cancel()
		<-loopDone
		if sup != nil {
			if err := sup.RequestShutdown(); err != nil {
				logger.Warn("Server shutdown request failed", zap.Error(err))
			}
			code := sup.AwaitExit()
			logger.Info("Server stopped", zap.Int("exit_code", code))
		}
		logger.Info("Certwatch stopped")

	case <-serverDone:
		// The supervised server exited on its own; nothing left to protect.
		code := sup.AwaitExit()
		logger.Error("Server exited unexpectedly", zap.Int("exit_code", code))
		cancel()
		<-loopDone
		if code != 0 {
			records.Close()
			logger.Sync()
			os.Exit(code)
		}
	}
}
