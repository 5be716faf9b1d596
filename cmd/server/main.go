package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"

	"github.com/libersoft-org/yellow-server-module-messages/domain"
	"github.com/libersoft-org/yellow-server-module-messages/gateway"
	"github.com/libersoft-org/yellow-server-module-messages/internal"
	"github.com/libersoft-org/yellow-server-module-messages/repositories"
	"github.com/libersoft-org/yellow-server-module-messages/runtime"
	"github.com/libersoft-org/yellow-server-module-messages/runtime/workers"
	"github.com/libersoft-org/yellow-server-module-messages/transfer"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run funnels every failure into one error return so deferred cleanup always
// executes before the process exits.
func run() error {
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	level, err := config.SlogLevel()
	if err != nil {
		return err
	}
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	if err := os.MkdirAll(config.UploadFolder, 0o755); err != nil {
		return fmt.Errorf("create upload folder: %w", err)
	}

	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	uploadRepository := repositories.NewFileUploadRepository(db, log)
	attachmentRepository := repositories.NewAttachmentRepository(db, log)
	messageRepository := repositories.NewMessageRepository(db, log)

	store := transfer.NewStore(uploadRepository, log)
	relay := transfer.NewRelayBuffer(config.ForgetTolerance)
	manager := transfer.NewManager(store, relay, transfer.Config{
		Strategies: domain.DefaultStrategies(config.UploadFolder),
		Timeouts: transfer.TimeoutPolicy{
			ServerActive: config.ServerActiveTimeout,
			ServerPaused: config.ServerPausedTimeout,
			P2PActive:    config.P2PActiveTimeout,
			P2PPaused:    config.P2PPausedTimeout,
		},
		PrefetchTolerance: config.PrefetchTolerance,
	}, log)

	directory, err := gateway.NewStaticDirectory(config.AddressBook)
	if err != nil {
		return fmt.Errorf("address book: %w", err)
	}
	hub := gateway.NewHub(log)
	gw := gateway.NewGateway(manager, attachmentRepository, messageRepository, directory, hub, hub, gateway.Config{
		PersistChunksEvery: config.PersistChunkEvery,
		MaxFileSize:        config.MaxFileSize,
	}, log)

	if config.DebugPort > 0 {
		internal.StartDebugServer(db, config.DebugPort, log)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeper := workers.NewStaleSweeperWorker(manager, uploadRepository, gw.OnStaleUpload, config.SweepInterval, log)
	supervisor := runtime.NewSupervisor(log).Add(sweeper)
	supervisorDone := make(chan struct{})
	go func() {
		supervisor.Run(ctx)
		close(supervisorDone)
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gw.ServeWS)
	server := &http.Server{Addr: config.ListenAddr, Handler: mux}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting WebSocket server", "address", config.ListenAddr, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	supervisor.Stop()
	<-supervisorDone
	log.Info("Program stopped cleanly")

	return nil
}
