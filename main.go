package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"raffler/api"
	"raffler/config"
	"raffler/database"
	"raffler/domain/interfaces"
	"raffler/domain/services"
	"raffler/infrastructure"
	"raffler/ledger"
	"raffler/repository"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// sweepInterval is how often the lifecycle sweep promotes scheduled raffles
// and flags ended ones.
const sweepInterval = time.Minute

func main() {
	// Missing .env is fine in deployed environments
	_ = godotenv.Load()

	// Check for migration subcommands
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := handleMigrationCommand(); err != nil {
			log.WithError(err).Fatal("migration failed")
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("received shutdown signal, shutting down gracefully")
		cancel()
	}()

	if err := run(ctx); err != nil {
		log.WithError(err).Fatal("application error")
	}
}

func handleMigrationCommand() error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: raffler migrate [up|down|status] [args...]")
	}

	switch os.Args[2] {
	case "up":
		return database.MigrateUp()
	case "down":
		steps := "1"
		if len(os.Args) > 3 {
			steps = os.Args[3]
		}
		return database.MigrateDown(steps)
	case "status":
		return database.MigrateStatus()
	default:
		return fmt.Errorf("unknown migration command: %s", os.Args[2])
	}
}

func run(ctx context.Context) error {
	cfg := config.Get()

	if cfg.Environment == "production" {
		log.SetFormatter(&log.JSONFormatter{})
	}

	db, err := database.NewConnection(ctx, cfg.GetDatabaseURL())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	var publisher interfaces.EventPublisher
	if cfg.NATSServers != "" {
		natsPublisher, err := infrastructure.NewNATSEventPublisher(cfg.NATSServers)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer natsPublisher.Close()
		publisher = natsPublisher
	} else {
		log.Warn("NATS_SERVERS not set, events will not be published")
		publisher = infrastructure.NewNoopEventPublisher()
	}

	raffleRepo := repository.NewRaffleRepository(db.Pool)
	entryRepo := repository.NewEntryRepository(db.Pool)

	ledgerClient := ledger.NewClient(
		cfg.SolanaRPCURL,
		cfg.RecipientWallet,
		cfg.USDCMint,
		cfg.OWLMint,
		cfg.AmountTolerance,
	)

	reconciler := services.NewReconciliationService(raffleRepo, entryRepo, ledgerClient, cfg.AmountTolerance)
	settlement := services.NewSettlementService(raffleRepo, entryRepo, ledgerClient, reconciler, publisher)
	winner := services.NewWinnerService(raffleRepo, entryRepo, publisher)
	lifecycle := services.NewLifecycleService(raffleRepo, entryRepo, publisher)

	go runLifecycleSweep(ctx, lifecycle)

	server := api.NewServer(cfg.ListenAddr, settlement, winner, lifecycle, raffleRepo, entryRepo, cfg.IsAdminWallet)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	return nil
}

// runLifecycleSweep periodically promotes scheduled raffles to live and marks
// ended ones ready to draw (or flags missed quorum).
func runLifecycleSweep(ctx context.Context, lifecycle interfaces.LifecycleService) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := lifecycle.PromoteScheduled(ctx); err != nil {
				log.WithError(err).Error("failed to promote scheduled raffles")
			}
			if _, err := lifecycle.SweepEnded(ctx, time.Now().UTC()); err != nil {
				log.WithError(err).Error("failed to sweep ended raffles")
			}
		}
	}
}
