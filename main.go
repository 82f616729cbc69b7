package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"diabetes-clinic-server/internal/config"
	"diabetes-clinic-server/internal/equipment"
	"diabetes-clinic-server/internal/labs"
	"diabetes-clinic-server/internal/logger"
	"diabetes-clinic-server/internal/models"
	"diabetes-clinic-server/internal/notify"
	"diabetes-clinic-server/internal/routes"
	"diabetes-clinic-server/internal/utils"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "diabetes-clinic-server",
		Short:        "Equipment and lab result service for the diabetes clinic",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// .env is optional; real deployments set the environment directly
			_ = godotenv.Load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
	root.AddCommand(newServeCmd(), newMigrateCmd(), newTokenCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the MySQL schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			log := logger.New(cfg.LogLevel)

			db, err := models.InitDB(models.DatabaseConfig{DSN: cfg.Database.DSN})
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			if err := models.Migrate(db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.WithComponent("migrate").Info("Schema is up to date")
			return nil
		},
	}
}

func newTokenCmd() *cobra.Command {
	var (
		id   string
		name string
		role string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed access token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			actor := models.Actor{ID: id, Name: name, Role: models.Role(role)}
			if !actor.Role.Valid() {
				return fmt.Errorf("unknown role %q", role)
			}
			token, err := utils.GenerateAccessToken(actor, cfg.JWTSecret, time.Duration(cfg.JWTExpirationMinutes)*time.Minute)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "user ID (required)")
	cmd.Flags().StringVar(&name, "name", "", "display name recorded in provenance fields")
	cmd.Flags().StringVar(&role, "role", string(models.RoleStaff), "role: admin, doctor, lab, staff or patient")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func runServe() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.LogLevel)
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	catalog := labs.DefaultCatalog()
	if cfg.Lab.CatalogPath != "" {
		if catalog, err = labs.LoadCatalog(cfg.Lab.CatalogPath); err != nil {
			return err
		}
	}

	var notifier notify.Notifier = notify.NewLogNotifier(log)
	if len(cfg.Kafka.Brokers) > 0 {
		notifier = notify.NewKafkaNotifier(cfg.Kafka.Brokers, cfg.Kafka.CriticalTopic)
	}
	defer notifier.Close()

	var (
		equipmentRepo equipment.Repository
		labRepo       labs.Repository
	)
	switch cfg.StoreBackend {
	case config.StoreMySQL:
		db, err := models.InitDB(models.DatabaseConfig{DSN: cfg.Database.DSN})
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		equipmentRepo = equipment.NewGormRepository(db)
		labRepo = labs.NewGormRepository(db)
	default:
		equipmentRepo = equipment.NewMemoryRepository()
		labRepo = labs.NewMemoryRepository()
	}

	svc := routes.Services{
		Equipment: equipment.NewManager(equipmentRepo, log, equipment.WithExpiringSoonDays(cfg.Equipment.ExpiringSoonDays)),
		Labs:      labs.NewInterpreter(labRepo, catalog, notifier, log),
	}
	router := routes.NewRouter(cfg, log, svc)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.WithComponent("server").WithField("port", cfg.Port).
			WithField("store", cfg.StoreBackend).
			Info("Server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.WithComponent("server").Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
