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

	"flexchat/config"
	"flexchat/config/database"
	"flexchat/internal/chat/service"
	"flexchat/pkg/logger"
	"flexchat/pkg/version"
	"flexchat/router"
	"flexchat/socket"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()
	var cfg config.Config

	cmd := &cobra.Command{
		Use:     "flexchat",
		Short:   "Channel chat server backed by one TOML document",
		Version: version.App,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.BindFlags(v, cmd.Flags()); err != nil {
				return err
			}
			loaded, err := config.Load(v)
			if err != nil {
				return err
			}
			cfg = loaded
			logger.Init(cfg.LogLevel)
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String(config.KeyConfig, "", "Config file path (optional).")
	cmd.PersistentFlags().String(config.KeyDatabaseDir, "", "Directory holding database.toml (default: working directory).")
	cmd.PersistentFlags().String(config.KeyLogLevel, "info", "Log level: debug, info, warn, error.")

	cmd.AddCommand(newServerCmd(&cfg))
	cmd.AddCommand(newMigrateCmd(&cfg))
	return cmd
}

func newServerCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Serve the chat API",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer logger.Sync()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, *cfg)
		},
	}
	cmd.Flags().String(config.KeyAddress, ":8080", "Listen address.")
	cmd.Flags().Bool(config.KeyAutoMigrate, false, "Migrate an older database before serving.")
	return cmd
}

func newMigrateCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Migrate the database to this release",
		RunE: func(cmd *cobra.Command, args []string) error {
			defer logger.Sync()
			applied, err := database.Migrate(cfg.DatabaseDir)
			if err != nil {
				logger.Sugar.Errorf("Migration failed: %v", err)
				return err
			}
			logger.Sugar.Infof("Migration finished, %d step(s) applied", applied)
			return nil
		},
	}
}

func runServer(ctx context.Context, cfg config.Config) error {
	s, err := database.Connect(cfg.DatabaseDir, cfg.AutoMigrate)
	if err != nil {
		return err
	}

	svc := service.NewChatService(s)
	hub := socket.NewHub(svc)

	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           router.Setup(svc, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		logger.Sugar.Infof("Go Backend listening on %s", cfg.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Sugar.Info("Shutting down")
		// Release long polls first so Shutdown does not wait on them.
		svc.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
