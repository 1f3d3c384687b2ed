package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/frozenspider/chat-history-manager-go/internal/api"
	"github.com/frozenspider/chat-history-manager-go/internal/scheduler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run chathistmgr as a daemon serving the HTTP API and scheduled backups",
	Long: `Run chathistmgr as a long-running daemon that:
  - serves the HTTP API on the configured port (default: 8080)
  - runs any enabled [[backups]] schedules from config.toml

Configure schedules in config.toml:
  [[backups]]
  name     = "nightly"
  schedule = "0 2 * * *"   # 2am daily (cron format)
  enabled  = true

Use Ctrl+C to stop the daemon gracefully.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.Server.ValidateSecure(); err != nil {
		return err
	}

	reg := api.NewRegistry()
	if _, err := reg.Load(cfg.DatabaseDSN()); err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer reg.CloseAll()

	sched := scheduler.New(func(ctx context.Context, name string) error {
		s, err := reg.Get(firstLoadedKey(reg))
		if err != nil {
			return err
		}
		_, err = s.Backup()
		return err
	}).WithLogger(logger)

	count, errs := sched.AddSchedulesFromConfig(cfg)
	for _, e := range errs {
		logger.Error("failed to schedule backup", "error", e)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if count > 0 {
		sched.Start()
	}

	apiServer := api.NewServer(cfg, reg, logger)
	serverErr := make(chan error, 1)
	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	bindAddr := cfg.Server.BindAddr
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}
	fmt.Printf("chathistmgr daemon started\n")
	fmt.Printf("  API server: http://%s\n", net.JoinHostPort(bindAddr, strconv.Itoa(cfg.Server.APIPort)))
	fmt.Printf("  Scheduled backups: %d\n", count)
	fmt.Printf("  Data directory: %s\n", cfg.Data.DataDir)
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
		fmt.Printf("\nReceived %s, shutting down...\n", sig)
	case err := <-serverErr:
		logger.Error("API server error", "error", err)
		fmt.Printf("\nAPI server error: %v\n", err)
	case <-ctx.Done():
		logger.Info("context cancelled")
	}

	fmt.Println("Shutting down API server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown error", "error", err)
	}

	if count > 0 {
		fmt.Println("Waiting for running backups to complete...")
		schedCtx := sched.Stop()
		select {
		case <-schedCtx.Done():
			fmt.Println("Shutdown complete.")
		case <-time.After(30 * time.Second):
			fmt.Println("Shutdown timed out after 30 seconds.")
		}
	}

	return nil
}

// firstLoadedKey returns the key of the single store this daemon preloads at
// startup, the only store its cron-driven backups apply to.
func firstLoadedKey(reg *api.Registry) string {
	loaded := reg.GetLoaded()
	if len(loaded) == 0 {
		return ""
	}
	return loaded[0].Key
}
