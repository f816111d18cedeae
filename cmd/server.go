package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/rvt-studio/internal/server"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the web studio and REST API",
	Long: `Starts the rvtstudio backend-for-frontend: a REST API over the catalog
backend, the local staging and audit stores, a live dashboard at / and a
websocket feed of import and bulk-edit progress at /ws/events.`,
	RunE: runServer,
}

func init() {
	serverCmd.Flags().Int("port", 0, "port to listen on (overrides server.port)")
	serverCmd.Flags().Bool("allow-all-origins", false, "allow every CORS origin (development)")
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Server.Port = port
	}
	if all, _ := cmd.Flags().GetBool("allow-all-origins"); all {
		cfg.Server.AllowAllOrigins = true
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	srv := server.New(cfg, database, newClient(cfg, ""))

	// Graceful shutdown.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		fmt.Fprintln(os.Stderr, "\nShutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	fmt.Fprintf(os.Stderr, "rvtstudio server %s starting on port %d\n", Version, cfg.Server.Port)
	fmt.Fprintf(os.Stderr, "  Backend:  %s\n", cfg.BackendURL)
	fmt.Fprintf(os.Stderr, "  Database: %s\n", database.Path())

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
