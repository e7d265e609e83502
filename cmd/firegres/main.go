// Command firegres serves a JSON tree store over HTTP, backed by Postgres,
// with change notifications streamed to clients as server-sent events.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/firegres/firegres/internal/config"
	"github.com/firegres/firegres/internal/server"
	"github.com/firegres/firegres/internal/storage/postgres"
	"github.com/firegres/firegres/internal/telemetry"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var (
		host       string
		port       int
		configPath string
	)

	cmd := &cobra.Command{
		Use:          "firegres",
		Short:        "JSON tree store over Postgres with SSE change feeds",
		Version:      Version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), host, port, configPath)
		},
	}
	cmd.Flags().StringVar(&host, "host", "localhost", "address to listen on")
	cmd.Flags().IntVar(&port, "port", 8666, "port to listen on")
	cmd.Flags().StringVar(&configPath, "config", "", "path to config.json (default: beside the executable)")
	return cmd
}

func run(ctx context.Context, host string, port int, configPath string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := telemetry.Init(ctx, "firegres", Version); err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.Shutdown(shutdownCtx)
	}()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	store, err := postgres.Open(ctx, cfg.ConnString())
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	srv := server.New(telemetry.WrapStorage(store))
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("firegres %s listening on %s", Version, addr)
		if err := srv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Printf("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
