package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"quizpack/internal/config"
	transport "quizpack/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath *string) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server (REST + WebSocket)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return runServer(ctx, *configPath, port)
		},
	}
	cmd.Flags().StringVar(&port, "port", os.Getenv("PORT"), "port to listen on (overrides server.port)")
	return cmd
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if portFlag != "" {
		cfg.Server.Port = portFlag
	}
	logger := newLogger(cfg, os.Stdout)

	rt, err := bootstrap(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	router := transport.NewRouter(transport.RouterConfig{
		Resolver: rt.resolver,
		Tracker:  rt.tracker,
		Auth:     rt.auth,
		Endpoint: cfg.Packs.Endpoint,
		Checks:   rt.checks,
		Logger:   logger,
	})
	srv := transport.NewServer(":"+cfg.Server.Port, router, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down quiz server")
		return srv.Shutdown(context.Background())
	})
	g.Go(func() error {
		rt.discover(gctx)
		return nil
	})
	return g.Wait()
}
