package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiwari-pos/terminal/internal/config"
	"github.com/kiwari-pos/terminal/internal/events"
	"github.com/kiwari-pos/terminal/internal/journal"
	"github.com/kiwari-pos/terminal/internal/remote"
	"github.com/kiwari-pos/terminal/internal/router"
	"github.com/kiwari-pos/terminal/internal/terminal"
	"github.com/kiwari-pos/terminal/internal/ws"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	port string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the terminal HTTP and WebSocket server",
		Long: `Serves the terminal API until SIGINT or SIGTERM. The payment journal is
enabled when DATABASE_URL is set and settled invoices are published when
AMQP_URL is set.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts, opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.port, "port", "", "listen port (overrides PORT)")

	return cmd
}

func runServe(rootOpts *RootOptions, opts *serveOptions, cmd *cobra.Command) error {
	cfg, err := config.Load(rootOpts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}
	if opts.port != "" {
		cfg.Port = opts.port
	}
	if rootOpts.Verbose {
		cfg.Verbose = true
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler, cleanup, err := newServer(ctx, cfg)
	if err != nil {
		return WrapExitError(ExitFailure, "start server", err)
	}
	defer cleanup()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Printf("Starting server on :%s", cfg.Port)
	if err := listenUntilDone(ctx, srv); err != nil {
		return WrapExitError(ExitFailure, "serve", err)
	}
	log.Println("Server stopped")
	return nil
}

// newServer wires the remote client, the optional journal and publisher, the
// terminal manager and the WebSocket hub into the HTTP router. The hub runs
// until ctx is done.
func newServer(ctx context.Context, cfg *config.Config) (http.Handler, func(), error) {
	client, err := remote.New(cfg.RemoteBaseURL, cfg.RemoteTimeout)
	if err != nil {
		return nil, nil, fmt.Errorf("remote client: %w", err)
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	hub := ws.NewHub()
	go hub.Run(ctx)

	opts := terminal.Options{
		Broadcaster:   hub,
		SafetyTimeout: cfg.SafetyTimeout,
		Verbose:       cfg.Verbose,
	}
	deps := router.Deps{Lists: client, Hub: hub}

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		closers = append(closers, pool.Close)
		if err := pool.Ping(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("ping database: %w", err)
		}
		log.Println("Connected to database; payment journal enabled")

		store := journal.New(pool)
		opts.Recorder = store
		deps.Journal = store
	} else {
		log.Println("WARN: DATABASE_URL not set; payment journal disabled")
	}

	if cfg.AMQPURL != "" {
		publisher, err := events.Dial(cfg.AMQPURL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect broker: %w", err)
		}
		closers = append(closers, publisher.Close)
		log.Printf("Publishing settled invoices to exchange %s", events.Exchange)
		opts.Publisher = publisher
	}

	deps.Terminals = terminal.NewManager(client, opts)
	return router.New(cfg, deps), cleanup, nil
}

// listenUntilDone serves until ctx is done, then drains in-flight requests.
func listenUntilDone(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Println("Shutting down server")
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
