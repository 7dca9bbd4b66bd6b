package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cyp0633/librecur/internal/config"
	"github.com/cyp0633/librecur/recurrence"
	"github.com/cyp0633/librecur/server"
	authmemory "github.com/cyp0633/librecur/server/auth/memory"
	"github.com/cyp0633/librecur/server/storage/memory"
	"github.com/spf13/cobra"
)

func newServeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the schedule server",
		Long: `Run the schedule API and the background sweep.

Schedules are kept in memory. Users come from auth.users in the config file
or LIBRECUR_AUTH_USER_LIST="alice:secret,bob:secret".

Examples:
  librecur serve --addr :9000
  librecur serve --sweep=false`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService(a.cfg, a.logger)
			if err != nil {
				return err
			}

			ln, err := net.Listen("tcp", a.cfg.Server.Addr)
			if err != nil {
				return fmt.Errorf("listening on %s: %w", a.cfg.Server.Addr, err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return svc.run(ctx, ln)
		},
	}

	cmd.Flags().String("addr", config.DefaultAddr, "address to listen on")
	cmd.Flags().String("prefix", config.DefaultPrefix, "URL prefix of the schedule API")
	cmd.Flags().String("realm", config.DefaultRealm, "Basic Auth realm")
	cmd.Flags().String("sweep-spec", config.DefaultSweepSpec, "cron spec of the background sweep")
	cmd.Flags().Bool("sweep", true, "run the background sweep")
	a.bind("addr", "server.addr")
	a.bind("prefix", "server.prefix")
	a.bind("realm", "server.realm")
	a.bind("sweep-spec", "sweep.spec")
	a.bind("sweep", "sweep.enabled")
	return cmd
}

// service is a wired server: storage, auth, engine, HTTP handler and sweep
type service struct {
	cfg     *config.Config
	logger  *slog.Logger
	engine  *recurrence.Engine
	handler *server.ScheduleHandler
	http    *http.Server
	sweeper *server.Sweeper // nil when the sweep is disabled
}

func newService(cfg *config.Config, logger *slog.Logger) (*service, error) {
	creds, err := cfg.Auth.Credentials()
	if err != nil {
		return nil, err
	}
	if len(creds) == 0 {
		logger.Warn("no users configured, every request will be rejected")
	}

	store := memory.New()
	authStore := authmemory.New(authmemory.WithLogger(logger), authmemory.WithUsers(creds))
	engine := recurrence.NewEngineWithConfig(cfg.Engine.Recurrence(), recurrence.WithLogger(logger))

	handler := server.NewScheduleHandler(cfg.Server.Prefix, cfg.Server.Realm, store, engine, authStore, logger)

	mux := http.NewServeMux()
	mux.Handle(handler.Prefix, handler)

	svc := &service{
		cfg:     cfg,
		logger:  logger,
		engine:  engine,
		handler: handler,
		http: &http.Server{
			Handler:      mux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
			ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		},
	}

	if cfg.Sweep.Enabled {
		svc.sweeper, err = server.NewSweeper(store, engine,
			server.WithSweepLogger(logger),
			server.WithSweepSpec(cfg.Sweep.Spec),
			server.WithSink(server.LogSink{Logger: logger}))
		if err != nil {
			engine.Close()
			return nil, err
		}
	}
	return svc, nil
}

// run serves on ln until ctx ends, then shuts down gracefully
func (s *service) run(ctx context.Context, ln net.Listener) error {
	defer s.engine.Close()

	if s.sweeper != nil {
		s.sweeper.Start()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(ln)
	}()
	s.logger.Info("server started",
		"addr", ln.Addr().String(),
		"prefix", s.handler.Prefix)

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		errs = append(errs, fmt.Errorf("serving: %w", serveErr))
	}
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("shutting down server: %w", err))
	}
	if s.sweeper != nil {
		if err := s.sweeper.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("stopping sweeper: %w", err))
		}
	}

	s.logger.Info("server stopped")
	return errors.Join(errs...)
}
