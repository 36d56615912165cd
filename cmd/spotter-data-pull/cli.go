package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	httpapi "github.com/i474232898/spotter-data-pull/internal/api/http"
	"github.com/i474232898/spotter-data-pull/internal/config"
	"github.com/i474232898/spotter-data-pull/internal/logging"
	"github.com/i474232898/spotter-data-pull/internal/scheduler"
	"github.com/i474232898/spotter-data-pull/internal/store"
	"github.com/i474232898/spotter-data-pull/internal/wave"
	"github.com/i474232898/spotter-data-pull/internal/wave/providers"
)

func newRootCmd(stderr io.Writer) *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "spotter-data-pull <start_date> <end_date> <outdir>",
		Short: "Pull data from Sofar Spotter wave sensors",
		Long: fmt.Sprintf(`Pull data from Sofar Spotter wave sensors.
Version %s

Every device in the fleet is queried once per day between start_date and
end_date (inclusive, YYYY-MM-DD). Each day is saved to
<outdir>/<device>/<device>_<YYYYMMDD>.json.

The API token is read from SOFAR_TOKEN (a .env file is honoured).`, version),
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rng, err := parseRange(args[0], args[1])
			if err != nil {
				return err
			}
			env, err := setup(stderr, verbose, args[2])
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if _, err := env.service.Run(ctx, rng); err != nil {
				env.log.Error().Err(err).Msg("pull failed")
				return &exitError{code: exitFailure, err: err}
			}
			return nil
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Control the amount of information to display")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve <outdir>",
			Short: "Serve pulled wave data over HTTP",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				env, err := setup(stderr, verbose, args[0])
				if err != nil {
					return err
				}
				return serve(cmd.Context(), env, stderr, verbose)
			},
		},
		&cobra.Command{
			Use:   "schedule <outdir>",
			Short: "Pull the previous day once a day until interrupted",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				env, err := setup(stderr, verbose, args[0])
				if err != nil {
					return err
				}

				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				sched := scheduler.New(env.cfg.DailyAt, env.service, env.log)
				if err := sched.Start(ctx); err != nil {
					return err
				}
				defer sched.Stop()

				<-ctx.Done()
				return nil
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "spotter-data-pull %s\n", version)
			},
		},
	)

	return root
}

func parseRange(start, end string) (wave.DateRange, error) {
	s, err := wave.ParseDay(start)
	if err != nil {
		return wave.DateRange{}, fmt.Errorf("start_date: %w", err)
	}
	e, err := wave.ParseDay(end)
	if err != nil {
		return wave.DateRange{}, fmt.Errorf("end_date: %w", err)
	}
	return wave.DateRange{Start: s, End: e}, nil
}

type environment struct {
	cfg     *config.AppConfig
	log     zerolog.Logger
	store   *store.FileStore
	service *wave.Service
}

// setup loads configuration and wires the client, store and service.
func setup(stderr io.Writer, verbose bool, outdir string) (*environment, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logging.New(stderr, logging.Options{Verbose: verbose, Format: cfg.LogFormat})

	client := providers.NewSofarClient(providers.SofarConfig{
		BaseURL: cfg.APIBaseURL,
		Token:   cfg.SofarToken,
		Timeout: cfg.HTTPTimeout,
		Backoff: providers.BackoffConfig{
			MaxRetries:      cfg.MaxRetries,
			InitialInterval: cfg.RetryInitial,
			MaxInterval:     cfg.RetryMax,
		},
		BreakerThreshold: cfg.BreakerFailures,
	}, log)

	fs, err := store.NewFileStore(outdir)
	if err != nil {
		return nil, err
	}

	return &environment{
		cfg:     cfg,
		log:     log,
		store:   fs,
		service: wave.NewService(client, fs, log),
	}, nil
}

func serve(parent context.Context, env *environment, stderr io.Writer, verbose bool) error {
	app := fiber.New(fiber.Config{
		AppName:               "spotter-data-pull",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	if verbose {
		app.Use(fiberlogger.New(fiberlogger.Config{Output: stderr}))
	}
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "spotter-data-pull",
		})
	})

	httpapi.RegisterRoutes(app, env.store)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(":" + env.cfg.Port)
	}()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil {
			env.log.Error().Err(err).Msg("fiber server stopped")
			return &exitError{code: exitFailure, err: err}
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		env.log.Error().Err(err).Msg("error during shutdown")
	}
	return nil
}
