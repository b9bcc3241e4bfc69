package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/prakoso/greenlock/internal/bus"
	"github.com/prakoso/greenlock/internal/config"
	"github.com/prakoso/greenlock/internal/fuzzy"
	"github.com/prakoso/greenlock/internal/idgen"
	"github.com/prakoso/greenlock/internal/lane"
	"github.com/spf13/cobra"
)

var (
	runSection int
	runProfile string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the lane controller daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		// The --nats-url flag already folds in GREENLOCK_NATS_URL.
		os.Setenv("GREENLOCK_NATS_URL", natsURL)
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("section") {
			cfg.Section = runSection
		}
		if cfg.Section <= 0 {
			return fmt.Errorf("a road section is required (--section or GREENLOCK_SECTION)")
		}
		if cmd.Flags().Changed("profile") {
			cfg.Profile = runProfile
		}

		profile, err := fuzzy.Load(cfg.Profile)
		if err != nil {
			return err
		}

		name, err := idgen.ClientName("lane", cfg.Section)
		if err != nil {
			return err
		}

		pub, err := bus.NewNATSPublisher(cfg.NATSURL, nats.Name(name))
		if err != nil {
			return err
		}

		sub, err := bus.NewNATSSubscriber(cfg.NATSURL,
			nats.Name(name),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				logger.Warn("nats: disconnected", "err", err)
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				logger.Info("nats: reconnected")
			}),
		)
		if err != nil {
			pub.Close()
			return err
		}

		ctrl := lane.New(lane.Config{
			Section:        cfg.Section,
			Profile:        profile,
			Publisher:      pub,
			Logger:         logger,
			RequestTimeout: cfg.RequestTimeout,
			RequestRetry:   cfg.RequestRetry,
			PollInterval:   cfg.PollInterval,
		})

		logger.Info("lane controller starting",
			"section", cfg.Section,
			"profile", profile.Name,
			"nats_url", cfg.NATSURL,
			"client_name", name,
		)

		// Run until SIGINT or SIGTERM.
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		err = ctrl.Run(ctx, sub)

		// Graceful shutdown: the controller has already parked the head
		// at red and released the token on its way out.
		sub.Close()
		if cerr := pub.Close(); cerr != nil {
			logger.Error("error closing publisher", "err", cerr)
		}
		if err != nil {
			return err
		}
		logger.Info("shutdown complete")
		return nil
	},
}

func init() {
	runCmd.Flags().IntVar(&runSection, "section", 0, "road section this controller owns")
	runCmd.Flags().StringVar(&runProfile, "profile", "", "fuzzy profile name or TOML file path")
}
