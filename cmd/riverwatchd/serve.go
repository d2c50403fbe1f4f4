package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/riverwatch/riverwatch/config"
	"github.com/riverwatch/riverwatch/internal/app"
	"github.com/riverwatch/riverwatch/internal/telemetry"
)

func serveCMD() *cobra.Command {
	var cfgPath string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and health/metrics HTTP surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			a, err := app.Build(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := telemetry.NewServer(cfg.Server.Address, a, telemetrySlogLogger(cfg), a.Registry)
			go func() {
				if err := srv.Start(); err != nil {
					telemetry.NewComponentLogger("HTTP").Printf("server error: %v", err)
				}
			}()

			a.Scheduler.Run(ctx)

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	serve.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default searches ./config, .)")
	return serve
}
