package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/riverwatch/riverwatch/config"
	"github.com/riverwatch/riverwatch/internal/app"
)

// onceCMD runs a single cycle to completion and prints its AgentRunLog,
// useful for local testing and cron-less invocation (e.g. a Kubernetes
// CronJob driving riverwatchd instead of the built-in scheduler).
func onceCMD() *cobra.Command {
	var cfgPath string
	once := &cobra.Command{
		Use:   "once",
		Short: "Run a single cycle and exit",
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

			entry := a.Orchestrator.RunCycle(ctx)
			out, err := json.MarshalIndent(entry, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	once.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default searches ./config, .)")
	return once
}
