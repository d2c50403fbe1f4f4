package main

import (
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/riverwatch/riverwatch/config"
)

// migrateCMD applies or rolls back the schema in migrations/, grounded
// on the teacher's internal/server/migrate.go.
func migrateCMD() *cobra.Command {
	var migDir string
	var direction string
	var steps int
	var cfgPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if cfg.Storage.Postgres.URL == "" {
				return fmt.Errorf("storage.postgres.url is required to migrate")
			}
			if migDir == "" {
				migDir = "file://migrations"
			}

			m, err := migrate.New(migDir, cfg.Storage.Postgres.URL)
			if err != nil {
				return fmt.Errorf("init migrator: %w", err)
			}
			defer m.Close()

			switch direction {
			case "up":
				if steps > 0 {
					err = m.Steps(steps)
				} else {
					err = m.Up()
				}
			case "down":
				if steps > 0 {
					err = m.Steps(-steps)
				} else {
					err = m.Down()
				}
			default:
				return fmt.Errorf("direction must be \"up\" or \"down\", got %q", direction)
			}
			if err != nil && err != migrate.ErrNoChange {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&migDir, "dir", "file://migrations", "migrations source")
	cmd.Flags().StringVar(&direction, "direction", "up", "up or down")
	cmd.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default searches ./config, .)")
	return cmd
}
