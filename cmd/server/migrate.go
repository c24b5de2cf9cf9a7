package main

import (
	"fmt"
	"io/fs"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/garyjia/retail-compliance/internal/container"
	"github.com/garyjia/retail-compliance/migrations"
	"github.com/garyjia/retail-compliance/pkg/database"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	var statusOnly bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQLite schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			cc := cfg.ToContainerConfig()
			if cc.Database.Driver != container.DriverSQLite {
				return fmt.Errorf("migrate requires the %s driver", container.DriverSQLite)
			}

			var db *database.DB
			if statusOnly {
				db, err = database.New(database.Config{Path: cc.Database.Path, MaxOpenConns: 1}, logger)
			} else {
				db, err = container.OpenAndMigrate(&cc.Database, logger)
			}
			if err != nil {
				return err
			}
			defer db.Close()

			var source fs.FS = migrations.FS
			if cc.Database.MigrationsDir != "" {
				source = os.DirFS(cc.Database.MigrationsDir)
			}
			status, err := database.NewMigrator(db, logger).Status(cmd.Context(), source)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED")
			for _, s := range status {
				applied := "pending"
				if s.AppliedAt != nil {
					applied = s.AppliedAt.Local().Format(time.DateTime)
				}
				fmt.Fprintf(w, "%03d\t%s\t%s\n", s.Version, s.Name, applied)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&statusOnly, "status", false, "list migrations without applying them")
	return cmd
}
