package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/retail-compliance/internal/container"
	"github.com/garyjia/retail-compliance/internal/infrastructure/storage"
)

func newExportCmd(opts *rootOptions) *cobra.Command {
	var month, out string

	cmd := &cobra.Command{
		Use:   "export-penalties",
		Short: "Write one month of the penalty ledger to an XLSX workbook",
		Long: "Write one month of the penalty ledger to an XLSX workbook. Without --out the\n" +
			"workbook is stored in the report archive (export.dir) as penalties-<month>.xlsx.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			cc := cfg.ToContainerConfig()
			cc.Scheduler.Enabled = false

			c, err := container.NewContainer(cc, logger)
			if err != nil {
				return err
			}
			if err := c.Start(cmd.Context()); err != nil {
				_ = c.Close()
				return err
			}
			defer func() {
				if err := c.Close(); err != nil {
					logger.Error("Failed to close container", zap.Error(err))
				}
			}()

			exporter := c.Services().Exporter
			var n int
			write := func(w io.Writer) error {
				var err error
				n, err = exporter.Export(cmd.Context(), month, w)
				return err
			}

			var path string
			if out == "" {
				archive := storage.NewReportArchive(cfg.Export.Dir, logger)
				path, err = archive.Store(cmd.Context(), fmt.Sprintf("penalties-%s.xlsx", month), write)
			} else {
				path, err = out, writeFile(out, write)
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "exported %d penalties to %s\n", n, path)
			return nil
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "ledger month, YYYY-MM")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default: the report archive)")
	_ = cmd.MarkFlagRequired("month")
	return cmd
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	err = write(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
	}
	return err
}
