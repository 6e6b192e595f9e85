package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mtzanidakis/studioflow/internal/config"
	"github.com/mtzanidakis/studioflow/internal/export"
	"github.com/mtzanidakis/studioflow/internal/store"
)

var (
	exportFile      string
	importFile      string
	importOverwrite bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write all projects, tasks, communications and metrics to a .tar.zst archive",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		setupLogger(cfg.Log)

		gw, err := store.Open(cmd.Context(), cfg.Store)
		if err != nil {
			return fmt.Errorf("init store: %w", err)
		}
		defer gw.Close()

		sum, err := export.ExportFile(cmd.Context(), gw, exportFile)
		if err != nil {
			return err
		}
		fmt.Printf("Export complete: %d entities from %s, %s\n", sum.Total(), gw.Tier(), export.FormatSize(sum.Bytes))
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load an archive written by export",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		setupLogger(cfg.Log)

		gw, err := store.Open(cmd.Context(), cfg.Store)
		if err != nil {
			return fmt.Errorf("init store: %w", err)
		}
		defer gw.Close()

		sum, err := export.ImportFile(cmd.Context(), gw, importFile, export.ImportOptions{Overwrite: importOverwrite})
		if err != nil {
			return err
		}
		fmt.Printf("Import complete: %d entities into %s", sum.Total(), gw.Tier())
		if sum.Skipped > 0 {
			fmt.Printf(", %d existing skipped (use --overwrite to replace)", sum.Skipped)
		}
		fmt.Println()
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportFile, "file", "f", "", "output archive (.tar.zst)")
	_ = exportCmd.MarkFlagRequired("file")

	importCmd.Flags().StringVarP(&importFile, "file", "f", "", "archive to load")
	importCmd.Flags().BoolVar(&importOverwrite, "overwrite", false, "replace entities that already exist")
	_ = importCmd.MarkFlagRequired("file")
}
