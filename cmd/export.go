package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yonasatinafu/portfolio-bot/internal/config"
	"github.com/yonasatinafu/portfolio-bot/internal/export"
	"github.com/yonasatinafu/portfolio-bot/internal/log"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Rebuild the knowledge corpus from the rendered site",
	Long: `export extracts visible text from the rendered HTML pages (or, when
none are present, crawls the configured site) and writes the JSONL
corpus the chatbot retrieves from.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport()
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
}

func runExport() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{Level: log.ParseLevel(cfg.LogLevel), JSON: cfg.LogJSON})

	rows, err := export.New(cfg.Export, cfg.SummaryPath, logger).Run()
	if err != nil {
		return fmt.Errorf("exporting knowledge: %w", err)
	}

	fmt.Printf("Exported %d rows to %s\n", rows, cfg.Export.OutputPath)
	return nil
}
