package main

import (
	"encoding/json"
	"fmt"
	"os"

	"PreBurstSentinel/internal/config"
	"PreBurstSentinel/internal/model"
	"PreBurstSentinel/internal/notifier"
	"PreBurstSentinel/internal/recorder"
	"PreBurstSentinel/internal/scanner"
	"PreBurstSentinel/internal/state"

	"github.com/spf13/cobra"
)

type scanOutput struct {
	Report        scanner.CycleReport `json:"report"`
	Opportunities []model.Opportunity `json:"opportunities"`
}

// scanCmd runs a single cycle against the last closed bar without touching the persisted
// watermark or sending alerts.
func scanCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run one scan cycle and print the report as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := buildCore(ctx, cfg, state.NewMemoryStore(), notifier.Nop{}, recorder.NewNoopRecorder(), nil)
			if err != nil {
				return err
			}
			defer c.state.Close()

			now := serverNow(ctx, c.provider)
			report := c.scanner.Scan(ctx, c.timeframe.Truncate(now), now)

			out := scanOutput{Report: report, Opportunities: c.store.Active()}
			if out.Opportunities == nil {
				out.Opportunities = []model.Opportunity{}
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}

func universeCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "universe",
		Short: "Print the configured universe",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, p := range cfg.Scan.Universe {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
}
