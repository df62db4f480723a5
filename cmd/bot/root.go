package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"PreBurstSentinel/internal/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "configs/config.yaml"

// Execute builds the command tree and runs it.
func Execute(ctx context.Context) error {
	var cfgPath string
	var cfg *config.Config

	root := &cobra.Command{
		Use:           "preburst",
		Short:         "PreBurst Sentinel: Bollinger squeeze scanner with Telegram alerts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("config") {
				if v := os.Getenv("CONFIG_PATH"); v != "" {
					cfgPath = v
				}
			}
			loaded, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := loaded.Validate(); err != nil {
				return fmt.Errorf("config validation: %w", err)
			}
			if err := setupLogging(loaded.Log.Level, loaded.Log.Format); err != nil {
				return err
			}
			*cfg = *loaded
			return nil
		},
	}
	cfg = &config.Config{}
	root.PersistentFlags().StringVar(&cfgPath, "config", defaultConfigPath, "path to the YAML config (or CONFIG_PATH)")

	run := runCmd(cfg)
	root.RunE = run.RunE
	root.AddCommand(run, scanCmd(cfg), universeCmd(cfg))
	return root.ExecuteContext(ctx)
}

func setupLogging(level, format string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	zerolog.SetGlobalLevel(lvl)
	if format == "json" {
		zerolog.TimeFieldFormat = time.RFC3339
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return nil
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	return nil
}
