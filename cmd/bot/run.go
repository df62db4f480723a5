package main

import (
	"context"
	"fmt"
	"time"

	"PreBurstSentinel/internal/config"
	"PreBurstSentinel/internal/httpapi"
	"PreBurstSentinel/internal/metrics"
	"PreBurstSentinel/internal/notifier"
	"PreBurstSentinel/internal/scheduler"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func runCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the scanner bot with Telegram commands and alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context(), cfg)
		},
	}
}

func runBot(ctx context.Context, cfg *config.Config) error {
	if err := cfg.ValidateTelegram(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	log.Info().Strs("universe", cfg.Scan.Universe).Str("timeframe", cfg.Scan.Timeframe).Msg("PreBurst Sentinel starting")

	met := metrics.New()

	store, err := openStateStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}

	rec := openRecorder(cfg)
	defer rec.Close()

	tn := notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
	dispatcher := notifier.NewDispatcher(tn, cfg.Notify.Buffer, cfg.Notify.Retries, met)
	go dispatcher.Run(ctx)

	c, err := buildCore(ctx, cfg, store, dispatcher, rec, met)
	if err != nil {
		store.Close()
		return err
	}
	defer c.state.Close()

	synchronizer := scheduler.NewSynchronizer(scheduler.SyncConfig{
		Timeframe:     c.timeframe,
		CoarsePoll:    cfg.Clock.CoarsePoll,
		FinePoll:      cfg.Clock.FinePoll,
		NearWindow:    cfg.Clock.NearWindow,
		RetryAttempts: cfg.Clock.RetryAttempts,
		RetryBackoff:  cfg.Clock.RetryBackoff,
		LeaseTTL:      cfg.Clock.LeaseTTL,
		AutoResume:    cfg.Clock.AutoResume,
	}, c.state, c.scanner, c.provider.ServerTime, met)
	syncDone := make(chan struct{})
	go func() {
		defer close(syncDone)
		if err := synchronizer.Run(ctx); err != nil {
			log.Error().Err(err).Msg("synchronizer stopped")
		}
	}()

	sched := scheduler.NewScheduler(ctx, synchronizer, c.store, tn, cfg.Notify.Retries)
	if err := sched.RegisterDigest(cfg.Digest.Cron); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	go tn.StartPolling(ctx, sched.HandleCommand)
	log.Info().Msg("telegram polling started")

	var srv *httpapi.Server
	if cfg.HTTP.Addr != "" {
		srv = httpapi.NewServer(cfg.HTTP.Addr, synchronizer, c.store, rec, met)
		go func() {
			if err := srv.Start(); err != nil {
				log.Error().Err(err).Msg("http server")
			}
		}()
	}

	log.Info().Str("owner", synchronizer.Owner()).Msg("PreBurst Sentinel is running, send /init_scans to start. Press Ctrl+C to stop.")
	<-ctx.Done()
	log.Info().Msg("shutdown signal received, stopping...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("http shutdown")
		}
	}
	select {
	case <-syncDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("synchronizer did not stop in time")
	}
	select {
	case <-dispatcher.Done():
	case <-shutdownCtx.Done():
	}
	log.Info().Msg("PreBurst Sentinel stopped")
	return nil
}
