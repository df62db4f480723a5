package scheduler

import (
	"context"
	"fmt"
	"strings"

	"PreBurstSentinel/internal/notifier"
	"PreBurstSentinel/internal/opportunity"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Scheduler manages the cron digest and answers chat commands.
type Scheduler struct {
	Cron    *cron.Cron
	Sync    *Synchronizer
	Store   *opportunity.Store
	Sender  notifier.Sender
	Retries int
	Ctx     context.Context
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, sync *Synchronizer, store *opportunity.Store, sender notifier.Sender, retries int) *Scheduler {
	return &Scheduler{
		Cron:    cron.New(cron.WithSeconds()),
		Sync:    sync,
		Store:   store,
		Sender:  sender,
		Retries: retries,
		Ctx:     ctx,
	}
}

// RegisterDigest schedules the open-opportunity digest. An empty spec disables it.
func (s *Scheduler) RegisterDigest(spec string) error {
	if spec == "" {
		return nil
	}
	if _, err := s.Cron.AddFunc(spec, s.digestTask); err != nil {
		return fmt.Errorf("register digest task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Info().Msg("scheduler started")
}

// Stop stops the cron scheduler gracefully.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) digestTask() {
	active := s.Store.Active()
	log.Info().Int("open", len(active)).Msg("running digest task")
	if len(active) == 0 {
		return
	}
	s.trySend(notifier.FormatOpportunities(active))
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return notifier.HelpText()
	}
	// Telegram appends the bot name in groups: /status@preburst_bot
	name, _, _ := strings.Cut(fields[0], "@")
	switch name {
	case "/init_scans", "/start":
		res, err := s.Sync.Start(ctx)
		if err != nil {
			log.Error().Err(err).Msg("start scan loop")
			return fmt.Sprintf("❌ Could not start scans: %v", err)
		}
		if res == AlreadyRunning {
			return "ℹ️ Scans are already running"
		}
		st := s.Sync.Status()
		return fmt.Sprintf("▶️ Scans started, next boundary %s", st.Watermark.NextBoundary.UTC().Format("2006-01-02 15:04 MST"))
	case "/display_universe":
		return notifier.FormatUniverse(s.Sync.Status().Watermark.Universe)
	case "/opportunities":
		return notifier.FormatOpportunities(s.Store.Active())
	case "/status":
		st := s.Sync.Status()
		return notifier.FormatStatus(st.Watermark, st.Degraded)
	default:
		return notifier.HelpText()
	}
}

func (s *Scheduler) trySend(text string) {
	if s.Sender == nil {
		return
	}
	if err := s.Sender.SendWithRetry(s.Ctx, text, s.Retries); err != nil {
		log.Error().Err(err).Msg("send notification")
	}
}
