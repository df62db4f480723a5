package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"PreBurstSentinel/internal/metrics"
	"PreBurstSentinel/internal/model"
	"PreBurstSentinel/internal/scanner"
	"PreBurstSentinel/internal/state"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// StartResult is the outcome of a start request.
type StartResult int

const (
	Started StartResult = iota
	AlreadyRunning
)

func (r StartResult) String() string {
	if r == Started {
		return "started"
	}
	return "already running"
}

var (
	errLeaseHeld = errors.New("run lease held by another instance")
	errLeaseLost = errors.New("run lease lost")
)

// Cycler runs one scan cycle for a bar boundary.
type Cycler interface {
	Scan(ctx context.Context, boundary, at time.Time) scanner.CycleReport
}

// ServerClock reads the authoritative exchange time.
type ServerClock func(ctx context.Context) (time.Time, error)

// SyncConfig holds the polling and lease settings of the synchronizer.
type SyncConfig struct {
	Timeframe     model.Timeframe
	CoarsePoll    time.Duration
	FinePoll      time.Duration
	NearWindow    time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration
	LeaseTTL      time.Duration
	AutoResume    bool
}

// Status is a point-in-time view of the synchronizer.
type Status struct {
	Running    bool                 `json:"running"`
	Degraded   bool                 `json:"clock_degraded"`
	Owner      string               `json:"owner"`
	Watermark  *model.Watermark     `json:"watermark"`
	LastReport *scanner.CycleReport `json:"last_report,omitempty"`
}

type startRequest struct {
	reply chan startReply
}

type startReply struct {
	result StartResult
	err    error
}

// Synchronizer waits for bar boundaries on the exchange clock and runs exactly one cycle per boundary.
// A single supervisor goroutine (Run) owns the loop; start requests reach it over a channel.
type Synchronizer struct {
	cfg     SyncConfig
	state   *state.Manager
	cycler  Cycler
	clock   ServerClock
	metrics *metrics.Metrics
	owner   string

	// injectable for tests
	local func() time.Time
	after func(d time.Duration) <-chan time.Time

	commands chan startRequest

	mu         sync.Mutex
	running    bool
	degraded   bool
	lastReport *scanner.CycleReport
}

// NewSynchronizer creates a synchronizer with a fresh instance id.
func NewSynchronizer(cfg SyncConfig, m *state.Manager, cycler Cycler, clock ServerClock, met *metrics.Metrics) *Synchronizer {
	return &Synchronizer{
		cfg:      cfg,
		state:    m,
		cycler:   cycler,
		clock:    clock,
		metrics:  met,
		owner:    uuid.NewString(),
		local:    func() time.Time { return time.Now().UTC() },
		after:    time.After,
		commands: make(chan startRequest),
	}
}

// Owner returns the instance id used for the run lease.
func (s *Synchronizer) Owner() string { return s.owner }

// Start asks the supervisor to enter the running state. It blocks until the supervisor answers.
func (s *Synchronizer) Start(ctx context.Context) (StartResult, error) {
	req := startRequest{reply: make(chan startReply, 1)}
	select {
	case s.commands <- req:
	case <-ctx.Done():
		return AlreadyRunning, ctx.Err()
	}
	select {
	case r := <-req.reply:
		return r.result, r.err
	case <-ctx.Done():
		return AlreadyRunning, ctx.Err()
	}
}

// Status returns the current state.
func (s *Synchronizer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Running:   s.running,
		Degraded:  s.degraded,
		Owner:     s.owner,
		Watermark: s.state.Snapshot(),
	}
	if s.lastReport != nil {
		r := *s.lastReport
		st.LastReport = &r
	}
	return st
}

// Run is the supervisor loop. It returns when ctx is cancelled.
func (s *Synchronizer) Run(ctx context.Context) error {
	if s.cfg.AutoResume && s.state.Snapshot().RunState == model.RunRunning {
		switch res, err := s.acquire(ctx); {
		case err != nil:
			log.Error().Err(err).Msg("auto resume")
		case res == Started:
			log.Info().Msg("resumed scan loop from persisted state")
		default:
			log.Warn().Msg("persisted state is running under a live lease, staying idle")
		}
	}

	for {
		if !s.isRunning() {
			select {
			case <-ctx.Done():
				return nil
			case req := <-s.commands:
				res, err := s.acquire(ctx)
				req.reply <- startReply{result: res, err: err}
			}
			continue
		}

		wait, err := s.step(ctx)
		switch {
		case errors.Is(err, errLeaseLost):
			log.Warn().Msg("run lease taken over by another instance, going idle")
			s.setRunning(false)
			continue
		case err != nil:
			if ctx.Err() != nil {
				s.release()
				return nil
			}
			log.Error().Err(err).Msg("synchronizer step")
			wait = s.cfg.CoarsePoll
		}

		if !s.wait(ctx, wait) {
			s.release()
			return nil
		}
	}
}

// wait sleeps for d while answering start requests. It returns false when ctx ends.
func (s *Synchronizer) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := s.after(d)
	for {
		select {
		case <-ctx.Done():
			return false
		case req := <-s.commands:
			req.reply <- startReply{result: AlreadyRunning}
		case <-timer:
			return true
		}
	}
}

// step runs one loop iteration and returns how long to sleep before the next one.
func (s *Synchronizer) step(ctx context.Context) (time.Duration, error) {
	now := s.now(ctx)
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	var boundary time.Time
	err := s.state.Update(ctx, func(w *model.Watermark) error {
		if w.RunOwner != s.owner && s.leaseLive(w, now) {
			return errLeaseLost
		}
		w.RunState = model.RunRunning
		w.RunOwner = s.owner
		w.Heartbeat = now
		boundary = w.NextBoundary
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.metrics.SetNextBoundary(boundary)

	if now.Before(boundary) {
		left := boundary.Sub(now)
		if left <= s.cfg.NearWindow {
			return min(s.cfg.FinePoll, left), nil
		}
		return min(s.cfg.CoarsePoll, left-s.cfg.NearWindow), nil
	}

	log.Info().Time("boundary", boundary).Time("server_time", now).Msg("boundary reached, scanning")
	report := s.cycler.Scan(ctx, boundary, now)
	s.mu.Lock()
	s.lastReport = &report
	s.mu.Unlock()

	// The cycle ran, so the boundary is persisted even when shutdown is under way.
	next := s.advance(boundary, now)
	if err := s.state.Update(context.WithoutCancel(ctx), func(w *model.Watermark) error {
		w.NextBoundary = next
		return nil
	}); err != nil {
		return 0, fmt.Errorf("advance boundary: %w", err)
	}
	s.metrics.SetNextBoundary(next)
	if skipped := int(next.Sub(boundary)/s.cfg.Timeframe.Duration()) - 1; skipped > 0 {
		log.Warn().Int("skipped", skipped).Time("next_boundary", next).Msg("missed boundaries while down")
	}
	return 0, nil
}

// advance returns boundary plus one unit, or the first boundary strictly after now when
// several were missed.
func (s *Synchronizer) advance(boundary, now time.Time) time.Time {
	next := boundary.Add(s.cfg.Timeframe.Duration())
	if !next.After(now) {
		next = s.cfg.Timeframe.NextBoundary(now)
	}
	return next
}

// acquire grants the run lease when the state is idle, owned by this instance, or stale.
func (s *Synchronizer) acquire(ctx context.Context) (StartResult, error) {
	if s.isRunning() {
		return AlreadyRunning, nil
	}
	// Another instance may have heartbeated or released since this copy was loaded.
	if err := s.state.Refresh(ctx); err != nil {
		return AlreadyRunning, fmt.Errorf("acquire run lease: %w", err)
	}
	now := s.now(ctx)
	err := s.state.Update(ctx, func(w *model.Watermark) error {
		if w.RunState == model.RunRunning && w.RunOwner != s.owner && s.leaseLive(w, now) {
			return errLeaseHeld
		}
		w.RunState = model.RunRunning
		w.RunOwner = s.owner
		w.Heartbeat = now
		return nil
	})
	if errors.Is(err, errLeaseHeld) {
		return AlreadyRunning, nil
	}
	if err != nil {
		return AlreadyRunning, fmt.Errorf("acquire run lease: %w", err)
	}
	s.setRunning(true)
	log.Info().Str("owner", s.owner).Msg("scan loop started")
	return Started, nil
}

// release drops the heartbeat on shutdown so a restart may resume without waiting for the TTL.
// The run state stays running.
func (s *Synchronizer) release() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.state.Update(ctx, func(w *model.Watermark) error {
		if w.RunOwner != s.owner {
			return errLeaseLost
		}
		w.Heartbeat = time.Time{}
		return nil
	})
	if err != nil && !errors.Is(err, errLeaseLost) {
		log.Warn().Err(err).Msg("release run lease")
	}
	s.setRunning(false)
}

func (s *Synchronizer) leaseLive(w *model.Watermark, now time.Time) bool {
	if w.RunOwner == "" || w.Heartbeat.IsZero() {
		return false
	}
	return now.Sub(w.Heartbeat) < s.cfg.LeaseTTL
}

// now reads the server clock with exponential backoff, falling back to local time.
func (s *Synchronizer) now(ctx context.Context) time.Time {
	backoff := s.cfg.RetryBackoff
	var lastErr error
	for i := 0; i <= s.cfg.RetryAttempts; i++ {
		t, err := s.clock(ctx)
		if err == nil {
			s.setDegraded(false)
			return t
		}
		lastErr = err
		if i == s.cfg.RetryAttempts || ctx.Err() != nil {
			break
		}
		log.Debug().Err(err).Int("attempt", i+1).Dur("backoff", backoff).Msg("server time failed, retrying")
		select {
		case <-ctx.Done():
		case <-s.after(backoff):
		}
		backoff *= 2
	}
	if ctx.Err() == nil {
		log.Warn().Err(lastErr).Msg("server clock unavailable, using local time")
	}
	s.setDegraded(true)
	return s.local()
}

func (s *Synchronizer) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Synchronizer) setRunning(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = v
}

func (s *Synchronizer) setDegraded(v bool) {
	s.mu.Lock()
	changed := s.degraded != v
	s.degraded = v
	s.mu.Unlock()
	if changed && !v {
		log.Info().Msg("server clock recovered")
	}
	s.metrics.SetClockDegraded(v)
}
