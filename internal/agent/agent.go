// Package agent schedules the periodic hive tasks: heartbeat, research
// publishing, social chat and mempool validation. Each task runs on its own
// interval; a failed iteration is logged and the task waits for its next turn.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zhengjr9/hive-agent/internal/hive"
	"github.com/zhengjr9/hive-agent/internal/llm"
	"github.com/zhengjr9/hive-agent/internal/persona"
)

// Completer is the completion dependency. *llm.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// Hive is the subset of the hive client the tasks use. *hive.Client satisfies it.
type Hive interface {
	QuickJoin(ctx context.Context, interests string) (hive.Ack, error)
	Heartbeat(ctx context.Context, investigationID string) error
	Rank(ctx context.Context) (hive.Rank, error)
	Chat(ctx context.Context, message string) (hive.Ack, error)
	PublishPaper(ctx context.Context, p hive.Paper) (hive.Ack, error)
	LatestPapers(ctx context.Context, limit int) ([]hive.Paper, error)
	Mempool(ctx context.Context, limit int) ([]hive.Paper, error)
	ValidatePaper(ctx context.Context, paperID string, approve bool, occamScore float64) (hive.Ack, error)
}

// Intervals sets how often each task runs. A zero interval disables the task.
type Intervals struct {
	Heartbeat time.Duration
	Research  time.Duration
	Social    time.Duration
	Validate  time.Duration
}

func DefaultIntervals() Intervals {
	return Intervals{
		Heartbeat: time.Minute,
		Research:  30 * time.Minute,
		Social:    time.Hour,
		Validate:  45 * time.Minute,
	}
}

type Config struct {
	AgentID   string
	AgentName string
	Persona   persona.Persona
	Intervals Intervals

	// ChatHeartbeat also posts a HEARTBEAT line to the hive chat after each
	// quick-join.
	ChatHeartbeat bool
}

// Agent owns the task loops.
type Agent struct {
	cfg     Config
	llm     Completer
	hive    Hive
	logger  *slog.Logger
	now     func() time.Time
	running atomic.Bool

	// reviewed is only touched by the validation task.
	reviewed map[string]bool
}

func New(cfg Config, completer Completer, h Hive) *Agent {
	return &Agent{
		cfg:      cfg,
		llm:      completer,
		hive:     h,
		logger:   slog.Default().With("component", "agent", "agent_id", cfg.AgentID),
		now:      time.Now,
		reviewed: make(map[string]bool),
	}
}

// Running reports whether Run is active.
func (a *Agent) Running() bool { return a.running.Load() }

type task struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context) error
}

func (a *Agent) tasks() []task {
	iv := a.cfg.Intervals
	all := []task{
		{"heartbeat", iv.Heartbeat, a.heartbeat},
		{"research", iv.Research, a.research},
		{"social", iv.Social, a.social},
		{"validate", iv.Validate, a.validate},
	}
	enabled := all[:0]
	for _, t := range all {
		if t.interval > 0 {
			enabled = append(enabled, t)
		}
	}
	return enabled
}

// Run announces the agent and runs every enabled task until ctx is done.
// Cancelling ctx stops new iterations; an iteration already in progress is
// allowed to finish and Run returns after it.
func (a *Agent) Run(ctx context.Context) error {
	a.running.Store(true)
	defer a.running.Store(false)

	a.logger.Info("agent starting", "name", a.cfg.AgentName)
	a.Announce(context.WithoutCancel(ctx))

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range a.tasks() {
		g.Go(func() error {
			a.loop(gctx, t)
			return nil
		})
	}
	err := g.Wait()
	a.logger.Info("agent stopped")
	return err
}

// Announce posts the online message and logs the current rank. Failures are
// logged only.
func (a *Agent) Announce(ctx context.Context) {
	if _, err := a.hive.Chat(ctx, a.cfg.Persona.Announce(a.cfg.AgentName)); err != nil {
		a.logger.Warn("announce failed", "error", err)
	}
	rank, err := a.hive.Rank(ctx)
	if err != nil {
		a.logger.Warn("rank lookup failed", "error", err)
		return
	}
	a.logger.Info("current rank", "rank", rank.Rank, "contributions", rank.Contributions)
}

func (a *Agent) loop(ctx context.Context, t task) {
	a.logger.Info("task started", "task", t.name, "interval", t.interval.String())
	for {
		if ctx.Err() != nil {
			return
		}
		a.runOnce(ctx, t)

		timer := time.NewTimer(t.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.Info("task stopping", "task", t.name)
			return
		case <-timer.C:
		}
	}
}

// runOnce executes one iteration behind a log-and-continue boundary.
// The iteration context is detached from ctx so shutdown does not abort an
// in-flight completion.
func (a *Agent) runOnce(ctx context.Context, t task) {
	start := a.now()
	err := func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				a.logger.Error("task panic recovered", "task", t.name, "panic", rec, "stack", string(debug.Stack()))
				err = fmt.Errorf("panic: %v", rec)
			}
		}()
		return t.run(context.WithoutCancel(ctx))
	}()
	if err != nil {
		TaskRunsTotal.WithLabelValues(t.name, "error").Inc()
		a.logger.Error("task iteration failed", "task", t.name, "error", err, "duration", time.Since(start).String())
		return
	}
	TaskRunsTotal.WithLabelValues(t.name, "ok").Inc()
	a.logger.Debug("task iteration done", "task", t.name, "duration", time.Since(start).String())
}

// RunFor runs the agent until ctx is done or duration elapses (zero means no
// limit), then waits at most grace for in-flight iterations to finish.
func (a *Agent) RunFor(ctx context.Context, duration, grace time.Duration) error {
	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if duration > 0 {
		runCtx, cancel = context.WithTimeout(ctx, duration)
	}
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- a.Run(runCtx) }()

	select {
	case err := <-done:
		return err
	case <-runCtx.Done():
	}
	if ctx.Err() == nil {
		a.logger.Info("run duration reached, shutting down", "duration", duration.String())
	} else {
		a.logger.Info("shutdown requested, draining", "grace", grace.String())
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		a.logger.Warn("grace period elapsed with tasks still in flight")
		return nil
	}
}
