package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"wb_reviews/internal/adapters/observability"
)

type Cycler interface {
	RunCycle(ctx context.Context) CycleReport
}

type SchedulerState int32

const (
	StateIdle SchedulerState = iota
	StateRunningCycle
	StateSleeping
	StateStopped
)

func (s SchedulerState) String() string {
	switch s {
	case StateRunningCycle:
		return "running_cycle"
	case StateSleeping:
		return "sleeping"
	case StateStopped:
		return "stopped"
	default:
		return "idle"
	}
}

// Scheduler runs a cycle immediately and then once per interval. Cycles never
// overlap: the next sleep starts only after the previous cycle returns.
type Scheduler struct {
	cycler   Cycler
	interval time.Duration
	state    atomic.Int32
}

func NewScheduler(c Cycler, interval time.Duration) *Scheduler {
	return &Scheduler{cycler: c, interval: interval}
}

func (s *Scheduler) State() SchedulerState { return SchedulerState(s.state.Load()) }

// Run blocks until ctx is cancelled and returns ctx.Err(). A failed or panicking
// cycle is logged and the schedule continues.
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.setState(StateStopped)
	log.Info().Dur("interval", s.interval).Msg("scheduler started")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.RunOnce(ctx)

		s.setState(StateSleeping)
		t := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			t.Stop()
			log.Info().Msg("scheduler stopping")
			return ctx.Err()
		case <-t.C:
		}
	}
}

// RunOnce runs a single cycle with its own cycle_id and records the outcome.
func (s *Scheduler) RunOnce(ctx context.Context) (rep CycleReport) {
	s.setState(StateRunningCycle)
	l := log.With().Str("cycle_id", uuid.NewString()).Logger()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			rep.Err = fmt.Errorf("cycle panic: %v", r)
		}
		observability.ObserveCycle(rep.Err != nil, time.Since(start))
		if rep.Err != nil {
			l.Error().Err(rep.Err).Dur("took", time.Since(start)).Msg("cycle failed")
			return
		}
		l.Info().
			Int("products", rep.Products).Int("failed", rep.Failed).
			Int("inserted", rep.Inserted).Int("notified", rep.Notified).
			Dur("took", time.Since(start)).
			Msg("cycle finished")
	}()

	l.Info().Msg("cycle started")
	return s.cycler.RunCycle(l.WithContext(ctx))
}

func (s *Scheduler) setState(st SchedulerState) {
	if prev := SchedulerState(s.state.Swap(int32(st))); prev != st {
		log.Debug().Stringer("from", prev).Stringer("to", st).Msg("scheduler state")
	}
}
