package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/beamline-data/trainproc/internal/timeutil"
	"github.com/beamline-data/trainproc/internal/train/aggregator"
	"github.com/beamline-data/trainproc/internal/train/assembler"
	"github.com/beamline-data/trainproc/internal/train/model"
)

const (
	// DefaultQueueSize bounds the output queue. Keeping it small means
	// a slow consumer backpressures the scheduler instead of piling up
	// stale trains.
	DefaultQueueSize = 2

	// DefaultTimeout bounds each blocking queue operation so the
	// scheduler stays responsive to shutdown.
	DefaultTimeout = 5 * time.Second
)

// SchedulerConfig wires a Scheduler.
type SchedulerConfig struct {
	Assembler  assembler.Assembler
	Aggregator aggregator.Aggregator
	Chain      Task
	Store      *Store
	Manager    *model.Manager
	QueueSize  int
	Timeout    time.Duration
	// Clock defaults to the real clock; tests substitute a mock.
	Clock timeutil.Clock
}

// Scheduler drives the per-train loop: dequeue a raw train, assemble its
// image set, aggregate slow data, run the task chain, commit histories
// and publish the processed train.
//
// Assembling failures drop the train. Aggregating and per-task failures
// are logged and the train is published anyway. Anything else stops the
// run and is returned from Run.
type Scheduler struct {
	in      <-chan *model.RawTrain
	out     chan *model.ProcessedTrain
	asm     assembler.Assembler
	agg     aggregator.Aggregator
	chain   Task
	store   *Store
	manager *model.Manager
	timeout time.Duration
	clock   timeutil.Clock

	processed atomic.Uint64
	skipped   atomic.Uint64
}

// NewScheduler validates cfg and creates a Scheduler reading from in.
func NewScheduler(in <-chan *model.RawTrain, cfg SchedulerConfig) (*Scheduler, error) {
	if in == nil {
		return nil, fmt.Errorf("scheduler needs an input channel")
	}
	if cfg.Assembler == nil {
		return nil, fmt.Errorf("scheduler needs an assembler")
	}
	if cfg.Chain == nil {
		return nil, fmt.Errorf("scheduler needs a task chain")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("scheduler needs a config store")
	}
	if cfg.Manager == nil {
		return nil, fmt.Errorf("scheduler needs a model manager")
	}
	queue := cfg.QueueSize
	if queue <= 0 {
		queue = DefaultQueueSize
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Scheduler{
		in:      in,
		out:     make(chan *model.ProcessedTrain, queue),
		asm:     cfg.Assembler,
		agg:     cfg.Aggregator,
		chain:   cfg.Chain,
		store:   cfg.Store,
		manager: cfg.Manager,
		timeout: timeout,
		clock:   clock,
	}, nil
}

// Output returns the processed-train queue.
func (s *Scheduler) Output() <-chan *model.ProcessedTrain { return s.out }

// Processed returns how many trains have been published.
func (s *Scheduler) Processed() uint64 { return s.processed.Load() }

// Skipped returns how many trains were dropped before publication.
func (s *Scheduler) Skipped() uint64 { return s.skipped.Load() }

// Run processes trains until ctx is cancelled or the input channel
// closes. It closes the output channel on return.
func (s *Scheduler) Run(ctx context.Context) error {
	defer close(s.out)
	opsf("scheduler started (queue=%d, timeout=%s)", cap(s.out), s.timeout)

	for {
		select {
		case <-ctx.Done():
			opsf("scheduler stopping: %v", ctx.Err())
			return nil
		case raw, ok := <-s.in:
			if !ok {
				opsf("scheduler stopping: input closed")
				return nil
			}
			if err := s.processTrain(ctx, raw); err != nil {
				opsf("scheduler aborting on train %d: %v", raw.TrainID, err)
				return err
			}
		case <-s.clock.After(s.timeout):
			tracef("no train for %s", s.timeout)
		}
	}
}

func (s *Scheduler) processTrain(ctx context.Context, raw *model.RawTrain) error {
	set, err := s.asm.Assemble(raw)
	if err != nil {
		var asmErr *assembler.AssemblingError
		if errors.As(err, &asmErr) {
			diagf("dropping train %d: %v", raw.TrainID, err)
			s.skipped.Add(1)
			return nil
		}
		return err
	}

	pt := model.NewProcessedTrain(raw.TrainID)
	pt.Image.Set = set
	pt.Image.Shape = set.Shape()

	if s.agg != nil {
		if err := s.agg.Aggregate(pt, raw); err != nil {
			var aggErr *aggregator.AggregatingError
			if !errors.As(err, &aggErr) {
				return err
			}
			diagf("train %d published without slow data: %v", raw.TrainID, err)
		}
	}

	cfg := s.store.Get()
	s.chain.Update(cfg)
	if err := s.chain.Process(pt, raw); err != nil {
		if !Recoverable(err) {
			return err
		}
		diagf("train %d: %v", raw.TrainID, err)
	}

	s.manager.Commit(pt)
	return s.publish(ctx, pt)
}

// publish blocks until the consumer takes the train or ctx is cancelled.
// The retry keeps the scheduler from losing a finished train to a
// momentarily slow consumer.
func (s *Scheduler) publish(ctx context.Context, pt *model.ProcessedTrain) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case s.out <- pt:
			s.processed.Add(1)
			tracef("published train %d", pt.TrainID)
			return nil
		case <-s.clock.After(s.timeout):
			opsf("output queue full, retrying train %d", pt.TrainID)
		}
	}
}
