package batch

import (
	"context"
	"log/slog"
	"time"

	"github.com/Aman-CERP/ragingest/internal/queue"
)

// Defaults for the poll loop.
const (
	DefaultBatchSize    = 10
	DefaultPollInterval = time.Second
)

// Receiver is the consuming side of a queue.
type Receiver interface {
	Receive(ctx context.Context, max int) ([]queue.Message, error)
}

// PollerConfig configures a Poller.
type PollerConfig struct {
	Queue     Receiver
	Processor *Processor
	BatchSize int
	Interval  time.Duration

	// OnResult, if set, is called after every non-empty batch.
	OnResult func(Result)
}

// Poller feeds queue batches to a Processor.
type Poller struct {
	queue     Receiver
	processor *Processor
	batchSize int
	interval  time.Duration
	onResult  func(Result)
}

// NewPoller creates a Poller.
func NewPoller(cfg PollerConfig) *Poller {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	return &Poller{
		queue:     cfg.Queue,
		processor: cfg.Processor,
		batchSize: cfg.BatchSize,
		interval:  cfg.Interval,
		onResult:  cfg.OnResult,
	}
}

// Run polls until ctx is cancelled. A batch already received is finished
// before Run returns.
func (p *Poller) Run(ctx context.Context) error {
	slog.Info("poller_started", slog.Int("batch_size", p.batchSize), slog.Duration("interval", p.interval))
	defer slog.Info("poller_stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := p.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Warn("queue_receive_failed", slog.String("error", err.Error()))
		}
		if n > 0 {
			continue
		}

		timer := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// Drain processes batches until the queue returns none, then returns every
// batch result. Retained messages stay invisible for the visibility timeout,
// so Drain does not spin on them.
func (p *Poller) Drain(ctx context.Context) ([]Result, error) {
	var results []Result
	for {
		msgs, err := p.queue.Receive(ctx, p.batchSize)
		if err != nil {
			return results, err
		}
		if len(msgs) == 0 {
			return results, nil
		}
		results = append(results, p.process(ctx, msgs))
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
	}
}

func (p *Poller) poll(ctx context.Context) (int, error) {
	msgs, err := p.queue.Receive(ctx, p.batchSize)
	if err != nil || len(msgs) == 0 {
		return 0, err
	}
	p.process(ctx, msgs)
	return len(msgs), nil
}

func (p *Poller) process(ctx context.Context, msgs []queue.Message) Result {
	res := p.processor.Process(ctx, msgs)
	if p.onResult != nil {
		p.onResult(res)
	}
	return res
}
