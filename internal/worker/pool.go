package worker

import (
	"context"
	"log/slog"
	"sync"

	"cutout/internal/domain/image"
)

// Pool runs Processor jobs on in-process goroutines. It implements
// image.Dispatcher for deployments without Redis.
type Pool struct {
	processor *Processor
	queue     chan int64
	workers   int
	wg        sync.WaitGroup
}

// NewPool builds a Pool whose queue holds workers*4 jobs.
func NewPool(processor *Processor, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		processor: processor,
		queue:     make(chan int64, workers*4),
		workers:   workers,
	}
}

// Start launches the workers. They exit when ctx is done.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.run(ctx)
		}()
	}
}

// Wait blocks until every worker has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Dispatch queues id without blocking. A full queue is reported as
// image.ErrQueueFull.
func (p *Pool) Dispatch(_ context.Context, id int64) error {
	select {
	case p.queue <- id:
		return nil
	default:
		slog.Warn("processing queue full", "image_id", id)
		return image.ErrQueueFull
	}
}

func (p *Pool) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-p.queue:
			if err := p.processor.Process(ctx, id); err != nil {
				slog.Error("process image", "image_id", id, "error", err)
			}
		}
	}
}
