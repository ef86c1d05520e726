package image

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically fails records that have been processing for too long.
type Sweeper struct {
	service  *Service
	staleFor time.Duration
	cron     *cron.Cron
}

// NewSweeper runs FailStale on a cron schedule (standard syntax or @every).
func NewSweeper(service *Service, schedule string, staleFor time.Duration) (*Sweeper, error) {
	s := &Sweeper{
		service:  service,
		staleFor: staleFor,
		cron:     cron.New(),
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("schedule sweeper %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	n, err := s.service.FailStale(ctx, s.staleFor)
	if err != nil {
		slog.Error("stale sweep failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("stale sweep finished", "failed", n)
	}
}
