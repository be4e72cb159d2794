package sweeper

import (
	"context"
	"time"

	"github.com/smallparish/offertory/internal/clock"
	"github.com/smallparish/offertory/internal/config"
	"github.com/smallparish/offertory/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Sweeper periodically re-drives accepted events whose handler never
// completed, covering the crash window between ledger accept and
// markProcessed. The grace period keeps it off events that are still being
// handled on the hot path.
type Sweeper struct {
	log      *zap.Logger
	svc      domain.Service
	clock    clock.Clock
	interval time.Duration
	grace    time.Duration
	batch    int

	cancel context.CancelFunc
	done   chan struct{}
}

type Params struct {
	fx.In

	Log   *zap.Logger
	Svc   domain.Service
	Clock clock.Clock
	Cfg   config.Config
}

func New(p Params) *Sweeper {
	return &Sweeper{
		log:      p.Log.Named("sweeper"),
		svc:      p.Svc,
		clock:    p.Clock,
		interval: p.Cfg.SweepInterval,
		grace:    p.Cfg.SweepGrace,
		batch:    p.Cfg.SweepBatch,
		done:     make(chan struct{}),
	}
}

func (s *Sweeper) Start(ctx context.Context) error {
	if s.interval <= 0 {
		s.log.Info("sweep disabled")
		close(s.done)
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go s.loop(runCtx)
	return nil
}

func (s *Sweeper) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sweeper) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	before := s.clock.Now().Add(-s.grace)
	redriven, err := s.svc.RedriveUnprocessed(ctx, before, s.batch)
	if err != nil {
		s.log.Error("sweep failed", zap.Error(err))
		return
	}
	if redriven > 0 {
		s.log.Info("sweep re-drove events", zap.Int("count", redriven))
	}
}

var Module = fx.Module("sweeper",
	fx.Provide(New),
	fx.Invoke(func(lc fx.Lifecycle, s *Sweeper) {
		lc.Append(fx.Hook{
			OnStart: s.Start,
			OnStop:  s.Stop,
		})
	}),
)
