package listings

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nutrilink/platform/internal/app/metrics"
	"github.com/nutrilink/platform/internal/app/storage"
	"github.com/nutrilink/platform/internal/app/system"
	"github.com/nutrilink/platform/pkg/logger"
)

var _ system.Service = (*Sweeper)(nil)

// Sweeper periodically marks listings past their expiry timestamp as expired
// so they stop accepting reservations.
type Sweeper struct {
	store    storage.ListingStore
	log      *logger.Logger
	schedule string

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewSweeper creates a lifecycle-managed expiry sweeper. schedule uses
// standard five-field cron syntax.
func NewSweeper(store storage.ListingStore, schedule string, log *logger.Logger) *Sweeper {
	if log == nil {
		log = logger.NewDefault("listing-sweeper")
	}
	if schedule == "" {
		schedule = "*/5 * * * *"
	}
	return &Sweeper{store: store, log: log, schedule: schedule}
}

func (s *Sweeper) Name() string { return "listing-sweeper" }

func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() { s.sweep(context.Background()) }); err != nil {
		return err
	}
	c.Start()
	s.cron = c
	s.running = true

	s.log.WithField("schedule", s.schedule).Info("listing expiry sweeper started")
	return nil
}

func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}

	stopCtx := s.cron.Stop()
	s.cron = nil
	s.running = false

	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	s.log.Info("listing expiry sweeper stopped")
	return nil
}

func (s *Sweeper) sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	expired, err := s.store.ExpireListings(ctx, time.Now().UTC())
	if err != nil {
		s.log.WithError(err).Warn("listing expiry sweep failed")
		return
	}
	if expired > 0 {
		metrics.RecordListingsExpired(expired)
		s.log.WithField("count", expired).Info("listings expired")
	}
}
