// Package sweeper содержит фоновый воркер, удаляющий из ledger заказы,
// по которым давно не было событий.
package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/lms/internal/domain"
)

const (
	defaultSweepInterval = 10 * time.Minute
	defaultRetention     = 24 * time.Hour
)

var (
	sweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lms_order_sweep_runs_total",
		Help: "Total number of stale order sweep runs grouped by result.",
	}, []string{"result"})
	sweepDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lms_order_sweep_deleted_total",
		Help: "Total number of stale orders removed from the ledger.",
	})
	sweepLastDeleted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lms_order_sweep_last_deleted",
		Help: "Number of orders removed during the last sweep run.",
	})
)

// orderLister перечисляет журнал создания заказов, известных ledger.
// Реализуется in-memory хранилищем.
type orderLister interface {
	KnownOrders() []domain.NewOrderEntry
}

// Options задает параметры воркера очистки устаревших заказов.
type Options struct {
	Logger    *log.Entry
	Interval  time.Duration
	Retention time.Duration
}

// Option настраивает Sweeper.
type Option func(*Options)

// WithLogger задает logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithInterval задает интервал между циклами очистки.
func WithInterval(interval time.Duration) Option {
	return func(opts *Options) {
		opts.Interval = interval
	}
}

// WithRetention задает срок хранения заказа после последнего события.
func WithRetention(retention time.Duration) Option {
	return func(opts *Options) {
		opts.Retention = retention
	}
}

// Sweeper периодически удаляет заказы без свежих событий.
type Sweeper struct {
	store     domain.OrderEventStore
	logger    *log.Entry
	interval  time.Duration
	retention time.Duration
}

// New создает воркер очистки устаревших заказов.
func New(store domain.OrderEventStore, options ...Option) *Sweeper {
	opts := Options{
		Interval:  defaultSweepInterval,
		Retention: defaultRetention,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "order-sweeper")
	}

	if opts.Interval <= 0 {
		opts.Interval = defaultSweepInterval
	}
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}

	return &Sweeper{
		store:     store,
		logger:    logger,
		interval:  opts.Interval,
		retention: opts.Retention,
	}
}

// Run запускает периодическую очистку до отмены ctx.
func (s *Sweeper) Run(ctx context.Context) {
	if s.store == nil {
		s.logger.Warn("order sweeper is disabled: store is nil")
		return
	}
	if _, ok := s.store.(orderLister); !ok {
		s.logger.Warn("order sweeper is disabled: store does not expose known orders")
		return
	}

	s.sweep(ctx, time.Now().UTC())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx, time.Now().UTC())
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context, now time.Time) {
	deleted, err := s.DeleteStale(ctx, now)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		sweepRunsTotal.WithLabelValues("error").Inc()
		s.logger.WithError(err).Warn("stale order sweep failed")
		return
	}

	sweepRunsTotal.WithLabelValues("ok").Inc()
	sweepLastDeleted.Set(float64(deleted))
	if deleted > 0 {
		s.logger.WithField("deleted", deleted).Info("stale order sweep completed")
	}
}

// DeleteStale удаляет заказы, последнее событие которых старше retention
// относительно now.
func (s *Sweeper) DeleteStale(ctx context.Context, now time.Time) (int, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	cutoff := now.Add(-s.retention)

	lister, ok := s.store.(orderLister)
	if !ok {
		return 0, nil
	}

	deleted := 0
	for _, entry := range lister.KnownOrders() {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}

		events, err := s.store.Get(entry.OrderID)
		if err != nil {
			return deleted, err
		}
		// Журнал создания хранит и уже удалённые заказы: пустой список
		// событий пропускаем, иначе каждый sweep считал бы его заново.
		if len(events) == 0 {
			continue
		}

		if !stale(events, cutoff) {
			continue
		}

		if err := s.store.Delete(entry.OrderID); err != nil {
			return deleted, err
		}
		deleted++
		sweepDeletedTotal.Inc()
	}

	return deleted, nil
}

func stale(events []domain.OrderEvent, cutoff time.Time) bool {
	last := time.Time{}
	for _, event := range events {
		if event.Timestamp.After(last) {
			last = event.Timestamp
		}
	}
	return last.Before(cutoff)
}
