package workflow

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/lms/internal/domain"
)

// RetryConfig — политика повторов транзиентных ошибок broadcast.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает политику по умолчанию: до 3 попыток,
// экспоненциальная задержка 2s → 4s → 8s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  2 * time.Second,
		MaxDelay:      8 * time.Second,
		BackoffFactor: 2.0,
	}
}

// executeWithRetry выполняет fn до успеха либо исчерпания попыток.
// Ошибки класса ErrTransportUnavailable не повторяются.
func (o *Orchestrator) executeWithRetry(logger *log.Entry, fn func() error) error {
	cfg := o.cfg.Retry
	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				logger.WithField("attempt", attempt).Info("broadcast succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if !domain.IsRetryable(err) {
			logger.WithError(err).Warn("broadcast failed with non-retryable error")
			return err
		}

		if attempt < cfg.MaxAttempts {
			logger.WithFields(log.Fields{
				"attempt": attempt,
				"delay":   delay,
			}).WithError(err).Warn("broadcast failed, retrying")
			if o.metrics != nil {
				o.metrics.RecordBroadcastRetry()
			}

			o.sleep(delay)

			delay = time.Duration(float64(delay) * cfg.BackoffFactor)
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}
	}

	logger.WithFields(log.Fields{
		"max_attempts": cfg.MaxAttempts,
	}).WithError(lastErr).Error("broadcast failed after all retry attempts")
	return fmt.Errorf("%w: %v", domain.ErrRetriesExhausted, lastErr)
}
