package ai

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/goodnight000/kittycourt-backend/internal/logger"
)

// RetryConfig - экспоненциальная задержка между попытками вызова модели.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	Jitter     bool
}

// DefaultRetryConfig подходит для запросов к LLM: они медленные и
// часто упираются в лимиты провайдера.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 2,
		BaseDelay:  2 * time.Second,
		MaxDelay:   20 * time.Second,
		Multiplier: 2.5,
		Jitter:     true,
	}
}

// withRetry выполняет op, повторяя только временные ошибки.
func withRetry(ctx context.Context, cfg RetryConfig, op func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = op()
		if err == nil || !isRetryable(err) || attempt >= cfg.MaxRetries {
			return err
		}

		delay := backoffDelay(cfg, attempt)
		logger.Log.WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"delay":   delay.String(),
		}).WithError(err).Warn("ai: повтор запроса")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(attempt))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		// ±10%
		delay += (rand.Float64() - 0.5) * 0.2 * delay
	}
	if delay < 0 {
		delay = float64(cfg.BaseDelay)
	}
	return time.Duration(delay)
}

// isRetryable: сетевые ошибки, 429 и 5xx повторяются, остальное нет.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == 429 || statusErr.StatusCode >= 500
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
