// Package ratelimit counts connection attempts per source address inside a
// fixed window that resets once it has expired.
package ratelimit

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultMaxAttempts = 5
	DefaultWindow      = 60 * time.Second
)

// Store records an attempt for key. It reports false, without counting the
// attempt, when key already has max attempts in the active window.
type Store interface {
	Hit(ctx context.Context, key string, max int, window time.Duration) (bool, error)
}

// Limiter is the shared admission rate limiter.
type Limiter struct {
	store  Store
	max    int
	window time.Duration
	logger *logrus.Logger
}

func NewLimiter(store Store, max int, window time.Duration, logger *logrus.Logger) *Limiter {
	if max <= 0 {
		max = DefaultMaxAttempts
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		store:  store,
		max:    max,
		window: window,
		logger: logger,
	}
}

// Allow reports whether another attempt from address is admissible. Store
// failures refuse the attempt.
func (l *Limiter) Allow(ctx context.Context, address string) bool {
	ok, err := l.store.Hit(ctx, address, l.max, l.window)
	if err != nil {
		l.logger.WithError(err).WithField("address", address).Error("rate limit store failed, refusing attempt")
		return false
	}
	return ok
}
