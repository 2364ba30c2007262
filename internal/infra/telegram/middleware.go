// internal/infra/telegram/middleware.go
package telegram

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"gopkg.in/telebot.v3"
)

// userRateLimiter keeps one token bucket per sender so a single spamming
// user cannot starve everyone else.
type userRateLimiter struct {
	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newUserRateLimiter(maxCalls int, window time.Duration) *userRateLimiter {
	return &userRateLimiter{
		limiters: make(map[int64]*rate.Limiter),
		limit:    rate.Limit(float64(maxCalls) / window.Seconds()),
		burst:    maxCalls,
	}
}

func (l *userRateLimiter) allow(userID int64) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[userID]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[userID] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

// RateLimitMiddleware throttles inbound commands and callbacks per user.
// Excess events are answered with a hint instead of reaching the handlers.
func RateLimitMiddleware(maxCalls int, window time.Duration, logger *logrus.Entry) telebot.MiddlewareFunc {
	limiter := newUserRateLimiter(maxCalls, window)
	exceededText := fmt.Sprintf("Слишком много запросов! Подождите немного: не более %d команд за %s.", maxCalls, window)

	return func(next telebot.HandlerFunc) telebot.HandlerFunc {
		return func(c telebot.Context) error {
			sender := c.Sender()
			if sender == nil {
				return next(c)
			}
			if limiter.allow(sender.ID) {
				return next(c)
			}

			logger.WithField("sender_id", sender.ID).Warn("Inbound rate limit exceeded")
			if c.Callback() != nil {
				return c.Respond(&telebot.CallbackResponse{Text: "Слишком много запросов. Подождите немного."})
			}
			return c.Send(exceededText)
		}
	}
}
