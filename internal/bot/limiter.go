package bot

import (
	"sync"

	"golang.org/x/time/rate"
)

// userLimiter — ограничение частоты запросов на пользователя,
// замена старого ThrottlingMiddleware.
type userLimiter struct {
	perSec float64

	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
}

func newUserLimiter(perSec float64) *userLimiter {
	return &userLimiter{
		perSec:   perSec,
		limiters: make(map[int64]*rate.Limiter),
	}
}

func (l *userLimiter) allow(userID int64) bool {
	l.mu.Lock()
	lim, ok := l.limiters[userID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(l.perSec), 1)
		l.limiters[userID] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
