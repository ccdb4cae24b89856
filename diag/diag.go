// Package diag provides rate-limited diagnostic logging for hot paths that
// can otherwise flood a log under sustained contention — parking-lot
// bucket-table growth, and the scheduler repeatedly hitting its oversubscription
// ceiling. It wraps github.com/joeycumines/go-catrate's sliding-window
// Limiter, instance-scoped so different call sites can have independent
// budgets.
package diag

import (
	"time"

	"github.com/joeycumines/go-catrate"

	"github.com/olocore/concore/colog"
)

// Limiter rate-limits a single diagnostic message category.
type Limiter struct {
	rate *catrate.Limiter
	log  *colog.Logger
	cat  string
}

// NewLimiter builds a Limiter that allows at most maxEvents occurrences of
// category per window, logging via log whenever Allow admits one.
func NewLimiter(log *colog.Logger, category string, window time.Duration, maxEvents int) *Limiter {
	return &Limiter{
		rate: catrate.NewLimiter(map[time.Duration]int{window: maxEvents}),
		log:  log,
		cat:  category,
	}
}

// Allow reports whether this occurrence should be logged, and — if so —
// logs msg immediately at warning level.
func (l *Limiter) Allow(msg string, fields ...string) bool {
	_, ok := l.rate.Allow(l.cat)
	if ok && l.log != nil {
		l.log.Warn(msg, fields...)
	}
	return ok
}
