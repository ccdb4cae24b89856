package scheduler

import (
	"github.com/olocore/concore/colog"
	"github.com/olocore/concore/diag"
	"github.com/olocore/concore/oloconfig"
	"github.com/olocore/concore/platform"
)

type settings struct {
	logger         *colog.Logger
	oversubLimiter *diag.Limiter
	cfg            oloconfig.Config
	threadFactory  platform.Factory
	fgPriority     platform.Priority
	bgPriority     platform.Priority
	fgAffinity     platform.CPUSet
	bgAffinity     platform.CPUSet
}

func defaultSettings() settings {
	return settings{
		logger:        colog.NoOp(),
		cfg:           oloconfig.FromEnv(),
		threadFactory: platform.GoFactory{},
		fgPriority:    platform.PriorityNormal,
		bgPriority:    platform.PriorityLow,
	}
}

// Option configures a Scheduler at construction time.
type Option func(*settings)

// WithLogger sets the logger used for the scheduler's own diagnostics
// (worker start/stop, oversubscription ceiling hits, rate-limited via
// diag.Limiter). It also becomes the parking lot's growth-event logger
// process-wide, since the parking lot is a single shared table rather than
// a per-scheduler resource.
func WithLogger(l *colog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithConfig overrides the environment-derived configuration.
func WithConfig(cfg oloconfig.Config) Option {
	return func(s *settings) { s.cfg = cfg }
}

// WithThreadFactory overrides how worker threads are created; the default
// uses goroutines via platform.GoFactory.
func WithThreadFactory(f platform.Factory) Option {
	return func(s *settings) { s.threadFactory = f }
}

// WithForegroundPriority sets the OS thread priority requested for
// foreground workers (a no-op under the default goroutine-backed factory).
func WithForegroundPriority(p platform.Priority) Option {
	return func(s *settings) { s.fgPriority = p }
}

// WithBackgroundPriority sets the OS thread priority requested for
// background workers.
func WithBackgroundPriority(p platform.Priority) Option {
	return func(s *settings) { s.bgPriority = p }
}

// WithForegroundAffinity sets the CPU affinity requested for foreground
// workers.
func WithForegroundAffinity(set platform.CPUSet) Option {
	return func(s *settings) { s.fgAffinity = set }
}

// WithBackgroundAffinity sets the CPU affinity requested for background
// workers.
func WithBackgroundAffinity(set platform.CPUSet) Option {
	return func(s *settings) { s.bgAffinity = set }
}
