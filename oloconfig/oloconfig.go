// Package oloconfig reads the runtime's environment-variable overrides
// exactly once and exposes them as an immutable Config, mirroring how the
// scheduler's original environment-variable toggles are read at
// StartWorkers time.
package oloconfig

import (
	"os"
	"strconv"
	"sync"
)

// Config is the runtime's process-wide configuration, resolved once from
// the environment.
type Config struct {
	// NoThreading forces the scheduler to run every task inline on the
	// launching goroutine instead of starting workers at all, for
	// single-threaded test/debug environments.
	NoThreading bool
	// ForceMultithread overrides NoThreading back on, for environments that
	// set it globally but want one process to actually use workers.
	ForceMultithread bool
	// DynamicPrioritization is read from
	// OLO_TASK_GRAPH_DYNAMIC_PRIORITIZATION. The scheduler does not consult
	// it and never changes a worker's OS priority while it runs a task.
	DynamicPrioritization bool
	// DynamicThreadCreation makes EnterOversubscription wake one parked
	// worker of each class. Whatever its value, the scheduler never starts
	// workers beyond the set StartWorkers created.
	DynamicThreadCreation bool
	// OversubscriptionRatio bounds how many additional workers beyond the
	// base count an oversubscription scope may allow, as a multiple of the
	// base worker count.
	OversubscriptionRatio float64
	// ParallelForYieldMS is the parallel-for background yield timeout, in
	// milliseconds. No package in this module reads it.
	ParallelForYieldMS int
}

var (
	once   sync.Once
	config Config
)

// FromEnv returns the process-wide Config, reading the environment the
// first time it's called and caching the result for every subsequent
// call.
func FromEnv() Config {
	once.Do(func() {
		config = Config{
			NoThreading:           envBool("OLO_NO_THREADING", false),
			ForceMultithread:      envBool("OLO_FORCE_MULTITHREAD", false),
			DynamicPrioritization: envBool("OLO_TASK_GRAPH_DYNAMIC_PRIORITIZATION", true),
			DynamicThreadCreation: envBool("OLO_TASK_GRAPH_DYNAMIC_THREAD_CREATION", true),
			OversubscriptionRatio: envFloat("OLO_TASK_GRAPH_OVERSUBSCRIPTION_RATIO", 2.0),
			ParallelForYieldMS:    envInt("OLO_PARALLEL_FOR_YIELD_MS", 1),
		}
		if config.ForceMultithread {
			config.NoThreading = false
		}
	})
	return config
}

func envBool(name string, def bool) bool {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envFloat(name string, def float64) float64 {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envInt(name string, def int) int {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
