package scheduler

import "errors"

// Sentinels returned by the schedulers. Handlers map them to HTTP statuses.
var (
	ErrSchedulerNotRunning = errors.New("scheduler: not accepting jobs")
	ErrJobQueueFull        = errors.New("scheduler: sync queue at capacity")
	ErrJobNotFound         = errors.New("scheduler: no such sync job")
	// ErrInvalidConfig is wrapped with the offending setting
	ErrInvalidConfig = errors.New("scheduler: invalid configuration")
)
