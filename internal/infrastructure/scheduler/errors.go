package scheduler

import "errors"

// Submission and configuration errors. Job failures are returned by the
// executor as they come from the billing engine.
var (
	ErrSchedulerNotRunning = errors.New("scheduler: not running")
	ErrJobQueueFull        = errors.New("scheduler: job queue full")
	ErrInvalidJobKind      = errors.New("scheduler: unknown billing job kind")
	ErrInvalidConfig       = errors.New("scheduler: invalid configuration")
)
