package constants

import "time"

// Rotation and retry policy for the relay loop.
const (
	// MaxRotations bounds how many distinct credentials a single request
	// may consume before giving up.
	MaxRotations = 10

	// DefaultMaxRetryCount is the per-credential retry budget when the
	// runtime setting is absent or unparsable.
	DefaultMaxRetryCount = 3

	// DefaultMaxFailureCount is how many recorded failures invalidate a
	// credential when the runtime setting is absent.
	DefaultMaxFailureCount = 5

	// ModelDiscoveryMaxAttempts bounds credential consumption for the
	// model listing endpoint, which runs its own small rotation loop.
	ModelDiscoveryMaxAttempts = 5
)

// Pool sizing.
const (
	// PoolQueueMax caps the in-memory rotation queue. A refill loads at
	// most this many credentials ordered by least recent use.
	PoolQueueMax = 30
)

// Batch validation pacing: probes run in groups with a pause in between
// so a large pool does not hammer the upstream all at once.
const (
	ValidationBatchSize  = 10
	ValidationBatchPause = 500 * time.Millisecond
)

// Settings propagation.
const (
	// RestartDebounce coalesces bursts of scheduler-affecting writes
	// into a single restart.
	RestartDebounce = 500 * time.Millisecond
)

// Admin session policy.
const (
	SessionLifetime = 2 * time.Hour

	// Login pacing: a fixed delay on success and a penalty on failure
	// keep credential stuffing slow regardless of outcome.
	LoginSuccessDelay   = 500 * time.Millisecond
	LoginFailurePenalty = 1 * time.Second
)
