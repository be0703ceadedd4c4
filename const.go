package execution

import "time"

const (
	// EngineVersion is the current version of the execution core
	EngineVersion = "v1.0.0"

	defaultRequestTimeout     = 10 * time.Second
	defaultPollInterval       = 500 * time.Millisecond
	defaultPollDelay          = 5 * time.Second
	defaultPollMaxAttempts    = 10
	defaultMetadataRetries    = 5
	defaultMetadataRetryDelay = time.Second
	defaultEventBufferSize    = 4096

	// maxBackoff caps every exponential retry delay.
	maxBackoff = 60 * time.Second

	// statisticsDedupWindow is how many recent event ids StatisticService
	// remembers to ignore redeliveries.
	statisticsDedupWindow = 4096
)
