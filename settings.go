package execution

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings configures one Exchange.
type Settings struct {
	AccountID AccountID `yaml:"account_id"`

	// RequestTimeout bounds every venue call. The call is not tied to the
	// caller's token, so a response that arrives after the caller gave up is
	// still reconciled.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Fallback poll of orders that stay unresolved.
	PollEnabled     bool          `yaml:"poll_enabled"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	PollDelay       time.Duration `yaml:"poll_delay"`
	PollMaxAttempts int           `yaml:"poll_max_attempts"`

	MetadataRetries    int           `yaml:"metadata_retries"`
	MetadataRetryDelay time.Duration `yaml:"metadata_retry_delay"`

	// EventBufferSize is the capacity of the event ring, a power of 2.
	EventBufferSize int64 `yaml:"event_buffer_size"`
}

// DefaultSettings returns settings with every default applied.
func DefaultSettings(accountID AccountID) Settings {
	s := Settings{AccountID: accountID}
	s.applyDefaults()
	return s
}

// ParseSettings decodes YAML settings and fills zero fields with defaults.
func ParseSettings(data []byte) (Settings, error) {
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parse settings: %w", err)
	}
	s.applyDefaults()
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// LoadSettings reads settings from a YAML file.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read settings %s: %w", path, err)
	}
	return ParseSettings(data)
}

func (s *Settings) applyDefaults() {
	if s.RequestTimeout <= 0 {
		s.RequestTimeout = defaultRequestTimeout
	}
	if s.PollInterval <= 0 {
		s.PollInterval = defaultPollInterval
	}
	if s.PollDelay <= 0 {
		s.PollDelay = defaultPollDelay
	}
	if s.PollMaxAttempts <= 0 {
		s.PollMaxAttempts = defaultPollMaxAttempts
	}
	if s.MetadataRetries <= 0 {
		s.MetadataRetries = defaultMetadataRetries
	}
	if s.MetadataRetryDelay <= 0 {
		s.MetadataRetryDelay = defaultMetadataRetryDelay
	}
	if s.EventBufferSize <= 0 {
		s.EventBufferSize = defaultEventBufferSize
	}
}

// Validate checks settings that have no sensible default.
func (s *Settings) Validate() error {
	if s.AccountID == "" {
		return fmt.Errorf("%w: account_id required", ErrInvalidParam)
	}
	if s.EventBufferSize&(s.EventBufferSize-1) != 0 {
		return fmt.Errorf("%w: event_buffer_size must be a power of 2", ErrInvalidParam)
	}
	return nil
}
