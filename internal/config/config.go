package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	NATSURL string // GREENLOCK_NATS_URL (required)
	Section int    // GREENLOCK_SECTION (required, positive; --section overrides)

	Profile string // GREENLOCK_PROFILE (built-in name or path to a TOML file; default "intersection")

	// Arbitration settings
	RequestTimeout time.Duration // GREENLOCK_REQUEST_TIMEOUT (default 5s)
	RequestRetry   bool          // GREENLOCK_REQUEST_RETRY (default true)
	PollInterval   time.Duration // GREENLOCK_POLL_INTERVAL (default 1s)
}

func Load() (*Config, error) {
	c := &Config{
		NATSURL:      os.Getenv("GREENLOCK_NATS_URL"),
		Profile:      envOrDefault("GREENLOCK_PROFILE", "intersection"),
		RequestRetry: true,
	}
	if c.NATSURL == "" {
		return nil, fmt.Errorf("GREENLOCK_NATS_URL is required")
	}

	if s := os.Getenv("GREENLOCK_SECTION"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("GREENLOCK_SECTION: must be a positive integer, got %q", s)
		}
		c.Section = n
	}

	timeoutStr := envOrDefault("GREENLOCK_REQUEST_TIMEOUT", "5s")
	d, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("GREENLOCK_REQUEST_TIMEOUT: %w", err)
	}
	c.RequestTimeout = d

	pollStr := envOrDefault("GREENLOCK_POLL_INTERVAL", "1s")
	d, err = time.ParseDuration(pollStr)
	if err != nil {
		return nil, fmt.Errorf("GREENLOCK_POLL_INTERVAL: %w", err)
	}
	c.PollInterval = d

	if s := os.Getenv("GREENLOCK_REQUEST_RETRY"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("GREENLOCK_REQUEST_RETRY: %w", err)
		}
		c.RequestRetry = v
	}

	return c, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
