package config // package config loads application configuration from environment variables

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds the top-level runtime configuration.  Each field
// corresponds to an environment variable.  Component-specific knobs
// live in their own Load functions below so a deployment can tune one
// concern without touching the rest.
type Config struct {
	Env         string // application environment (e.g. "dev", "prod")
	LockBaseURL string // base URL of the seat lock service
	SessionTTL  time.Duration
	AMQPURL     string // broker URL for the cross-process sign-out relay (optional)
}

// Load reads the top-level configuration.  The lock service URL is
// required; everything else has a default.
func Load() Config {
	return Config{
		Env:         envStr("APP_ENV", "dev"),
		LockBaseURL: must("LOCK_API_BASE_URL"),
		SessionTTL:  envDur("SESSION_TTL", 2*time.Hour),
		AMQPURL:     os.Getenv("RABBITMQ_URL"),
	}
}

// HoldConfig tunes the availability reconciler and the checkout
// countdown.  Defaults match the coordination policy: an 8 second
// per-trip throttle, a 2 second floor after this client's own
// acquire/release, a 6 second poll refreshing at most 10 trips, and a
// 10 minute conservative countdown when the hold-time query fails.
type HoldConfig struct {
	TTLNormal      time.Duration
	TTLForce       time.Duration
	DefaultBackoff time.Duration
	BatchSize      int
	PollInterval   time.Duration
	PollCap        int
	MaxSeats       int
	FallbackWindow time.Duration
	BeaconTimeout  time.Duration
}

// LoadHoldConfig reads the coordination knobs.
func LoadHoldConfig() HoldConfig {
	return HoldConfig{
		TTLNormal:      envDur("AVAIL_TTL_NORMAL", 8*time.Second),
		TTLForce:       envDur("AVAIL_TTL_FORCE", 2*time.Second),
		DefaultBackoff: envDur("AVAIL_BACKOFF_DEFAULT", 30*time.Second),
		BatchSize:      envInt("AVAIL_BATCH_SIZE", 6),
		PollInterval:   envDur("AVAIL_POLL_INTERVAL", 6*time.Second),
		PollCap:        envInt("AVAIL_POLL_CAP", 10),
		MaxSeats:       envInt("MAX_SEATS_PER_TRIP", 4),
		FallbackWindow: envDur("HOLD_FALLBACK_WINDOW", 10*time.Minute),
		BeaconTimeout:  envDur("BEACON_TIMEOUT", 3*time.Second),
	}
}

// must retrieves the value of a required environment variable.  If
// the variable is unset or empty, the application logs a fatal error
// and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
