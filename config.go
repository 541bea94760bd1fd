package vigil

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Defaults applied by withDefaults for zero-valued fields.
const (
	DefaultTokenLifespan = 5 * 24 * time.Hour
	DefaultAttemptWindow = time.Hour

	DefaultIdentityMaxUnhindered = 0
	DefaultIdentityMaxFailed     = 5

	DefaultOriginMaxUnhindered = 0
	DefaultOriginMaxFailed     = 15
)

// Config tunes the login manager. The zero value yields the documented
// defaults: five-day tokens, a one-hour attempt window, cooldown budgets
// of 0/5 per identity and 0/15 per origin, throttling on, and concurrent
// logins allowed.
type Config struct {
	// TokenLifespan is how long an issued token lives; renewal pushes
	// expiry forward by the same amount.
	TokenLifespan time.Duration

	// AttemptWindow is how long a failed attempt stays relevant to
	// the cooldowns.
	AttemptWindow time.Duration

	// IdentityMaxUnhindered and IdentityMaxFailed bound the
	// identity-keyed cooldown: delay-free failures, then outright
	// blocking.
	IdentityMaxUnhindered int
	IdentityMaxFailed     int

	// OriginMaxUnhindered and OriginMaxFailed bound the origin-keyed
	// cooldown. Both cooldowns apply independently so rotating either
	// dimension alone cannot bypass throttling.
	OriginMaxUnhindered int
	OriginMaxFailed     int

	// DisableThrottle turns off the progressive backoff delay.
	// Failure counting and blocking still apply.
	DisableThrottle bool

	// SingleSessionPerUser evicts a user's sessions at other origins
	// on each successful login.
	SingleSessionPerUser bool
}

func (c Config) withDefaults() Config {
	if c.TokenLifespan <= 0 {
		c.TokenLifespan = DefaultTokenLifespan
	}
	if c.AttemptWindow <= 0 {
		c.AttemptWindow = DefaultAttemptWindow
	}
	if c.IdentityMaxFailed <= 0 {
		c.IdentityMaxFailed = DefaultIdentityMaxFailed
	}
	if c.OriginMaxFailed <= 0 {
		c.OriginMaxFailed = DefaultOriginMaxFailed
	}
	return c
}

// ConfigFromEnv builds a Config from VIGIL_* environment variables,
// loading optional .env files first. Unset variables keep their
// defaults; malformed values are an error.
//
//	VIGIL_TOKEN_LIFESPAN           duration, e.g. "120h"
//	VIGIL_ATTEMPT_WINDOW           duration, e.g. "1h"
//	VIGIL_IDENTITY_MAX_UNHINDERED  int
//	VIGIL_IDENTITY_MAX_FAILED      int
//	VIGIL_ORIGIN_MAX_UNHINDERED    int
//	VIGIL_ORIGIN_MAX_FAILED        int
//	VIGIL_DISABLE_THROTTLE         bool
//	VIGIL_SINGLE_SESSION           bool
func ConfigFromEnv(files ...string) (Config, error) {
	// A missing .env file is not an error; the process environment
	// always wins over file contents.
	_ = godotenv.Load(files...)

	var cfg Config
	var err error

	if cfg.TokenLifespan, err = envDuration("VIGIL_TOKEN_LIFESPAN"); err != nil {
		return Config{}, err
	}
	if cfg.AttemptWindow, err = envDuration("VIGIL_ATTEMPT_WINDOW"); err != nil {
		return Config{}, err
	}
	if cfg.IdentityMaxUnhindered, err = envInt("VIGIL_IDENTITY_MAX_UNHINDERED"); err != nil {
		return Config{}, err
	}
	if cfg.IdentityMaxFailed, err = envInt("VIGIL_IDENTITY_MAX_FAILED"); err != nil {
		return Config{}, err
	}
	if cfg.OriginMaxUnhindered, err = envInt("VIGIL_ORIGIN_MAX_UNHINDERED"); err != nil {
		return Config{}, err
	}
	if cfg.OriginMaxFailed, err = envInt("VIGIL_ORIGIN_MAX_FAILED"); err != nil {
		return Config{}, err
	}
	if cfg.DisableThrottle, err = envBool("VIGIL_DISABLE_THROTTLE"); err != nil {
		return Config{}, err
	}
	if cfg.SingleSessionPerUser, err = envBool("VIGIL_SINGLE_SESSION"); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func envDuration(key string) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envInt(key string) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envBool(key string) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
