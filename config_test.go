package vigil

import (
	"testing"
	"time"
)

func TestConfigZeroValueDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()

	if cfg.TokenLifespan != DefaultTokenLifespan {
		t.Fatalf("token lifespan: got %v", cfg.TokenLifespan)
	}
	if cfg.AttemptWindow != DefaultAttemptWindow {
		t.Fatalf("attempt window: got %v", cfg.AttemptWindow)
	}
	if cfg.IdentityMaxUnhindered != 0 || cfg.IdentityMaxFailed != 5 {
		t.Fatalf("identity budget: got %d/%d", cfg.IdentityMaxUnhindered, cfg.IdentityMaxFailed)
	}
	if cfg.OriginMaxUnhindered != 0 || cfg.OriginMaxFailed != 15 {
		t.Fatalf("origin budget: got %d/%d", cfg.OriginMaxUnhindered, cfg.OriginMaxFailed)
	}
	if cfg.DisableThrottle || cfg.SingleSessionPerUser {
		t.Fatalf("flags should default off: %+v", cfg)
	}
}

func TestConfigExplicitValuesKept(t *testing.T) {
	cfg := Config{
		TokenLifespan:     time.Hour,
		AttemptWindow:     10 * time.Minute,
		IdentityMaxFailed: 3,
		OriginMaxFailed:   7,
	}.withDefaults()

	if cfg.TokenLifespan != time.Hour || cfg.AttemptWindow != 10*time.Minute {
		t.Fatalf("durations overridden: %+v", cfg)
	}
	if cfg.IdentityMaxFailed != 3 || cfg.OriginMaxFailed != 7 {
		t.Fatalf("budgets overridden: %+v", cfg)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("VIGIL_TOKEN_LIFESPAN", "48h")
	t.Setenv("VIGIL_ATTEMPT_WINDOW", "30m")
	t.Setenv("VIGIL_IDENTITY_MAX_FAILED", "3")
	t.Setenv("VIGIL_ORIGIN_MAX_UNHINDERED", "2")
	t.Setenv("VIGIL_DISABLE_THROTTLE", "true")
	t.Setenv("VIGIL_SINGLE_SESSION", "1")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("config from env: %v", err)
	}
	if cfg.TokenLifespan != 48*time.Hour {
		t.Fatalf("token lifespan: got %v", cfg.TokenLifespan)
	}
	if cfg.AttemptWindow != 30*time.Minute {
		t.Fatalf("attempt window: got %v", cfg.AttemptWindow)
	}
	if cfg.IdentityMaxFailed != 3 || cfg.OriginMaxUnhindered != 2 {
		t.Fatalf("budgets: %+v", cfg)
	}
	if !cfg.DisableThrottle || !cfg.SingleSessionPerUser {
		t.Fatalf("flags: %+v", cfg)
	}
}

func TestConfigFromEnvRejectsMalformed(t *testing.T) {
	t.Setenv("VIGIL_TOKEN_LIFESPAN", "five days")

	if _, err := ConfigFromEnv(); err == nil {
		t.Fatal("expected error for malformed duration")
	}
}

func TestConfigFromEnvUnsetKeepsZero(t *testing.T) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("config from env: %v", err)
	}
	if cfg != (Config{}) {
		t.Fatalf("expected zero config, got %+v", cfg)
	}
}
