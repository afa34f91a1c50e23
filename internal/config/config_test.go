package config

import (
	"flag"
	"os"
	"testing"
)

func clearEnvVars(t *testing.T) {
	t.Helper()
	vars := []string{
		"CUE_PORT", "REDIS_URL", "DEBUG", "SESSION_SECRET_KEY", "SESSION_HTTPS_ONLY",
		"OIDC_ISSUER", "OIDC_CLIENT_ID", "OIDC_CLIENT_SECRET", "OIDC_REDIRECT_URL",
		"KEY_REQUEST_TTL_SECONDS", "MAX_CUE_BODY_BYTES", "MAX_LISTEN_PATTERNS",
	}
	for _, v := range vars {
		old, had := os.LookupEnv(v)
		os.Unsetenv(v)
		t.Cleanup(func() {
			if had {
				os.Setenv(v, old)
			}
		})
	}
}

func resetFlags() {
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
}

func TestParse_Defaults(t *testing.T) {
	clearEnvVars(t)
	resetFlags()

	cfg := Parse()

	if cfg.Port != "8000" {
		t.Errorf("expected default port 8000, got %q", cfg.Port)
	}
	if cfg.RedisURL != "redis://localhost:6379" {
		t.Errorf("expected default redis URL, got %q", cfg.RedisURL)
	}
	if cfg.MaxCueBodyBytes != 512*1024 {
		t.Errorf("expected 512KiB default body limit, got %d", cfg.MaxCueBodyBytes)
	}
	if cfg.MaxListenPatterns != 128 {
		t.Errorf("expected 128 default pattern limit, got %d", cfg.MaxListenPatterns)
	}
	if cfg.Debug {
		t.Error("expected debug false by default")
	}
}

func TestParse_EnvOverrides(t *testing.T) {
	clearEnvVars(t)
	os.Setenv("CUE_PORT", "9001")
	os.Setenv("MAX_LISTEN_PATTERNS", "4")
	resetFlags()

	cfg := Parse()

	if cfg.Port != "9001" {
		t.Errorf("expected overridden port 9001, got %q", cfg.Port)
	}
	if cfg.MaxListenPatterns != 4 {
		t.Errorf("expected overridden pattern limit 4, got %d", cfg.MaxListenPatterns)
	}
}

func TestValidate_RequiresSessionSecretOutsideDebug(t *testing.T) {
	cfg := &Config{RedisURL: "redis://localhost:6379", Debug: false}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when session secret missing outside debug mode")
	}

	cfg.Debug = true
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected no error in debug mode, got %v", err)
	}
}
