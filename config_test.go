package bundles_test

import (
	"errors"
	"testing"
	"time"

	bundles "github.com/jhosm/ProductBundles-sub000"
)

func TestDefaultConfigIsValid(t *testing.T) {
	if err := bundles.DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("BUNDLES_DIR", "/opt/bundles")
	t.Setenv("BUNDLES_PAGE_SIZE", "250")
	t.Setenv("BUNDLES_INVOCATION_TIMEOUT", "5s")

	cfg, err := bundles.ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv: %v", err)
	}
	if cfg.BundlesDir != "/opt/bundles" {
		t.Errorf("BundlesDir = %q", cfg.BundlesDir)
	}
	if cfg.PageSize != 250 {
		t.Errorf("PageSize = %d", cfg.PageSize)
	}
	if cfg.InvocationTimeout != 5*time.Second {
		t.Errorf("InvocationTimeout = %s", cfg.InvocationTimeout)
	}
	// Unset keys keep their defaults.
	if cfg.TickInterval != time.Second {
		t.Errorf("TickInterval = %s", cfg.TickInterval)
	}
}

func TestConfigFromEnvRejectsBadPageSize(t *testing.T) {
	t.Setenv("BUNDLES_PAGE_SIZE", "1001")

	if _, err := bundles.ConfigFromEnv(); !errors.Is(err, bundles.ErrInvalidPage) {
		t.Fatalf("expected ErrInvalidPage, got %v", err)
	}
}

func TestValidateRejectsNonPositiveDurations(t *testing.T) {
	cfg := bundles.DefaultConfig()
	cfg.InvocationTimeout = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero invocation timeout accepted")
	}

	cfg = bundles.DefaultConfig()
	cfg.TickInterval = -time.Second
	if err := cfg.Validate(); err == nil {
		t.Error("negative tick interval accepted")
	}

	cfg = bundles.DefaultConfig()
	cfg.ShutdownTimeout = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero shutdown timeout accepted")
	}
}
