package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"emoseum/pkg/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
databaseURL: "postgres://localhost/emoseum"
redisAddr: "localhost:6379"
minioEndpoint: "localhost:9000"
minioBucket: "gallery"
textGenBaseURL: "http://localhost:8000/v1"
imageGenBaseURL: "http://localhost:7860"
trainerBaseURL: "http://localhost:8100"
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GenerationMaxAttempts != 3 {
		t.Errorf("generationMaxAttempts = %d, want 3", cfg.GenerationMaxAttempts)
	}
	if cfg.GenerationBackoff != "500ms" || cfg.CapabilityTimeout != "60s" {
		t.Errorf("durations = %q %q", cfg.GenerationBackoff, cfg.CapabilityTimeout)
	}
	if cfg.TrainingStream != "emoseum:training" || cfg.TrainingConcurrency != 1 {
		t.Errorf("training defaults = %q %d", cfg.TrainingStream, cfg.TrainingConcurrency)
	}
	if cfg.TrainingPollInterval != "15s" {
		t.Errorf("trainingPollInterval = %q, want 15s", cfg.TrainingPollInterval)
	}
	if cfg.Tier2MinCompletedJourneys != 3 || cfg.Tier2EngagementFloor != 5.0 {
		t.Errorf("tier2 defaults = %d %g", cfg.Tier2MinCompletedJourneys, cfg.Tier2EngagementFloor)
	}
	if cfg.Tier3MinPositiveReactions != 50 || cfg.Tier3MinCompletedJourneys != 30 {
		t.Errorf("tier3 defaults = %d %d", cfg.Tier3MinPositiveReactions, cfg.Tier3MinCompletedJourneys)
	}
	if cfg.PresignExpiry != "15m" || cfg.SafetyRulesPath != "safety_rules.yaml" {
		t.Errorf("misc defaults = %q %q", cfg.PresignExpiry, cfg.SafetyRulesPath)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing databaseURL", `
redisAddr: "localhost:6379"
minioEndpoint: "localhost:9000"
minioBucket: "gallery"
textGenBaseURL: "http://localhost:8000/v1"
imageGenBaseURL: "http://localhost:7860"
trainerBaseURL: "http://localhost:8100"
`},
		{"missing redisAddr", `
databaseURL: "postgres://localhost/emoseum"
minioEndpoint: "localhost:9000"
minioBucket: "gallery"
textGenBaseURL: "http://localhost:8000/v1"
imageGenBaseURL: "http://localhost:7860"
trainerBaseURL: "http://localhost:8100"
`},
		{"bad backoff", minimalConfig + `generationBackoff: "soon"` + "\n"},
		{"bad presign expiry", minimalConfig + `presignExpiry: "whenever"` + "\n"},
		{"bad training poll interval", minimalConfig + `trainingPollInterval: "often"` + "\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.body)); !errors.Is(err, domain.ErrConfiguration) {
				t.Errorf("err = %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://override/emoseum")
	t.Setenv("REDIS_ADDR", "redis.internal:6379")
	t.Setenv("EMOSEUM_LOG_LEVEL", "debug")
	t.Setenv("EMOSEUM_GENERATION_MAX_ATTEMPTS", "5")

	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://override/emoseum" {
		t.Errorf("databaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.RedisAddr != "redis.internal:6379" {
		t.Errorf("redisAddr = %q", cfg.RedisAddr)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("logLevel = %q", cfg.LogLevel)
	}
	if cfg.GenerationMaxAttempts != 5 {
		t.Errorf("generationMaxAttempts = %d", cfg.GenerationMaxAttempts)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestMustDuration(t *testing.T) {
	if d := MustDuration("250ms"); d.Milliseconds() != 250 {
		t.Errorf("d = %v", d)
	}
	defer func() {
		if recover() == nil {
			t.Error("expected panic on unvalidated duration")
		}
	}()
	MustDuration("never")
}
