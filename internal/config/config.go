package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"emoseum/pkg/domain"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML. Promotion thresholds
// and retry policy live here so tuning never touches state-machine code.
type FileConfig struct {
	LogLevel string `yaml:"logLevel"`

	DatabaseURL string `yaml:"databaseURL"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	AMQPURL        string `yaml:"amqpURL"`
	ReviewExchange string `yaml:"reviewExchange"`

	TextGenBaseURL string `yaml:"textGenBaseURL"`
	TextGenAPIKey  string `yaml:"textGenAPIKey"`
	TextGenModel   string `yaml:"textGenModel"`

	ImageGenBaseURL string `yaml:"imageGenBaseURL"`
	ImageGenSteps   int    `yaml:"imageGenSteps"`
	ImageGenWidth   int    `yaml:"imageGenWidth"`
	ImageGenHeight  int    `yaml:"imageGenHeight"`

	TrainerBaseURL string `yaml:"trainerBaseURL"`
	TrainerAPIKey  string `yaml:"trainerAPIKey"`

	TrainingStream       string `yaml:"trainingStream"`
	TrainingGroup        string `yaml:"trainingGroup"`
	TrainingConcurrency  int    `yaml:"trainingConcurrency"`
	TrainingPollInterval string `yaml:"trainingPollInterval"`

	SafetyRulesPath string `yaml:"safetyRulesPath"`

	GenerationMaxAttempts int    `yaml:"generationMaxAttempts"`
	GenerationConcurrency int    `yaml:"generationConcurrency"`
	GenerationBackoff     string `yaml:"generationBackoff"`
	CapabilityTimeout     string `yaml:"capabilityTimeout"`

	Tier2MinCompletedJourneys int     `yaml:"tier2MinCompletedJourneys"`
	Tier2EngagementFloor      float64 `yaml:"tier2EngagementFloor"`
	Tier3MinPositiveReactions int     `yaml:"tier3MinPositiveReactions"`
	Tier3MinCompletedJourneys int     `yaml:"tier3MinCompletedJourneys"`

	PresignExpiry string `yaml:"presignExpiry"`
}

// Load reads config from path (defaults to config.yaml), applies environment
// overrides, and validates. Validation failures wrap ErrConfiguration and are
// fatal at startup.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	applyEnv(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.TrainingStream == "" {
		cfg.TrainingStream = "emoseum:training"
	}
	if cfg.TrainingConcurrency <= 0 {
		cfg.TrainingConcurrency = 1
	}
	if cfg.TrainingPollInterval == "" {
		cfg.TrainingPollInterval = "15s"
	}
	if cfg.GenerationMaxAttempts <= 0 {
		cfg.GenerationMaxAttempts = 3
	}
	if cfg.GenerationBackoff == "" {
		cfg.GenerationBackoff = "500ms"
	}
	if cfg.GenerationConcurrency <= 0 {
		cfg.GenerationConcurrency = 4
	}
	if cfg.CapabilityTimeout == "" {
		cfg.CapabilityTimeout = "60s"
	}
	if cfg.Tier2MinCompletedJourneys <= 0 {
		cfg.Tier2MinCompletedJourneys = 3
	}
	if cfg.Tier2EngagementFloor <= 0 {
		cfg.Tier2EngagementFloor = 5.0
	}
	if cfg.Tier3MinPositiveReactions <= 0 {
		cfg.Tier3MinPositiveReactions = 50
	}
	if cfg.Tier3MinCompletedJourneys <= 0 {
		cfg.Tier3MinCompletedJourneys = 30
	}
	if cfg.PresignExpiry == "" {
		cfg.PresignExpiry = "15m"
	}
	if cfg.SafetyRulesPath == "" {
		cfg.SafetyRulesPath = "safety_rules.yaml"
	}
}

func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("EMOSEUM_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.TrimSpace(v)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.AMQPURL = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.MinioUseSSL = b
		}
	}
	if v := os.Getenv("EMOSEUM_TEXTGEN_BASE_URL"); v != "" {
		cfg.TextGenBaseURL = v
	}
	if v := os.Getenv("EMOSEUM_TEXTGEN_API_KEY"); v != "" {
		cfg.TextGenAPIKey = v
	}
	if v := os.Getenv("EMOSEUM_TEXTGEN_MODEL"); v != "" {
		cfg.TextGenModel = v
	}
	if v := os.Getenv("EMOSEUM_IMAGEGEN_BASE_URL"); v != "" {
		cfg.ImageGenBaseURL = v
	}
	if v := os.Getenv("EMOSEUM_TRAINER_BASE_URL"); v != "" {
		cfg.TrainerBaseURL = v
	}
	if v := os.Getenv("EMOSEUM_TRAINER_API_KEY"); v != "" {
		cfg.TrainerAPIKey = v
	}
	if v := os.Getenv("EMOSEUM_SAFETY_RULES"); v != "" {
		cfg.SafetyRulesPath = v
	}
	if v := os.Getenv("EMOSEUM_GENERATION_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.GenerationMaxAttempts = n
		}
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("%w: databaseURL is required (set in config.yaml or DATABASE_URL)", domain.ErrConfiguration)
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return fmt.Errorf("%w: redisAddr is required for training dispatch", domain.ErrConfiguration)
	}
	if strings.TrimSpace(cfg.MinioEndpoint) == "" || strings.TrimSpace(cfg.MinioBucket) == "" {
		return fmt.Errorf("%w: minioEndpoint and minioBucket are required for gallery images", domain.ErrConfiguration)
	}
	if strings.TrimSpace(cfg.TextGenBaseURL) == "" {
		return fmt.Errorf("%w: textGenBaseURL is required", domain.ErrConfiguration)
	}
	if strings.TrimSpace(cfg.ImageGenBaseURL) == "" {
		return fmt.Errorf("%w: imageGenBaseURL is required", domain.ErrConfiguration)
	}
	if strings.TrimSpace(cfg.TrainerBaseURL) == "" {
		return fmt.Errorf("%w: trainerBaseURL is required", domain.ErrConfiguration)
	}
	if cfg.GenerationMaxAttempts < 1 {
		return fmt.Errorf("%w: generationMaxAttempts must be >= 1", domain.ErrConfiguration)
	}
	if _, err := time.ParseDuration(cfg.GenerationBackoff); err != nil {
		return fmt.Errorf("%w: generationBackoff: %v", domain.ErrConfiguration, err)
	}
	if _, err := time.ParseDuration(cfg.CapabilityTimeout); err != nil {
		return fmt.Errorf("%w: capabilityTimeout: %v", domain.ErrConfiguration, err)
	}
	if _, err := time.ParseDuration(cfg.PresignExpiry); err != nil {
		return fmt.Errorf("%w: presignExpiry: %v", domain.ErrConfiguration, err)
	}
	if _, err := time.ParseDuration(cfg.TrainingPollInterval); err != nil {
		return fmt.Errorf("%w: trainingPollInterval: %v", domain.ErrConfiguration, err)
	}
	if cfg.Tier2EngagementFloor < 0 {
		return fmt.Errorf("%w: tier2EngagementFloor must be >= 0", domain.ErrConfiguration)
	}
	return nil
}

// MustDuration parses a duration already validated at load time.
func MustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(fmt.Sprintf("duration %q not validated at load: %v", s, err))
	}
	return d
}
