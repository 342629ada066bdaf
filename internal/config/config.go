package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        string   `yaml:"port"`
	LogMode     string   `yaml:"log_mode"`
	JWTSecret   string   `yaml:"jwt_secret"`
	CORSOrigins []string `yaml:"cors_origins"`

	Database   DatabaseConfig   `yaml:"database"`
	LLM        LLMConfig        `yaml:"llm"`
	Generation GenerationConfig `yaml:"generation"`
	Cache      CacheConfig      `yaml:"cache"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN renders the lib/pq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

type LLMConfig struct {
	// Provider is one of "anthropic", "openai", "gemini", "mock".
	Provider string `yaml:"provider"`

	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	AnthropicModel  string `yaml:"anthropic_model"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	OpenAIModel     string `yaml:"openai_model"`
	OpenAIBaseURL   string `yaml:"openai_base_url"`
	GeminiAPIKey    string `yaml:"gemini_api_key"`
	GeminiModel     string `yaml:"gemini_model"`

	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
}

type GenerationConfig struct {
	OptionCount       int     `yaml:"option_count"`
	TopicPolicy       string  `yaml:"topic_policy"`
	WrongAnswerWeight float64 `yaml:"wrong_answer_weight"`
	AbilityKFactor    float64 `yaml:"ability_k_factor"`
	PrefetchNext      bool    `yaml:"prefetch_next"`
}

type CacheConfig struct {
	Backend       string        `yaml:"backend"`
	TTL           time.Duration `yaml:"ttl"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
}

func Default() Config {
	return Config{
		Port:        "8080",
		LogMode:     "dev",
		CORSOrigins: []string{"*"},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     "5432",
			User:     "quizy_user",
			Password: "quizy_password",
			Name:     "quizy",
			SSLMode:  "disable",
		},
		LLM: LLMConfig{
			Provider:       "gemini",
			AnthropicModel: "claude-haiku-4-5-20251001",
			OpenAIModel:    "gpt-4o-mini",
			GeminiModel:    "gemini-2.0-flash",
			Timeout:        30 * time.Second,
			MaxAttempts:    2,
			MaxTokens:      1024,
			Temperature:    0.7,
		},
		Generation: GenerationConfig{
			OptionCount:       4,
			TopicPolicy:       "weighted",
			WrongAnswerWeight: 2,
			AbilityKFactor:    8,
			PrefetchNext:      true,
		},
		Cache: CacheConfig{
			Backend: "memory",
			TTL:     5 * time.Minute,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// CONFIG_FILE (if any), then environment overrides.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Port, "PORT")
	setString(&cfg.LogMode, "LOG_MODE")
	setString(&cfg.JWTSecret, "JWT_SECRET")
	if v, ok := os.LookupEnv("CORS_ORIGINS"); ok {
		cfg.CORSOrigins = splitList(v)
	}

	setString(&cfg.Database.Host, "DB_HOST")
	setString(&cfg.Database.Port, "DB_PORT")
	setString(&cfg.Database.User, "DB_USER")
	setString(&cfg.Database.Password, "DB_PASSWORD")
	setString(&cfg.Database.Name, "DB_NAME")
	setString(&cfg.Database.SSLMode, "DB_SSLMODE")

	setString(&cfg.LLM.Provider, "LLM_PROVIDER")
	setString(&cfg.LLM.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	setString(&cfg.LLM.AnthropicModel, "ANTHROPIC_MODEL")
	setString(&cfg.LLM.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&cfg.LLM.OpenAIModel, "OPENAI_MODEL")
	setString(&cfg.LLM.OpenAIBaseURL, "OPENAI_BASE_URL")
	setString(&cfg.LLM.GeminiAPIKey, "GEMINI_API_KEY")
	setString(&cfg.LLM.GeminiModel, "GEMINI_MODEL")
	if os.Getenv("MOCK_GENERATOR") == "true" {
		cfg.LLM.Provider = "mock"
	}

	var err error
	if err = setDuration(&cfg.LLM.Timeout, "LLM_TIMEOUT"); err != nil {
		return err
	}
	if err = setInt(&cfg.LLM.MaxAttempts, "LLM_MAX_ATTEMPTS"); err != nil {
		return err
	}
	if err = setInt(&cfg.Generation.OptionCount, "QUESTION_OPTIONS"); err != nil {
		return err
	}
	setString(&cfg.Generation.TopicPolicy, "TOPIC_POLICY")
	if err = setFloat(&cfg.Generation.WrongAnswerWeight, "WRONG_ANSWER_WEIGHT"); err != nil {
		return err
	}
	if err = setFloat(&cfg.Generation.AbilityKFactor, "ABILITY_K_FACTOR"); err != nil {
		return err
	}
	if v, ok := os.LookupEnv("PREFETCH_NEXT_QUESTION"); ok {
		cfg.Generation.PrefetchNext = v != "false"
	}

	setString(&cfg.Cache.Backend, "CACHE_BACKEND")
	if err = setDuration(&cfg.Cache.TTL, "CACHE_TTL"); err != nil {
		return err
	}
	setString(&cfg.Cache.RedisAddr, "REDIS_ADDR")
	setString(&cfg.Cache.RedisPassword, "REDIS_PASSWORD")
	return setInt(&cfg.Cache.RedisDB, "REDIS_DB")
}

func (c Config) Validate() error {
	var errs []string

	if c.LLM.MaxAttempts < 1 || c.LLM.MaxAttempts > 2 {
		errs = append(errs, fmt.Sprintf("llm max attempts must be 1 or 2, got %d", c.LLM.MaxAttempts))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, "llm timeout must be positive")
	}
	switch c.LLM.Provider {
	case "anthropic", "openai", "gemini", "mock":
	default:
		errs = append(errs, fmt.Sprintf("unknown llm provider %q", c.LLM.Provider))
	}
	if c.Generation.OptionCount < 2 {
		errs = append(errs, fmt.Sprintf("question option count must be >= 2, got %d", c.Generation.OptionCount))
	}
	switch c.Generation.TopicPolicy {
	case "uniform", "weighted":
	default:
		errs = append(errs, fmt.Sprintf("unknown topic policy %q", c.Generation.TopicPolicy))
	}
	if c.Generation.WrongAnswerWeight < 0 {
		errs = append(errs, "wrong answer weight must not be negative")
	}
	switch c.Cache.Backend {
	case "memory", "none":
	case "redis":
		if c.Cache.RedisAddr == "" {
			errs = append(errs, "redis cache backend requires REDIS_ADDR")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown cache backend %q", c.Cache.Backend))
	}
	if c.JWTSecret == "" && isProd(c.LogMode) {
		errs = append(errs, "JWT_SECRET is required in production")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func isProd(mode string) bool {
	m := strings.ToLower(mode)
	return m == "prod" || m == "production"
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
