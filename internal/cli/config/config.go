package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ojassist/internal/cli/submit"
	"ojassist/pkg/utils/logger"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL          = "https://oj.cse.sustech.edu.cn"
	DefaultTimeout          = 15 * time.Second
	DefaultCachePath        = ".ojassist/session.db"
	DefaultLanguage         = "java"
	DefaultWorkDir          = "."
	DefaultExportDir        = "problems"
	DefaultMaxWorkers       = 5
	DefaultMaxRecordsToShow = 3
	DefaultLogPath          = ".ojassist/cli.log"

	EnvUsername        = "OJ_USERNAME"
	EnvPassword        = "OJ_PASSWORD"
	EnvCachePassphrase = "OJ_CACHE_PASSPHRASE"
)

// CacheConfig selects where the session is persisted.
type CacheConfig struct {
	Backend    string `yaml:"backend" validate:"oneof=bolt redis"`
	Path       string `yaml:"path" validate:"required_if=Backend bolt"`
	RedisAddr  string `yaml:"redisAddr" validate:"required_if=Backend redis"`
	RedisKey   string `yaml:"redisKey"`
	Passphrase string `yaml:"passphrase"`
}

// Config holds CLI configuration.
type Config struct {
	BaseURL            string        `yaml:"baseURL" validate:"required,url"`
	CASAuthorizeURL    string        `yaml:"casAuthorizeURL" validate:"omitempty,url"`
	InsecureSkipVerify bool          `yaml:"insecureSkipVerify"`
	Timeout            time.Duration `yaml:"timeout" validate:"gt=0"`
	Username           string        `yaml:"username"`
	Password           string        `yaml:"password"`
	SessionCookie      string        `yaml:"sessionCookie"`
	CSRFCookie         string        `yaml:"csrfCookie"`
	Cache              CacheConfig   `yaml:"cache"`
	WorkDir            string        `yaml:"workDir"`
	Language           string        `yaml:"language" validate:"required"`
	ExportDir          string        `yaml:"exportDir"`
	MaxWorkers         int           `yaml:"maxWorkers" validate:"gte=1,lte=10"`
	MaxRecordsToShow   int           `yaml:"maxRecordsToShow" validate:"gte=1,lte=5"`
	AutoSelectCourse   bool          `yaml:"autoSelectCourse"`
	AutoSelectHomework bool          `yaml:"autoSelectHomework"`
	Poll               submit.Policy `yaml:"poll"`
	Log                logger.Config `yaml:"log"`
}

var validate = validator.New()

// Load reads the YAML file, a .env file next to it and the process
// environment, in that order of increasing precedence. A missing file
// yields defaults.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file failed: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return cfg, fmt.Errorf("read config file failed: %w", err)
	}

	loadDotEnv(filepath.Join(filepath.Dir(path), ".env"), ".env")
	applyEnv(&cfg)
	applyDefaults(&cfg)
	return cfg, nil
}

// Validate checks the final configuration after flag overrides.
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func loadDotEnv(paths ...string) {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			// Existing variables win over the file.
			_ = godotenv.Load(p)
		}
	}
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvUsername)); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv(EnvPassword); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv(EnvCachePassphrase); v != "" {
		cfg.Cache.Passphrase = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "bolt"
	}
	if cfg.Cache.Path == "" {
		cfg.Cache.Path = DefaultCachePath
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = DefaultWorkDir
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.ExportDir == "" {
		cfg.ExportDir = DefaultExportDir
	}
	if cfg.MaxWorkers == 0 {
		cfg.MaxWorkers = DefaultMaxWorkers
	}
	if cfg.MaxRecordsToShow == 0 {
		cfg.MaxRecordsToShow = DefaultMaxRecordsToShow
	}
	def := submit.DefaultPolicy()
	if cfg.Poll.MaxAttempts == 0 {
		cfg.Poll.MaxAttempts = def.MaxAttempts
	}
	if cfg.Poll.TimeLimitFactor == 0 {
		cfg.Poll.TimeLimitFactor = def.TimeLimitFactor
	}
	if cfg.Poll.Buffer == 0 {
		cfg.Poll.Buffer = def.Buffer
	}
	if cfg.Poll.Growth == 0 {
		cfg.Poll.Growth = def.Growth
	}
	if cfg.Poll.Ceiling == 0 {
		cfg.Poll.Ceiling = def.Ceiling
	}
	if cfg.Poll.DefaultTimeLimit == 0 {
		cfg.Poll.DefaultTimeLimit = def.DefaultTimeLimit
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Log.OutputPath == "" {
		cfg.Log.OutputPath = DefaultLogPath
	}
}
