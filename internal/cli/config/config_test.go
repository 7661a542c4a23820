package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"ojassist/internal/cli/config"
	"ojassist/pkg/testutil"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	testutil.MustNoError(t, os.WriteFile(path, []byte(content), 0o600), "write "+path)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv(config.EnvUsername, "")
	t.Setenv(config.EnvPassword, "")
	t.Setenv(config.EnvCachePassphrase, "")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	testutil.MustNoError(t, err, "load")
	testutil.AssertEqual(t, cfg.BaseURL, config.DefaultBaseURL)
	testutil.AssertEqual(t, cfg.Timeout, config.DefaultTimeout)
	testutil.AssertEqual(t, cfg.Cache.Backend, "bolt")
	testutil.AssertEqual(t, cfg.Cache.Path, config.DefaultCachePath)
	testutil.AssertEqual(t, cfg.Language, "java")
	testutil.AssertEqual(t, cfg.MaxWorkers, 5)
	testutil.AssertEqual(t, cfg.MaxRecordsToShow, 3)
	testutil.AssertEqual(t, cfg.Poll.MaxAttempts, 10)
	testutil.AssertEqual(t, cfg.Poll.Ceiling, 10*time.Second)
	testutil.AssertEqual(t, cfg.Log.OutputPath, config.DefaultLogPath)
	testutil.MustNoError(t, config.Validate(cfg), "defaults validate")
}

func TestLoadFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cli.yaml")
	writeFile(t, path, `
baseURL: https://oj.example.edu.cn/
timeout: 20s
username: from-file
language: cpp
maxWorkers: 8
autoSelectHomework: true
cache:
  backend: redis
  redisAddr: 127.0.0.1:6379
poll:
  maxAttempts: 4
  ceiling: 30s
log:
  level: debug
  outputPath: stderr
`)
	writeFile(t, filepath.Join(dir, ".env"), "OJ_PASSWORD=from-dotenv\nOJ_CACHE_PASSPHRASE=pp\n")
	t.Setenv(config.EnvUsername, "from-env")
	t.Setenv(config.EnvPassword, "")
	t.Setenv(config.EnvCachePassphrase, "")
	// Unset so the .env file can supply them.
	os.Unsetenv(config.EnvPassword)
	os.Unsetenv(config.EnvCachePassphrase)

	cfg, err := config.Load(path)
	testutil.MustNoError(t, err, "load")
	testutil.AssertEqual(t, cfg.BaseURL, "https://oj.example.edu.cn")
	testutil.AssertEqual(t, cfg.Timeout, 20*time.Second)
	testutil.AssertEqual(t, cfg.Username, "from-env")
	testutil.AssertEqual(t, cfg.Password, "from-dotenv")
	testutil.AssertEqual(t, cfg.Cache.Passphrase, "pp")
	testutil.AssertEqual(t, cfg.Language, "cpp")
	testutil.AssertEqual(t, cfg.MaxWorkers, 8)
	testutil.AssertFalse(t, cfg.AutoSelectCourse, "course auto-select not set")
	testutil.AssertTrue(t, cfg.AutoSelectHomework, "homework auto-select read from file")
	testutil.AssertEqual(t, cfg.Cache.Backend, "redis")
	testutil.AssertEqual(t, cfg.Poll.MaxAttempts, 4)
	testutil.AssertEqual(t, cfg.Poll.Ceiling, 30*time.Second)
	testutil.AssertEqual(t, cfg.Poll.Growth, 1.5)
	testutil.AssertEqual(t, cfg.Log.Level, "debug")
	testutil.MustNoError(t, config.Validate(cfg), "validate")
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.yaml")
	writeFile(t, path, "timeout: [not, a, duration\n")
	if _, err := config.Load(path); err == nil {
		t.Fatal("broken yaml should fail")
	}
}

func TestValidate(t *testing.T) {
	t.Setenv(config.EnvUsername, "")
	base, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	testutil.MustNoError(t, err, "load")

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "bad url", mutate: func(c *config.Config) { c.BaseURL = "not a url" }},
		{name: "too many workers", mutate: func(c *config.Config) { c.MaxWorkers = 11 }},
		{name: "too many records", mutate: func(c *config.Config) { c.MaxRecordsToShow = 6 }},
		{name: "unknown backend", mutate: func(c *config.Config) { c.Cache.Backend = "etcd" }},
		{name: "redis without address", mutate: func(c *config.Config) { c.Cache.Backend = "redis" }},
		{name: "shrinking growth", mutate: func(c *config.Config) { c.Poll.Growth = 0.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			if err := config.Validate(cfg); err == nil {
				t.Fatalf("%s: expected a validation error", tt.name)
			}
		})
	}
}
