package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/okian/rankd/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars(t)

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.Cache, convey.ShouldEqual, config.CacheMemory)
				convey.So(cfg.DedupeSize, convey.ShouldEqual, 50_000)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			t.Setenv("RANKD_ADDR", ":8080")
			t.Setenv("RANKD_QUEUE_SIZE", "500")
			t.Setenv("RANKD_WORKER_COUNT", "16")
			t.Setenv("RANKD_RESTORE_RATE_PER_SEC", "12.5")
			t.Setenv("RANKD_JOB_TIMEOUT", "30s")
			t.Setenv("RANKD_AWARD_LOVED_PP", "true")
			t.Setenv("RANKD_ADMIN_KEY", "s3cret")
			t.Setenv("RANKD_COUNTRY_SCAN_CONCURRENCY", "3")
			t.Setenv("RANKD_SCAN_PAGE_SIZE", "250")
			t.Setenv("RANKD_REDIS_POOL_SIZE", "32")
			t.Setenv("RANKD_REDIS_READ_TIMEOUT", "750ms")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 500)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 16)
				convey.So(cfg.RestoreRatePerSec, convey.ShouldEqual, 12.5)
				convey.So(cfg.JobTimeout, convey.ShouldEqual, 30*time.Second)
				convey.So(cfg.AwardLovedPP, convey.ShouldBeTrue)
				convey.So(cfg.AdminKey, convey.ShouldEqual, "s3cret")
				convey.So(cfg.CountryScanConcurrency, convey.ShouldEqual, 3)
				convey.So(cfg.ScanPageSize, convey.ShouldEqual, 250)
				convey.So(cfg.RedisPoolSize, convey.ShouldEqual, 32)
				convey.So(cfg.RedisReadTimeout, convey.ShouldEqual, 750*time.Millisecond)
				convey.So(cfg.RedisDialTimeout, convey.ShouldEqual, 5*time.Second)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			path := createTempConfigFile(t, `
# production-like layout
addr: ":9090"
backend: postgres
postgres_dsn: postgres://rankd@db/rankd
store: redis
queue: redis
redis_addr: redis:6379
cache_ttl: 1h
worker_count: 24
api_keys:
  bot-key:
    - jobs.enqueue.*
    - "!jobs.enqueue.remove_player"
`)
			t.Setenv("RANKD_CONFIG", path)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.Backend, convey.ShouldEqual, config.BackendPostgres)
				convey.So(cfg.PostgresDSN, convey.ShouldEqual, "postgres://rankd@db/rankd")
				convey.So(cfg.UsesRedis(), convey.ShouldBeTrue)
				convey.So(cfg.CacheTTL, convey.ShouldEqual, time.Hour)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 24)
				convey.So(cfg.APIKeys["bot-key"], convey.ShouldHaveLength, 2)
				convey.So(cfg.QueueSize, convey.ShouldEqual, 100_000)
			})

			convey.Convey("And env vars take precedence over the file", func() {
				t.Setenv("RANKD_WORKER_COUNT", "3")
				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 3)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			t.Setenv("RANKD_CONFIG", createTempConfigFile(t, "addr: [unterminated"))
			_, err := config.Load(ctx)

			convey.Convey("Then it should fail to load", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			t.Setenv("RANKD_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
			_, err := config.Load(ctx)

			convey.Convey("Then it should fail to load", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			t.Setenv("RANKD_WORKER_COUNT", "many")
			_, err := config.Load(ctx)

			convey.Convey("Then it should fail to decode", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})

		convey.Convey("When the loaded values do not validate", func() {
			t.Setenv("RANKD_BACKEND", "postgres")
			_, err := config.Load(ctx)

			convey.Convey("Then the validation error is returned", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}

func clearConfigEnvVars(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, "RANKD_") {
			t.Setenv(name, "")
			_ = os.Unsetenv(name)
		}
	}
}

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rankd.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}
