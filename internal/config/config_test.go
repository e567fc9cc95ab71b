package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv 清空本包读取的环境变量，t.Setenv 会在测试结束后恢复
func clearEnv(t *testing.T) {
	for _, key := range []string{
		"TWMAILER_SERVER_HOST",
		"TWMAILER_SERVER_PORT",
		"TWMAILER_SERVER_READ_TIMEOUT",
		"TWMAILER_SERVER_MAX_CONNECTIONS",
		"TWMAILER_SPOOL_PATH",
		"TWMAILER_SPOOL_DRIVER",
		"TWMAILER_SPOOL_LOCK_TIMEOUT",
		"TWMAILER_ADMIN_ALLOWED_ORIGINS",
		"TWMAILER_LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoad(t *testing.T) {
	t.Run("加载默认配置成功", func(t *testing.T) {
		clearEnv(t)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 6543, cfg.Server.Port)
		assert.Equal(t, 256, cfg.Server.MaxConnections)
		assert.Equal(t, float64(0), cfg.Server.AcceptRate)
		assert.Equal(t, time.Duration(0), cfg.Server.ReadTimeout)
		assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
		assert.Equal(t, 1<<20, cfg.Server.MaxCommandBytes)
		assert.Equal(t, "./mailspool", cfg.Spool.Path)
		assert.Equal(t, "filesystem", cfg.Spool.Driver)
		assert.Equal(t, 5*time.Second, cfg.Spool.LockTimeout)
		assert.True(t, cfg.Spool.CrossProcessLock)
		assert.True(t, cfg.Admin.Enabled)
		assert.Equal(t, []string{"*"}, cfg.Admin.AllowedOrigins)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Equal(t, "0.0.0.0:6543", cfg.ListenAddr())
	})

	t.Run("加载自定义配置成功", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("TWMAILER_SERVER_HOST", "127.0.0.1")
		t.Setenv("TWMAILER_SERVER_PORT", "7000")
		t.Setenv("TWMAILER_SERVER_READ_TIMEOUT", "2m")
		t.Setenv("TWMAILER_SPOOL_PATH", "/var/spool/tw")
		t.Setenv("TWMAILER_SPOOL_DRIVER", "MEMORY")
		t.Setenv("TWMAILER_ADMIN_ALLOWED_ORIGINS", "http://a.test, http://b.test")
		t.Setenv("TWMAILER_LOG_LEVEL", "debug")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "127.0.0.1:7000", cfg.ListenAddr())
		assert.Equal(t, 2*time.Minute, cfg.Server.ReadTimeout)
		assert.Equal(t, "/var/spool/tw", cfg.Spool.Path)
		assert.Equal(t, "memory", cfg.Spool.Driver)
		assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Admin.AllowedOrigins)
		assert.Equal(t, "debug", cfg.LoggerConfig().Level)
	})

	t.Run("非法配置返回错误", func(t *testing.T) {
		cases := map[string]string{
			"TWMAILER_SERVER_PORT":            "70000",
			"TWMAILER_SPOOL_PATH":             "../escape",
			"TWMAILER_SPOOL_DRIVER":           "postgres",
			"TWMAILER_SPOOL_LOCK_TIMEOUT":     "soon",
			"TWMAILER_SERVER_MAX_CONNECTIONS": "-1",
			"TWMAILER_SERVER_ACCEPT_RATE":     "-5",
		}
		for key, value := range cases {
			t.Run(key, func(t *testing.T) {
				clearEnv(t)
				t.Setenv(key, value)
				_, err := Load()
				assert.Error(t, err)
			})
		}
	})
}

func TestApplyArgs(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server: ServerConfig{Port: 6543, MaxConnections: 1, AcceptRate: 1, MaxCommandBytes: 1},
			Spool:  SpoolConfig{Path: "./mailspool", Driver: "memory"},
		}
	}

	t.Run("port and spool", func(t *testing.T) {
		cfg := base()
		require.NoError(t, cfg.ApplyArgs([]string{"8000", "/tmp/spool"}))
		assert.Equal(t, 8000, cfg.Server.Port)
		assert.Equal(t, "/tmp/spool", cfg.Spool.Path)
		assert.Equal(t, "filesystem", cfg.Spool.Driver)
	})

	t.Run("no args keeps config", func(t *testing.T) {
		cfg := base()
		require.NoError(t, cfg.ApplyArgs(nil))
		assert.Equal(t, 6543, cfg.Server.Port)
	})

	t.Run("bad input", func(t *testing.T) {
		assert.Error(t, base().ApplyArgs([]string{"port"}))
		assert.Error(t, base().ApplyArgs([]string{"0"}))
		assert.Error(t, base().ApplyArgs([]string{"1", "a", "b"}))
		assert.Error(t, base().ApplyArgs([]string{"1", "../up"}))
	})
}
