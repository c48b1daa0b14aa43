// Package config 配置加载测试
package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseEnv 环境名解析与默认回落
func TestParseEnv(t *testing.T) {
	tests := []struct {
		input string
		want  Environment
	}{
		{"test", EnvTest},
		{"prod", EnvProduction},
		{"production", EnvProduction},
		{"PROD", EnvProduction},
		{"dev", EnvDevelopment},
		{"", EnvDevelopment},
		{"unknown", EnvDevelopment},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, parseEnv(tt.input), "parseEnv(%q)", tt.input)
	}
}

// TestBuildRedisConfig URL 构建与密码注入
func TestBuildRedisConfig(t *testing.T) {
	t.Run("无密码", func(t *testing.T) {
		rc := buildRedisConfig(RedisConfig{Host: "localhost", Port: 6379, DB: 0}, "", EnvDevelopment)
		assert.Equal(t, "redis://localhost:6379/0", rc.URL)
	})

	t.Run("带密码", func(t *testing.T) {
		rc := buildRedisConfig(RedisConfig{Host: "redis.internal", Port: 6379, DB: 2}, "s3cret", EnvProduction)
		assert.Equal(t, "redis://:s3cret@redis.internal:6379/2", rc.URL)
	})

	t.Run("TLS", func(t *testing.T) {
		rc := buildRedisConfig(RedisConfig{Host: "redis.internal", Port: 6380, TLS: true}, "", EnvProduction)
		assert.Contains(t, rc.URL, "rediss://")
	})

	t.Run("显式 URL 优先", func(t *testing.T) {
		rc := buildRedisConfig(RedisConfig{URL: "redis://explicit:6379/1", Host: "ignored"}, "pw", EnvDevelopment)
		assert.Equal(t, "redis://explicit:6379/1", rc.URL)
	})
}

// TestRetryDefaults 重连参数按环境分级
func TestRetryDefaults(t *testing.T) {
	prod := retryDefaults(EnvProduction)
	test := retryDefaults(EnvTest)
	dev := retryDefaults(EnvDevelopment)

	// 生产重试最多，测试快速失败
	assert.Greater(t, prod.MaxRetries, dev.MaxRetries)
	assert.Greater(t, dev.MaxRetries, test.MaxRetries)
	assert.Greater(t, prod.DialTimeout, test.DialTimeout)
}

// TestURLFor 按用途的 URL 回退
func TestURLFor(t *testing.T) {
	rc := RedisConfig{
		URL:      "redis://shared:6379/0",
		QueueURL: "redis://queue:6379/0",
	}

	assert.Equal(t, "redis://queue:6379/0", rc.URLFor("queue"))
	assert.Equal(t, "redis://shared:6379/0", rc.URLFor("pubsub"), "未单独配置的用途应回退到共用 URL")
	assert.Equal(t, "redis://shared:6379/0", rc.URLFor("cache"))
	assert.Equal(t, "redis://shared:6379/0", rc.URLFor("unknown"))
}

// TestMaskPassword 日志中隐藏密码
func TestMaskPassword(t *testing.T) {
	assert.Equal(t, "redis://:***@host:6379/0", maskPassword("redis://:s3cret@host:6379/0"))
	assert.Equal(t, "redis://host:6379/0", maskPassword("redis://host:6379/0"))
}

// TestValidate_FillsDefaults 非法值回落到默认
func TestValidate_FillsDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.validate()

	assert.Equal(t, "8090", cfg.APIPort)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.Breaker.ResetTimeout)
	assert.Equal(t, time.Hour, cfg.Breaker.StateTTL)
	assert.Equal(t, 5, cfg.Limiter.MaxConcurrent)
	assert.Equal(t, time.Hour, cfg.Limiter.CounterTTL)
}

// TestLoad_EnvOverrides 环境变量覆盖 YAML
func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("REDIS_URL", "redis://override:6379/1")
	t.Setenv("QUEUE_PREFIX", "ci")

	cfg := Load()
	require.NotNil(t, cfg)

	assert.Equal(t, EnvTest, cfg.Env)
	assert.Equal(t, "redis://override:6379/1", cfg.Redis.URL)
	assert.Equal(t, "ci", cfg.Queue.Prefix)
	assert.True(t, cfg.IsTest())
}
