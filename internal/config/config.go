// Package config 统一配置管理
//
// 配置加载策略：
//  1. 从 .env 加载敏感信息（Redis 密码）和 APP_ENV
//  2. 根据 APP_ENV 加载对应的 configs/{env}.yaml 配置文件
//  3. 环境变量可覆盖 YAML 配置
//
// 使用方式：
//   - 开发环境: APP_ENV=dev (默认)
//   - 测试环境: APP_ENV=test
//   - 生产环境: APP_ENV=prod
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment 环境类型
type Environment string

const (
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test" // 测试环境（集成测试 + E2E 共用）
	EnvDevelopment Environment = "dev"
)

var configPaths = []string{
	"configs",
	"../configs",
	"../../configs",
	"../../../configs",
}

var envPaths = []string{
	".env",
	"../.env",
	"../../.env",
	"../../../.env",
}

// Load 加载配置
// 1. 加载 .env（敏感信息 + APP_ENV）
// 2. 根据 APP_ENV 加载 configs/{env}.yaml
// 3. 构建最终配置
func Load() *Config {
	// 加载 .env
	for _, p := range envPaths {
		if err := godotenv.Load(p); err == nil {
			break
		}
	}

	// 解析环境
	env := parseEnv(getEnv("APP_ENV", "dev"))

	// 加载 YAML 配置
	yamlCfg := loadYAMLConfig(env)

	// 从环境变量获取敏感信息
	redisPassword := os.Getenv("REDIS_PASSWORD")

	cfg := &Config{
		Env:     env,
		APIPort: yamlCfg.Server.Port,
		Redis:   buildRedisConfig(yamlCfg.Redis, redisPassword, env),
		Queue:   yamlCfg.Queue,
		Breaker: yamlCfg.Breaker,
		Limiter: yamlCfg.Limiter,
		Log:     yamlCfg.Log,
	}

	// 环境变量覆盖
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.Redis.URL = url
	}
	if prefix := os.Getenv("QUEUE_PREFIX"); prefix != "" {
		cfg.Queue.Prefix = prefix
	}

	cfg.validate()

	return cfg
}

// loadYAMLConfig 加载 YAML 配置文件
// 加载顺序：默认值 → common.yaml → {env}.yaml
func loadYAMLConfig(env Environment) *YAMLConfig {
	// 1. 初始化默认值
	cfg := &YAMLConfig{
		Server: ServerConfig{Port: "8090"},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
			DB:   0,
		},
		Queue: QueueConfig{
			Prefix: "",
			Tenant: "admin",
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
			StateTTL:         time.Hour,
		},
		Limiter: LimiterConfig{
			MaxConcurrent: 5,
			CounterTTL:    time.Hour,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}

	// 2. 加载 common.yaml（公共配置）
	for _, base := range configPaths {
		path := filepath.Join(base, "common.yaml")
		if data, err := os.ReadFile(path); err == nil {
			yaml.Unmarshal(data, cfg)
			break
		}
	}

	// 3. 加载 {env}.yaml（环境特定配置，覆盖公共配置）
	filename := fmt.Sprintf("%s.yaml", env)
	for _, base := range configPaths {
		path := filepath.Join(base, filename)
		if data, err := os.ReadFile(path); err == nil {
			yaml.Unmarshal(data, cfg)
			break
		}
	}

	return cfg
}

// buildRedisConfig 构建最终 Redis 配置（URL + 按环境的重连参数）
func buildRedisConfig(rc RedisConfig, password string, env Environment) RedisConfig {
	if rc.URL == "" {
		scheme := "redis"
		if rc.TLS {
			scheme = "rediss"
		}
		if password != "" {
			rc.URL = fmt.Sprintf("%s://:%s@%s:%d/%d", scheme, password, rc.Host, rc.Port, rc.DB)
		} else {
			rc.URL = fmt.Sprintf("%s://%s:%d/%d", scheme, rc.Host, rc.Port, rc.DB)
		}
	}

	// 重连/退避参数按环境取默认值（YAML 未显式配置时）
	defaults := retryDefaults(env)
	if rc.Retry.MaxRetries == 0 {
		rc.Retry.MaxRetries = defaults.MaxRetries
	}
	if rc.Retry.MinBackoff == 0 {
		rc.Retry.MinBackoff = defaults.MinBackoff
	}
	if rc.Retry.MaxBackoff == 0 {
		rc.Retry.MaxBackoff = defaults.MaxBackoff
	}
	if rc.Retry.DialTimeout == 0 {
		rc.Retry.DialTimeout = defaults.DialTimeout
	}

	return rc
}

// retryDefaults 按环境的重连默认参数
//
// 生产环境重试更多次、退避上限更高；测试环境快速失败。
func retryDefaults(env Environment) RetryConfig {
	switch env {
	case EnvProduction:
		return RetryConfig{MaxRetries: 10, MinBackoff: 100 * time.Millisecond, MaxBackoff: 5 * time.Second, DialTimeout: 10 * time.Second}
	case EnvTest:
		return RetryConfig{MaxRetries: 1, MinBackoff: 10 * time.Millisecond, MaxBackoff: 100 * time.Millisecond, DialTimeout: 2 * time.Second}
	default:
		return RetryConfig{MaxRetries: 3, MinBackoff: 50 * time.Millisecond, MaxBackoff: time.Second, DialTimeout: 5 * time.Second}
	}
}

func parseEnv(env string) Environment {
	switch strings.ToLower(env) {
	case "test":
		return EnvTest
	case "prod", "production":
		return EnvProduction
	default:
		return EnvDevelopment
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// IsTest 是否为测试环境
func (c *Config) IsTest() bool {
	return c.Env == EnvTest
}

// String 返回配置摘要（隐藏密码）
func (c *Config) String() string {
	return fmt.Sprintf("Config{Env: %s, Redis: %s, QueuePrefix: %q}",
		c.Env, maskPassword(c.Redis.URL), c.Queue.Prefix)
}

// maskPassword 隐藏密码
func maskPassword(url string) string {
	re := regexp.MustCompile(`(://[^:]*:)([^@]+)(@)`)
	return re.ReplaceAllString(url, "${1}***${3}")
}

// validate 验证并填充默认值
func (c *Config) validate() {
	if c.APIPort == "" {
		c.APIPort = "8090"
	}
	if c.Breaker.FailureThreshold <= 0 {
		c.Breaker.FailureThreshold = 5
	}
	if c.Breaker.ResetTimeout <= 0 {
		c.Breaker.ResetTimeout = 30 * time.Second
	}
	if c.Breaker.StateTTL <= 0 {
		c.Breaker.StateTTL = time.Hour
	}
	if c.Limiter.MaxConcurrent <= 0 {
		c.Limiter.MaxConcurrent = 5
	}
	if c.Limiter.CounterTTL <= 0 {
		c.Limiter.CounterTTL = time.Hour
	}
}
