// Package config 配置类型定义
//
// 配置加载优先级（高→低）：
//  1. 环境变量（通过 .env 文件或 shell/systemd 注入）
//  2. YAML 配置文件（{env}.yaml，如 dev.yaml、test.yaml、prod.yaml）
//  3. 代码硬编码默认值
//
// 凭据单一数据源：
//
//	Redis 密码只存在 .env 文件中（YAML 中不存储任何密码）。
package config

import "time"

// YAMLConfig YAML 配置文件结构
type YAMLConfig struct {
	Server  ServerConfig  `yaml:"server"`
	Redis   RedisConfig   `yaml:"redis"`
	Queue   QueueConfig   `yaml:"queue"`
	Breaker BreakerConfig `yaml:"breaker"`
	Limiter LimiterConfig `yaml:"limiter"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

// RedisConfig Redis 连接配置
//
// URL 优先；未配置时由 host/port/db + REDIS_PASSWORD 构建。
// QueueURL/PubSubURL/CacheURL 允许按用途拆分到不同实例，
// 未配置时回退到共用 URL。
type RedisConfig struct {
	URL       string      `yaml:"url"`
	QueueURL  string      `yaml:"queue_url"`
	PubSubURL string      `yaml:"pubsub_url"`
	CacheURL  string      `yaml:"cache_url"`
	Host      string      `yaml:"host"`
	Port      int         `yaml:"port"`
	DB        int         `yaml:"db"`
	TLS       bool        `yaml:"tls"`
	Retry     RetryConfig `yaml:"retry"`
}

// RetryConfig 重连/退避参数
type RetryConfig struct {
	MaxRetries  int           `yaml:"max_retries"`
	MinBackoff  time.Duration `yaml:"min_backoff"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// QueueConfig 队列命名配置
//
// Prefix 是部署命名空间前缀（如区分同一 Redis 上的两套环境），
// Tenant 是枚举队列时排在最前的租户前缀。
type QueueConfig struct {
	Prefix string `yaml:"prefix"`
	Tenant string `yaml:"tenant"`
}

// BreakerConfig 熔断器配置
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout"`
	StateTTL         time.Duration `yaml:"state_ttl"`
}

// LimiterConfig 并发限制配置
type LimiterConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent"`
	CounterTTL    time.Duration `yaml:"counter_ttl"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config 应用配置（最终使用的配置）
type Config struct {
	Env     Environment
	APIPort string
	Redis   RedisConfig
	Queue   QueueConfig
	Breaker BreakerConfig
	Limiter LimiterConfig
	Log     LogConfig
}

// URLFor 返回指定用途的 Redis URL，未单独配置时回退到共用 URL
func (r RedisConfig) URLFor(purpose string) string {
	switch purpose {
	case "queue":
		if r.QueueURL != "" {
			return r.QueueURL
		}
	case "pubsub":
		if r.PubSubURL != "" {
			return r.PubSubURL
		}
	case "cache":
		if r.CacheURL != "" {
			return r.CacheURL
		}
	}
	return r.URL
}
