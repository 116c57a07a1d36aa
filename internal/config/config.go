package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig 应用基础信息
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
}

// DeviceConfig 处理器连接配置
// Host 为空表示离线编程模式；Model 为空表示未选择型号
type DeviceConfig struct {
	Model          string        `mapstructure:"model"`
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"` // 0 表示按型号默认端口
	DialTimeout    time.Duration `mapstructure:"dialTimeout"`
	RequestTimeout time.Duration `mapstructure:"requestTimeout"`
	WriteTimeout   time.Duration `mapstructure:"writeTimeout"`
	PollInterval   time.Duration `mapstructure:"pollInterval"`
	StallLimit     int           `mapstructure:"stallLimit"`
}

// CatalogConfig 型号目录配置，Path 为空使用内置目录
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// LumberjackConfig 日志滚动（lumberjack）配置
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig 日志级别与输出配置
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig Prometheus 指标暴露配置
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// RedisConfig Redis 配置（状态变更发布）
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"poolSize"`
	MinIdleConns int           `mapstructure:"minIdleConns"`
	DialTimeout  time.Duration `mapstructure:"dialTimeout"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	Channel      string        `mapstructure:"channel"`
	SnapshotKey  string        `mapstructure:"snapshotKey"`
}

// AuthConfig API 认证配置
type AuthConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	APIKeys []string `mapstructure:"apiKeys"`
}

// RateLimitConfig 控制接口限流配置。PerSecond/Burst 作用于写命令，Query* 作用于原始读命令
type RateLimitConfig struct {
	PerSecond      int `mapstructure:"perSecond"`
	Burst          int `mapstructure:"burst"`
	QueryPerSecond int `mapstructure:"queryPerSecond"`
	QueryBurst     int `mapstructure:"queryBurst"`
}

// APIConfig 控制 API 配置
type APIConfig struct {
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rateLimit"`
}

// WebhookConfig 状态变更 Webhook 推送
type WebhookConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"apiKey"`
	Secret string `mapstructure:"secret"`
}

// NotifyConfig 通知配置
type NotifyConfig struct {
	Webhook WebhookConfig `mapstructure:"webhook"`
}

// Config 顶层配置结构
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Device  DeviceConfig  `mapstructure:"device"`
	Catalog CatalogConfig `mapstructure:"catalog"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Redis   RedisConfig   `mapstructure:"redis"`
	API     APIConfig     `mapstructure:"api"`
	Notify  NotifyConfig  `mapstructure:"notify"`
}

// Load 从 YAML/TOML/JSON 文件与环境变量加载配置。
// 若 path 为空，则尝试从环境变量 NOVA_CONFIG 读取；否则回退到 configs/example.yaml。
func Load(path string) (*Config, error) {
	v := viper.New()

	// 环境变量覆盖：前缀 NOVA_，并将点号替换为下划线
	v.SetEnvPrefix("NOVA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = v.GetString("CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("example")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// 首次运行允许缺少配置文件，依赖默认值与环境变量
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "nova-gateway")
	v.SetDefault("app.env", "dev")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.readTimeout", "5s")
	v.SetDefault("http.writeTimeout", "10s")

	v.SetDefault("device.model", "")
	v.SetDefault("device.host", "")
	v.SetDefault("device.port", 0)
	v.SetDefault("device.dialTimeout", "5s")
	v.SetDefault("device.requestTimeout", "3s")
	v.SetDefault("device.writeTimeout", "2s")
	v.SetDefault("device.pollInterval", "2s")
	v.SetDefault("device.stallLimit", 2)

	v.SetDefault("catalog.path", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.filename", "logs/nova-gateway.log")
	v.SetDefault("logging.file.maxSize", 100)
	v.SetDefault("logging.file.maxBackups", 7)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.poolSize", 10)
	v.SetDefault("redis.minIdleConns", 2)
	v.SetDefault("redis.dialTimeout", "5s")
	v.SetDefault("redis.readTimeout", "3s")
	v.SetDefault("redis.writeTimeout", "3s")
	v.SetDefault("redis.channel", "nova:state")
	v.SetDefault("redis.snapshotKey", "nova:snapshot")

	v.SetDefault("api.auth.enabled", false)
	v.SetDefault("api.rateLimit.perSecond", 20)
	v.SetDefault("api.rateLimit.burst", 40)
	v.SetDefault("api.rateLimit.queryPerSecond", 5)
	v.SetDefault("api.rateLimit.queryBurst", 5)
}
