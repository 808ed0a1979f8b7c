package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Storage   StorageConfig
	Tracing   TracingConfig `mapstructure:"tracing"`
	Redis     RedisConfig
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Log       LogConfig       `mapstructure:"log"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Notify    NotifyConfig    `mapstructure:"notify"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool   `mapstructure:"-"` // 强制执行数据库迁移
	MigrateOnly  bool   `mapstructure:"-"` // 仅迁移模式（迁移后退出）
	Role         string `mapstructure:"-"` // api | worker | all
	File         string `mapstructure:"-"` // 实际加载的配置文件路径，供热更新监听
}

const (
	RoleAPI    = "api"
	RoleWorker = "worker"
	RoleAll    = "all"
)

func (c *Config) ServesHTTP() bool {
	return c.Role == "" || c.Role == RoleAPI || c.Role == RoleAll
}

func (c *Config) RunsWorkers() bool {
	return c.Role == "" || c.Role == RoleWorker || c.Role == RoleAll
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
}

// JWTConfig 令牌由外部认证服务签发，这里只做校验
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

type StorageConfig struct {
	Type          string `mapstructure:"type"`
	LocalPath     string `mapstructure:"local_path"`
	PublicURL     string `mapstructure:"public_url"`
	MinioEndpoint string `mapstructure:"minio_endpoint"`
	MinioAccessID string `mapstructure:"minio_access_key"`
	MinioSecret   string `mapstructure:"minio_secret_key"`
	MinioBucket   string `mapstructure:"minio_bucket"`
	MinioUseSSL   bool   `mapstructure:"minio_use_ssl"`
	OSSEndpoint   string `mapstructure:"oss_endpoint"`
	OSSAccessKey  string `mapstructure:"oss_access_key"`
	OSSSecretKey  string `mapstructure:"oss_secret_key"`
	OSSBucket     string `mapstructure:"oss_bucket"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
	ServiceName       string `mapstructure:"service_name"`
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// SchedulerConfig 延时任务配置；driver 为 redis 时使用 asynq，memory 仅用于单机开发
type SchedulerConfig struct {
	Driver        string        `mapstructure:"driver"`
	Concurrency   Concurrency   `mapstructure:"concurrency"`
	MaxRetry      int           `mapstructure:"max_retry"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	DeadlineGrace time.Duration `mapstructure:"deadline_grace"`
	JobTimeout    time.Duration `mapstructure:"job_timeout"`
}

// Concurrency 每种任务独立的 worker 数
type Concurrency struct {
	GoLive         int `mapstructure:"go_live"`
	AutoComplete   int `mapstructure:"auto_complete"`
	AutoSubmit     int `mapstructure:"auto_submit"`
	SectionTimeout int `mapstructure:"section_timeout"`
}

type NotifyConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("ASSESSMENT")
	v.AutomaticEnv()

	setDefaults(v)

	// Database
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	v.BindEnv("server.mode", "SERVER_MODE")
	v.BindEnv("log.level", "LOG_LEVEL")

	// Storage / OSS
	v.BindEnv("storage.type", "STORAGE_TYPE")
	v.BindEnv("storage.oss_endpoint", "OSS_ENDPOINT")
	v.BindEnv("storage.oss_access_key", "OSS_ACCESS_KEY")
	v.BindEnv("storage.oss_secret_key", "OSS_SECRET_KEY")
	v.BindEnv("storage.oss_bucket", "OSS_BUCKET")
	v.BindEnv("storage.minio_endpoint", "MINIO_ENDPOINT")
	v.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	v.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	v.BindEnv("storage.minio_bucket", "MINIO_BUCKET")

	// Tracing
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	// Scheduler
	v.BindEnv("scheduler.driver", "SCHEDULER_DRIVER")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Storage.Type == "local" {
		if _, err := os.Stat(cfg.Storage.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Storage.LocalPath, 0755)
		}
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.parsetime", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "logs/app.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 30)
	v.SetDefault("log.max_age_days", 7)
	v.SetDefault("tracing.service_name", "assessment-backend")
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "./uploads")
	v.SetDefault("scheduler.driver", "redis")
	v.SetDefault("scheduler.max_retry", 5)
	v.SetDefault("scheduler.sweep_interval", time.Minute)
	v.SetDefault("scheduler.deadline_grace", 30*time.Second)
	v.SetDefault("scheduler.job_timeout", 2*time.Minute)
	v.SetDefault("notify.enabled", true)
	v.SetDefault("notify.channel_prefix", "assessment")
	v.SetDefault("rate_limit.max_requests", 600)
	v.SetDefault("rate_limit.window_minutes", 1)
}

// Validate 校验配置并补全调度并发数
func (c *Config) Validate() error {
	// 生产环境校验 JWT Secret 强度
	if c.Server.Mode == "release" && len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(c.JWT.Secret))
	}
	switch c.Scheduler.Driver {
	case "redis", "memory":
	default:
		return fmt.Errorf("unknown scheduler driver %q", c.Scheduler.Driver)
	}
	if c.Scheduler.DeadlineGrace < 0 {
		return fmt.Errorf("scheduler.deadline_grace must not be negative")
	}
	c.Scheduler.Concurrency.GoLive = atLeastOne(c.Scheduler.Concurrency.GoLive)
	c.Scheduler.Concurrency.AutoComplete = atLeastOne(c.Scheduler.Concurrency.AutoComplete)
	c.Scheduler.Concurrency.AutoSubmit = atLeastOne(c.Scheduler.Concurrency.AutoSubmit)
	c.Scheduler.Concurrency.SectionTimeout = atLeastOne(c.Scheduler.Concurrency.SectionTimeout)
	if c.Scheduler.MaxRetry < 0 {
		c.Scheduler.MaxRetry = 0
	}
	return nil
}

func atLeastOne(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}
