package config

import (
	"errors"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构体，启动时构建一次，之后只读
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Payment   PaymentConfig   `mapstructure:"payment"`
	Query     QueryConfig     `mapstructure:"query"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	App       AppConfig       `mapstructure:"app"`
}

type ServerConfig struct {
	Port    string `mapstructure:"port"`
	Mode    string `mapstructure:"mode"`
	BaseURL string `mapstructure:"base_url"` // 用于拼接网关回调地址
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	Port     string `mapstructure:"port"`
	SSLMode  string `mapstructure:"sslmode"`
	TimeZone string `mapstructure:"timezone"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"` // 为空时不启用 Redis
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Expire int64  `mapstructure:"expire"` // 小时
}

type PaymentConfig struct {
	MerchantKey   string        `mapstructure:"merchant_key"`
	TokenSecret   string        `mapstructure:"token_secret"` // 为空时沿用 jwt.secret
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	FrontendURL   string        `mapstructure:"frontend_url"`
	FallbackPhone string        `mapstructure:"fallback_phone"`
	InitLockTTL   time.Duration `mapstructure:"init_lock_ttl"`
}

type QueryConfig struct {
	Retries      int `mapstructure:"retries"`
	MaxBackoffMS int `mapstructure:"max_backoff_ms"`
}

// MaxBackoff 最大退避时长
func (q QueryConfig) MaxBackoff() time.Duration {
	return time.Duration(q.MaxBackoffMS) * time.Millisecond
}

type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type AppConfig struct {
	Env   string `mapstructure:"env"`
	Debug bool   `mapstructure:"debug"`
}

// Validate 验证配置
func (c *Config) Validate() error {
	// JWT 配置验证
	if c.JWT.Secret == "" || c.JWT.Secret == "your_super_secret_key" {
		return errors.New("please set a secure JWT secret in production")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("JWT secret should be at least 32 characters")
	}

	// 数据库配置验证
	if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
		return errors.New("database configuration is incomplete")
	}

	// 支付配置验证
	if c.Payment.MerchantKey == "" {
		return errors.New("payment merchant key is required")
	}
	if c.Payment.FrontendURL == "" {
		return errors.New("payment frontend url is required")
	}
	if c.Payment.TokenTTL <= 0 {
		return errors.New("payment token ttl must be positive")
	}

	return nil
}

// LoadConfig 加载配置
// 优先级：环境变量 > configs/config[.env].yaml > 默认值；.env 文件先于一切加载
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: failed to load .env: %v", err)
	}

	// 获取环境变量，默认为dev
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}

	// 根据环境选择配置文件
	configName := "config"
	if env != "dev" {
		configName = "config." + env
	}

	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Printf("Warning: Config file not found, using defaults or env vars: %v", err)
	}

	// 绑定环境变量，例如 PAYMENT_MERCHANT_KEY -> payment.merchant_key
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = "http://localhost:" + cfg.Server.Port
	}
	if cfg.Payment.TokenSecret == "" {
		cfg.Payment.TokenSecret = cfg.JWT.Secret
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Printf("Configuration loaded and validated successfully. Environment: %s", cfg.App.Env)
	return &cfg, nil
}

// setDefaults 设置默认值，所有键都需要在这里出现以便 AutomaticEnv 生效
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.base_url", "")

	v.SetDefault("database.host", "")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.timezone", "UTC")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expire", 24)

	v.SetDefault("payment.merchant_key", "")
	v.SetDefault("payment.token_secret", "")
	v.SetDefault("payment.token_ttl", "2m")
	v.SetDefault("payment.frontend_url", "")
	v.SetDefault("payment.fallback_phone", "9999999999")
	v.SetDefault("payment.init_lock_ttl", "5s")

	v.SetDefault("query.retries", 3)
	v.SetDefault("query.max_backoff_ms", 5000)

	v.SetDefault("cors.allow_origins", []string{"http://localhost:3000"})

	v.SetDefault("rate_limit.rps", 20)
	v.SetDefault("rate_limit.burst", 40)

	v.SetDefault("app.env", "dev")
	v.SetDefault("app.debug", true)
}
