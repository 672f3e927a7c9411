package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	JWT      JWTConfig      `yaml:"jwt"`
	Storage  StorageConfig  `yaml:"storage"`
	Email    EmailConfig    `yaml:"email"`
	AI       AIConfig       `yaml:"ai"`
}

// ServerConfig HTTP server settings
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig MySQL settings
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"` // e.g. Asia/Shanghai
}

// DSN builds the MySQL connection string
func (d DatabaseConfig) DSN() string {
	loc := d.Timezone
	if loc == "" {
		loc = "Local"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, loc)
}

// RedisConfig Redis settings
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// JWTConfig token settings
type JWTConfig struct {
	Secret   string `yaml:"secret"`
	TTLHours int    `yaml:"ttl_hours"`
}

// StorageConfig S3-compatible object storage settings
type StorageConfig struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Bucket          string `yaml:"bucket"`
	PublicURL       string `yaml:"public_url"`
	BasePath        string `yaml:"base_path"`
	ForcePathStyle  bool   `yaml:"force_path_style"`
}

// EmailConfig verification mail settings
type EmailConfig struct {
	Region    string `yaml:"region"`
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
}

// AIConfig LLM tagging settings
type AIConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// Load reads a YAML config file. ${VAR} references are expanded from the
// environment so secrets stay in .env files.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 3306
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = 10
	}
	if cfg.JWT.Secret == "" {
		cfg.JWT.Secret = "default_secret"
	}
	if cfg.JWT.TTLHours == 0 {
		cfg.JWT.TTLHours = 3
	}
	if cfg.AI.BaseURL == "" {
		cfg.AI.BaseURL = "https://ark.cn-beijing.volces.com/api/v3"
	}
}
