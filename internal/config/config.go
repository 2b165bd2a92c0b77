package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config 配置文件结构体
type Config struct {
	Version string `yaml:"version"`
	Listen  string `yaml:"listen"`

	Sqlite struct {
		Dsn    string `yaml:"dsn"`
		Prefix string `yaml:"prefix"`
	} `yaml:"sqlite"`

	Log struct {
		Level  string   `yaml:"level"`
		Writer []string `yaml:"writer"`
		File   string   `yaml:"file"`
	} `yaml:"log"`

	Crawl struct {
		DevtoolsURL   string   `yaml:"devtoolsURL"`
		MaxPages      int      `yaml:"maxPages"`
		MaxDepth      int      `yaml:"maxDepth"`
		Concurrency   int      `yaml:"concurrency"`
		PageTimeoutMS int      `yaml:"pageTimeoutMS"`
		SettleDelayMS int      `yaml:"settleDelayMS"`
		Patterns      []string `yaml:"patterns"`
	} `yaml:"crawl"`

	Validate struct {
		WindowSeconds float64 `yaml:"windowSeconds"`
		LimitKiB      float64 `yaml:"limitKiB"`
		ECIDMode      string  `yaml:"ecidMode"`
	} `yaml:"validate"`

	Server struct {
		AllowedOrigins []string `yaml:"allowedOrigins"`
	} `yaml:"server"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	c := &Config{}
	c.Version = "1.0.0"
	c.Listen = ":8000"
	c.Sqlite.Dsn = "db.sqlite3"
	c.Sqlite.Prefix = "aepaudit_"
	c.Log.Level = "info"
	c.Log.Writer = []string{"console"}
	c.Log.File = "aepaudit.log"
	c.Crawl.DevtoolsURL = "http://127.0.0.1:9222"
	c.Crawl.MaxPages = 10
	c.Crawl.MaxDepth = 2
	c.Crawl.Concurrency = 3
	c.Crawl.PageTimeoutMS = 30000
	c.Crawl.SettleDelayMS = 2000
	c.Validate.WindowSeconds = 1.0
	c.Validate.LimitKiB = 32.0
	c.Validate.ECIDMode = "post_data"
	c.Server.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	return c
}

// Load 读取配置：缺省值 <- 配置文件 <- 环境变量，后者覆盖前者。
// path 为空时只应用缺省值与环境变量。
func Load(path string) (*Config, error) {
	cfg := NewConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnv(cfg)
	return cfg, nil
}

// applyEnv 套用 .env 与进程环境变量里的覆盖项
func applyEnv(cfg *Config) {
	_ = godotenv.Load()
	if v := os.Getenv("AEPAUDIT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("AEPAUDIT_SQLITE_DSN"); v != "" {
		cfg.Sqlite.Dsn = v
	}
	if v := os.Getenv("AEPAUDIT_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("AEPAUDIT_DEVTOOLS_URL"); v != "" {
		cfg.Crawl.DevtoolsURL = v
	}
}
