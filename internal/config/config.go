package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultUserAgent 默认浏览器 UA
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

// Config 配置文件结构体
type Config struct {
	Version  string         `yaml:"version"`
	Sqlite   SqliteConfig   `yaml:"sqlite"`
	Log      LogConfig      `yaml:"log"`
	Browser  BrowserConfig  `yaml:"browser"`
	Wait     WaitConfig     `yaml:"wait"`
	Download DownloadConfig `yaml:"download"`
}

// SqliteConfig 日志库配置，Dsn 为空时不启用持久化
type SqliteConfig struct {
	Dsn    string `yaml:"dsn"`
	Prefix string `yaml:"prefix"`
}

type LogConfig struct {
	Level  string   `yaml:"level"`
	Writer []string `yaml:"writer"`
	File   string   `yaml:"file"`
}

// BrowserConfig 浏览器连接与启动配置
type BrowserConfig struct {
	DevToolsURL  string `yaml:"devtools_url"`
	Launch       bool   `yaml:"launch"`
	Binary       string `yaml:"binary"`
	Headless     bool   `yaml:"headless"`
	UserAgent    string `yaml:"user_agent"`
	WindowWidth  int    `yaml:"window_width"`
	WindowHeight int    `yaml:"window_height"`
	UserDataDir  string `yaml:"user_data_dir"`
	DownloadDir  string `yaml:"download_dir"`
	DebugPort    int    `yaml:"debug_port"`
}

// WaitConfig 显式等待默认值
type WaitConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// DownloadConfig 下载完成监视默认值
type DownloadConfig struct {
	Interval     time.Duration `yaml:"interval"`
	Threshold    int           `yaml:"threshold"`
	MissingRetry time.Duration `yaml:"missing_retry"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Version: "1.0.0",
		Sqlite: SqliteConfig{
			Dsn:    "",
			Prefix: "cdprpa_",
		},
		Log: LogConfig{
			Level:  "info",
			Writer: []string{"console"},
		},
		Browser: BrowserConfig{
			DevToolsURL:  "http://127.0.0.1:9222",
			UserAgent:    DefaultUserAgent,
			WindowWidth:  1920,
			WindowHeight: 1080,
			DownloadDir:  defaultDownloadDir(),
			DebugPort:    9222,
		},
		Wait: WaitConfig{
			Timeout:      12 * time.Second,
			PollInterval: time.Second,
		},
		Download: DownloadConfig{
			Interval:     time.Second,
			Threshold:    3,
			MissingRetry: time.Second,
		},
	}
}

// Load 在默认配置之上加载 yaml 文件，文件不存在时返回默认配置
func Load(path string) (*Config, error) {
	cfg := NewConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验取值范围
func (c *Config) Validate() error {
	if c.Wait.Timeout < 0 {
		return fmt.Errorf("wait.timeout must not be negative")
	}
	if c.Wait.PollInterval < time.Millisecond {
		return fmt.Errorf("wait.poll_interval must be at least 1ms")
	}
	if c.Download.Interval <= 0 {
		return fmt.Errorf("download.interval must be positive")
	}
	if c.Download.Threshold < 1 {
		return fmt.Errorf("download.threshold must be at least 1")
	}
	if c.Download.MissingRetry <= 0 {
		return fmt.Errorf("download.missing_retry must be positive")
	}
	return nil
}

func defaultDownloadDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "Downloads"
	}
	return filepath.Join(home, "Downloads")
}
