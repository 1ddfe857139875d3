// Package config loads the YAML configuration file and applies defaults.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig              `yaml:"server"`
	Database   DatabaseConfig            `yaml:"database"`
	Scripts    ScriptsConfig             `yaml:"scripts"`
	Execution  ExecutionConfig           `yaml:"execution"`
	Scheduler  SchedulerConfig           `yaml:"scheduler"`
	Auth       AuthConfig                `yaml:"auth"`
	Admin      AdminConfig               `yaml:"admin"`
	Categories map[string]CategoryConfig `yaml:"categories"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ScriptsConfig describes where scripts live and how to invoke them. The
// interpreter is treated as an opaque external binary; InterpreterArgs are
// inserted between the binary and the script path.
type ScriptsConfig struct {
	Root            string   `yaml:"root"`
	Extension       string   `yaml:"extension"`
	Interpreter     string   `yaml:"interpreter"`
	InterpreterArgs []string `yaml:"interpreter_args"`
}

type ExecutionConfig struct {
	DefaultTimeout int `yaml:"default_timeout"`
	MaxTimeout     int `yaml:"max_timeout"`
	MaxOutputSize  int `yaml:"max_output_size"`
}

type SchedulerConfig struct {
	PollInterval string `yaml:"poll_interval"`
}

type AuthConfig struct {
	SessionDuration string `yaml:"session_duration"`
	BcryptCost      int    `yaml:"bcrypt_cost"`
}

type AdminConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// CategoryConfig maps a scan-root directory name to presentation metadata.
// Directories without an entry still produce a usable category from the
// directory name itself.
type CategoryConfig struct {
	Key         string `yaml:"key"`
	Label       string `yaml:"label"`
	Icon        string `yaml:"icon"`
	Description string `yaml:"description"`
}

func (c *AuthConfig) GetSessionDuration() time.Duration {
	d, err := time.ParseDuration(c.SessionDuration)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

func (c *SchedulerConfig) GetPollInterval() time.Duration {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	setDefaults(&cfg)

	return &cfg, nil
}

// Default returns a configuration with all defaults applied, used when no
// config file is present.
func Default() *Config {
	var cfg Config
	setDefaults(&cfg)
	return &cfg
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./data/scriptdeck.db"
	}
	if cfg.Scripts.Root == "" {
		cfg.Scripts.Root = "./scripts"
	}
	if cfg.Scripts.Extension == "" {
		cfg.Scripts.Extension = ".ps1"
	}
	if cfg.Scripts.Interpreter == "" {
		cfg.Scripts.Interpreter = "pwsh"
	}
	if cfg.Scripts.InterpreterArgs == nil && cfg.Scripts.Interpreter == "pwsh" {
		cfg.Scripts.InterpreterArgs = []string{"-NoProfile", "-ExecutionPolicy", "Bypass", "-File"}
	}
	if cfg.Execution.DefaultTimeout == 0 {
		cfg.Execution.DefaultTimeout = 300
	}
	if cfg.Execution.MaxTimeout == 0 {
		cfg.Execution.MaxTimeout = 3600
	}
	if cfg.Execution.MaxOutputSize == 0 {
		cfg.Execution.MaxOutputSize = 10485760
	}
	if cfg.Scheduler.PollInterval == "" {
		cfg.Scheduler.PollInterval = "30s"
	}
	if cfg.Auth.SessionDuration == "" {
		cfg.Auth.SessionDuration = "24h"
	}
	if cfg.Auth.BcryptCost == 0 {
		cfg.Auth.BcryptCost = 12
	}
	if cfg.Admin.Username == "" {
		cfg.Admin.Username = "admin"
	}
	if cfg.Admin.Password == "" {
		cfg.Admin.Password = "changeme"
	}
}
