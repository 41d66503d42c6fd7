package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"
)

// Config is the top-level configuration structure.
type Config struct {
	Server    ServerConfig     `json:"server"`
	Providers []ProviderConfig `json:"providers"`
	Agent     AgentConfig      `json:"agent"`
	Run       RunConfig        `json:"run"`
	Database  DatabaseConfig   `json:"database"`
	Notify    NotifyConfig     `json:"notify"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

type ProviderConfig struct {
	ID             string `json:"id"`
	Type           string `json:"type"`
	Endpoint       string `json:"endpoint"`
	APIKey         string `json:"api_key"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// Timeout returns the request timeout, zero when unset.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

type AgentConfig struct {
	ID            string   `json:"id"`
	Provider      string   `json:"provider"`
	Fallbacks     []string `json:"fallbacks,omitempty"`
	Model         string   `json:"model"`
	Temperature   float64  `json:"temperature"`
	MaxTokens     int      `json:"max_tokens"`
	ContextTokens int      `json:"context_tokens,omitempty"`
}

type RunConfig struct {
	TasksPath string `json:"tasks_path"`
	DataDir   string `json:"data_dir"`
	OutputDir string `json:"output_dir"`
	MaxRounds int    `json:"max_rounds"`
	Resume    bool   `json:"resume"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Neo4j    Neo4jConfig    `json:"neo4j"`
	Redis    RedisConfig    `json:"redis"`
}

type PostgresConfig struct {
	DSN        string `json:"dsn"`
	Migrations string `json:"migrations"`
}

type Neo4jConfig struct {
	URI      string `json:"uri"`
	User     string `json:"user"`
	Password string `json:"password"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

type NotifyConfig struct {
	Slack   SlackConfig   `json:"slack"`
	Discord DiscordConfig `json:"discord"`
}

type SlackConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	Channel  string `json:"channel"`
}

type DiscordConfig struct {
	Enabled   bool   `json:"enabled"`
	BotToken  string `json:"bot_token"`
	ChannelID string `json:"channel_id"`
}

// ErrNoTasks means run.tasks_path is empty.
var ErrNoTasks = errors.New("run.tasks_path is required")

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file, substitutes environment variable
// references and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes config bytes. See Load.
func Parse(data []byte) (*Config, error) {
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		if v := os.Getenv(parts[1]); v != "" {
			return v
		}
		return parts[2]
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Run.OutputDir == "" {
		c.Run.OutputDir = "output"
	}
	if c.Run.MaxRounds <= 0 {
		c.Run.MaxRounds = 10
	}
	if c.Database.Postgres.Migrations == "" {
		c.Database.Postgres.Migrations = "migrations"
	}
	if c.Agent.ID == "" {
		c.Agent.ID = "campus-agent"
	}
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	if c.Run.TasksPath == "" {
		return ErrNoTasks
	}
	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if p.ID == "" {
			return errors.New("provider id is required")
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate provider %q", p.ID)
		}
		seen[p.ID] = true
	}
	if c.Agent.Provider != "" && !seen[c.Agent.Provider] {
		return fmt.Errorf("agent provider %q is not configured", c.Agent.Provider)
	}
	if c.Notify.Slack.Enabled && (c.Notify.Slack.BotToken == "" || c.Notify.Slack.Channel == "") {
		return errors.New("notify.slack needs bot_token and channel")
	}
	if c.Notify.Discord.Enabled && (c.Notify.Discord.BotToken == "" || c.Notify.Discord.ChannelID == "") {
		return errors.New("notify.discord needs bot_token and channel_id")
	}
	return nil
}
