package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/nidhogg/tiny-world/internal/provider"
)

// Config is the top-level configuration structure.
type Config struct {
	Server     ServerConfig     `json:"server"`
	Providers  []ProviderConfig `json:"providers"`
	Routing    RoutingConfig    `json:"routing"`
	Generation GenerationConfig `json:"generation"`
	Simulation SimulationConfig `json:"simulation"`
	Database   DatabaseConfig   `json:"database"`
	Embedding  EmbeddingConfig  `json:"embedding"`
	Gateway    GatewayConfig    `json:"gateway"`
}

type ServerConfig struct {
	Port        int      `json:"port"`
	LogLevel    string   `json:"log_level"`
	CORSOrigins []string `json:"cors_origins,omitempty"`
}

type ProviderConfig struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Name     string            `json:"name"`
	Endpoint string            `json:"endpoint"`
	APIKey   string            `json:"api_key"`
	Models   []string          `json:"models,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
	Timeout  Duration          `json:"timeout,omitempty"`
}

// RoutingConfig chooses providers per agent name and per capability
// ("think", "speak", "action", "persona"). Agent rules win.
type RoutingConfig struct {
	Default      string                   `json:"default"`
	Agents       map[string]provider.Rule `json:"agents,omitempty"`
	Capabilities map[string]provider.Rule `json:"capabilities,omitempty"`
}

type CapabilityConfig struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

type GenerationConfig struct {
	Model  string           `json:"model"`
	Think  CapabilityConfig `json:"think"`
	Speak  CapabilityConfig `json:"speak"`
	Action CapabilityConfig `json:"action"`
}

type SimulationConfig struct {
	Scene        string   `json:"scene"`
	MemoryWindow int      `json:"memory_window"`
	RoundDelay   Duration `json:"round_delay"`
	PersonasFile string   `json:"personas_file"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Neo4j    Neo4jConfig    `json:"neo4j"`
	Redis    RedisConfig    `json:"redis"`
	Qdrant   QdrantConfig   `json:"qdrant"`
	Mongo    MongoConfig    `json:"mongo"`
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

type QdrantConfig struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Collection string `json:"collection"`
}

type MongoConfig struct {
	URI      string `json:"uri"`
	Database string `json:"database"`
}

type EmbeddingConfig struct {
	Provider  string `json:"provider"`
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	Dimension int    `json:"dimension"`
	BatchSize int    `json:"batch_size,omitempty"`
}

type GatewayConfig struct {
	Slack   SlackGatewayConfig   `json:"slack"`
	Discord DiscordGatewayConfig `json:"discord"`
}

type SlackGatewayConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	Channel  string `json:"channel"`
}

type DiscordGatewayConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	Channel  string `json:"channel"`
}

// Duration accepts either a Go duration string ("1s") or seconds as a number.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case float64:
		*d = Duration(time.Duration(x * float64(time.Second)))
	case string:
		if x == "" {
			*d = 0
			return nil
		}
		parsed, err := time.ParseDuration(x)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", x, err)
		}
		*d = Duration(parsed)
	case nil:
		*d = 0
	default:
		return fmt.Errorf("invalid duration %s", b)
	}
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// ExpandEnv substitutes ${VAR} and ${VAR:default} with environment values.
func ExpandEnv(data []byte) []byte {
	return envVarRe.ReplaceAllFunc(data, func(match []byte) []byte {
		parts := envVarRe.FindSubmatch(match)
		if v := os.Getenv(string(parts[1])); v != "" {
			return []byte(v)
		}
		return parts[2]
	})
}

// Load reads a JSON config file and substitutes environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(ExpandEnv(data), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"*"}
	}
	defaultCapability(&c.Generation.Think, 0.7, 300)
	defaultCapability(&c.Generation.Speak, 0.7, 600)
	defaultCapability(&c.Generation.Action, 0.7, 600)
	if c.Simulation.MemoryWindow == 0 {
		c.Simulation.MemoryWindow = 5
	}
	if c.Database.Postgres.Migrations == "" {
		c.Database.Postgres.Migrations = "migrations"
	}
	if c.Database.Qdrant.Collection == "" {
		c.Database.Qdrant.Collection = "tinyworld_turns"
	}
	if c.Database.Mongo.Database == "" {
		c.Database.Mongo.Database = "tinyworld"
	}
}

func defaultCapability(c *CapabilityConfig, temp float64, maxTokens int) {
	if c.Temperature == 0 {
		c.Temperature = temp
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = maxTokens
	}
}
