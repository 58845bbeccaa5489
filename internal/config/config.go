package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"taskdesk/internal/domain"
)

const fileName = "taskdesk.yml"

// Config models taskdesk.yml.
type Config struct {
	Categories []CategorySeed       `yaml:"categories"`
	Actors     map[string][]string `yaml:"actors"`
	Server     ServerConfig        `yaml:"server"`
	Log        struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

type CategorySeed struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Color       string `yaml:"color"`
	Default     bool   `yaml:"default"`
}

type ServerConfig struct {
	Addr             string `yaml:"addr"`
	BasePath         string `yaml:"base_path"`
	JWTSecretEnv     string `yaml:"jwt_secret_env"`
	AllowActorHeader bool   `yaml:"allow_actor_header"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with td init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	defaults := 0
	names := map[string]bool{}
	for i, cat := range c.Categories {
		name := strings.TrimSpace(cat.Name)
		if name == "" {
			return fmt.Errorf("config.categories[%d].name is required", i)
		}
		if len([]rune(name)) > 255 {
			return fmt.Errorf("config.categories[%d].name exceeds 255 characters", i)
		}
		if strings.TrimSpace(cat.Color) == "" {
			return fmt.Errorf("config.categories[%d].color is required", i)
		}
		if names[name] {
			return fmt.Errorf("config.categories has duplicate name %s", name)
		}
		names[name] = true
		if cat.Default {
			defaults++
		}
	}
	if defaults > 1 {
		return fmt.Errorf("config.categories must mark at most one default, found %d", defaults)
	}
	for actorID, roles := range c.Actors {
		if strings.TrimSpace(actorID) == "" {
			return fmt.Errorf("config.actors contains empty actor id")
		}
		for _, r := range roles {
			if _, err := domain.ParseRole(r); err != nil {
				return fmt.Errorf("config.actors.%s: %w", actorID, err)
			}
		}
	}
	if bp := c.Server.BasePath; bp != "" && !strings.HasPrefix(bp, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, fileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault(adminID string) string {
	return fmt.Sprintf(defaultTemplate, adminID)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config with adminID holding every role.
func Default(adminID string) *Config {
	cfg, err := FromYAML([]byte(GenerateDefault(adminID)))
	if err != nil {
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8080"
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = "/v0"
	}
	if c.Server.JWTSecretEnv == "" {
		c.Server.JWTSecretEnv = "TASKDESK_JWT_SECRET"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

const defaultTemplate = `categories:
  - name: General
    description: "Anything that does not fit elsewhere"
    color: "#607d8b"
    default: true
  - name: IT
    description: "Hardware, accounts and access"
    color: "#1e88e5"
  - name: Facilities
    description: "Rooms, furniture and building issues"
    color: "#43a047"

actors:
  %s: [ADMIN, REQUESTER, ASSIGNER, EXECUTOR]

server:
  addr: 127.0.0.1:8080
  base_path: /v0
  jwt_secret_env: TASKDESK_JWT_SECRET
  allow_actor_header: false

log:
  level: info
`
