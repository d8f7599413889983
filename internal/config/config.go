package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models safetydesk.yml, the per-account settings document.
type Config struct {
	Account struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"account"`
	Calendar struct {
		Categories map[string]struct {
			Description string `yaml:"description"`
		} `yaml:"categories"`
		MonthQueryLimit int `yaml:"month_query_limit"`
	} `yaml:"calendar"`
	Tasks struct {
		ListLimit           int    `yaml:"list_limit"`
		DefaultSort         string `yaml:"default_sort"`
		PlaceholderAssignee string `yaml:"placeholder_assignee"`
		PlaceholderCreator  string `yaml:"placeholder_creator"`
	} `yaml:"tasks"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig describes one audit-log delivery target.
type WebhookConfig struct {
	URL    string   `yaml:"url"`
	Secret string   `yaml:"secret,omitempty"`
	Types  []string `yaml:"types,omitempty"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Account.ID == "" {
		return fmt.Errorf("config.account.id is required")
	}
	if len(c.Calendar.Categories) == 0 {
		return fmt.Errorf("config.calendar.categories is required")
	}
	for name := range c.Calendar.Categories {
		if name == "" {
			return fmt.Errorf("config.calendar.categories contains empty category name")
		}
	}
	if c.Calendar.MonthQueryLimit < 0 {
		return fmt.Errorf("config.calendar.month_query_limit must not be negative")
	}
	if c.Tasks.ListLimit < 0 {
		return fmt.Errorf("config.tasks.list_limit must not be negative")
	}
	switch c.Tasks.DefaultSort {
	case "", "deadline-asc", "deadline-desc", "created_at-asc", "created_at-desc":
	default:
		return fmt.Errorf("config.tasks.default_sort %q not recognized", c.Tasks.DefaultSort)
	}
	for i, wh := range c.Webhooks {
		if wh.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// CategoryAllowed reports whether a calendar category is part of the fixed set.
func (c *Config) CategoryAllowed(category string) bool {
	_, ok := c.Calendar.Categories[category]
	return ok
}

// MonthQueryLimit returns the configured month window cap, defaulting to 100.
func (c *Config) MonthQueryLimit() int {
	if c.Calendar.MonthQueryLimit > 0 {
		return c.Calendar.MonthQueryLimit
	}
	return 100
}

// TaskListLimit returns the default pending-task page size.
func (c *Config) TaskListLimit() int {
	if c.Tasks.ListLimit > 0 {
		return c.Tasks.ListLimit
	}
	return 20
}

// PlaceholderAssignee returns the degraded display name for a missing assignee.
func (c *Config) PlaceholderAssignee() string {
	if c.Tasks.PlaceholderAssignee != "" {
		return c.Tasks.PlaceholderAssignee
	}
	return "Unassigned"
}

// PlaceholderCreator returns the degraded display name for a missing creator.
func (c *Config) PlaceholderCreator() string {
	if c.Tasks.PlaceholderCreator != "" {
		return c.Tasks.PlaceholderCreator
	}
	return "Admin"
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "safetydesk.yml")
}

// Default returns the default Config struct for an account.
func Default(accountID string) *Config {
	var cfg Config
	cfg.Account.ID = accountID
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, accountID))).Decode(&cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault(accountID string) string {
	return fmt.Sprintf(defaultTemplate, accountID)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
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

// LoadOptional returns nil,nil if the workspace config file does not exist.
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

const defaultTemplate = `account:
  id: %s
  name: ""

calendar:
  categories:
    Inspection:
      description: "Scheduled site or equipment inspection"
    Audit:
      description: "Internal or external audit"
    Training:
      description: "Employee training session"
  month_query_limit: 100

tasks:
  list_limit: 20
  default_sort: deadline-asc
  placeholder_assignee: "Unassigned"
  placeholder_creator: "Admin"
`
