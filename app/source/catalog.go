package source

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Catalog holds the source configs found in a directory of YAML files.
type Catalog struct {
	sourcesDir string
	cache      map[string]*Config
	mu         sync.RWMutex
}

func NewCatalog(sourcesDir string) *Catalog {
	return &Catalog{
		sourcesDir: sourcesDir,
		cache:      make(map[string]*Config),
	}
}

func (c *Catalog) Run() error {
	if _, err := os.Stat(c.sourcesDir); os.IsNotExist(err) {
		return fmt.Errorf("sources directory %s does not exist", c.sourcesDir)
	}

	files, err := filepath.Glob(filepath.Join(c.sourcesDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".yml")

		config, err := c.LoadConfig(name)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Source loaded", "source", name, "format", config.Format, "enabled", config.Settings.Enabled, "pages", len(config.PageURLs()))
	}

	return nil
}

func (c *Catalog) LoadConfig(name string) (*Config, error) {
	configFile := filepath.Join(c.sourcesDir, name+".yml")
	config, err := parseConfig(configFile)
	if err != nil {
		return nil, err
	}
	config.Name = name

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configFile, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[name] = config

	return config, nil
}

func (c *Catalog) GetConfig(name string) (*Config, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	config, ok := c.cache[name]
	if !ok {
		return nil, fmt.Errorf("source config with name '%s' not found", name)
	}
	return config, nil
}

// GetEnabledConfigs returns enabled sources sorted by name. When names is
// non-empty only those sources are returned, and an unknown name is an error.
func (c *Catalog) GetEnabledConfigs(names ...string) ([]*Config, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var configs []*Config
	if len(names) == 0 {
		for _, config := range c.cache {
			if config.Settings.Enabled {
				configs = append(configs, config)
			}
		}
	} else {
		for _, name := range names {
			config, ok := c.cache[name]
			if !ok {
				return nil, fmt.Errorf("source config with name '%s' not found", name)
			}
			if config.Settings.Enabled {
				configs = append(configs, config)
			}
		}
	}

	sort.Slice(configs, func(i, j int) bool { return configs[i].Name < configs[j].Name })
	return configs, nil
}

func (c *Catalog) GetConfigs() []*Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	configs := make([]*Config, 0, len(c.cache))
	for _, config := range c.cache {
		configs = append(configs, config)
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].Name < configs[j].Name })
	return configs
}

func (c *Catalog) GetConfigCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

func parseConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	config := Config{Settings: ConfigSettings{Enabled: true}}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if config.Format == "" {
		config.Format = FormatJSONLD
	}
	if config.Settings.RecurrenceHorizonDays == 0 {
		config.Settings.RecurrenceHorizonDays = 90
	}
	if p := config.Pagination; p != nil {
		if p.Start == 0 {
			p.Start = len(config.URLs) + 1
		}
		if p.MaxPages == 0 {
			p.MaxPages = 10
		}
	}
	config.Fields = config.Fields.WithDefaults(config.Format)

	return &config, nil
}

func validateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("config is nil")
	}

	switch config.Format {
	case FormatJSONLD, FormatICal, FormatRSS:
	default:
		return fmt.Errorf("unsupported format: %s", config.Format)
	}

	if len(config.URLs) == 0 {
		return fmt.Errorf("at least one URL is required")
	}
	for i, raw := range config.URLs {
		if err := validateURL(raw); err != nil {
			return fmt.Errorf("invalid URL at index %d: %w", i, err)
		}
	}

	if p := config.Pagination; p != nil {
		if !strings.Contains(p.Template, PagePlaceholder) {
			return fmt.Errorf("pagination template must contain %s", PagePlaceholder)
		}
		if err := validateURL(strings.ReplaceAll(p.Template, PagePlaceholder, "1")); err != nil {
			return fmt.Errorf("invalid pagination template: %w", err)
		}
	}

	nonNegativeFields := map[string]int{
		"timeout":                 config.Settings.Timeout,
		"recurrence horizon days": config.Settings.RecurrenceHorizonDays,
	}
	if p := config.Pagination; p != nil {
		nonNegativeFields["pagination start"] = p.Start
		nonNegativeFields["pagination max pages"] = p.MaxPages
	}

	for fieldName, fieldValue := range nonNegativeFields {
		if fieldValue < 0 {
			return fmt.Errorf("%s must be non-negative", fieldName)
		}
	}

	requiredFields := map[string]string{
		"title field": config.Fields.Title,
		"start field": config.Fields.Start,
	}

	for fieldName, fieldValue := range requiredFields {
		if fieldValue == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
	}

	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}
