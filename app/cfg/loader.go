package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage configuration
	DBPath string `long:"db-path" env:"DB_PATH" default:"./harvester.db" description:"SQLite database file"`

	// Application configuration
	SourcesDir   string   `long:"sources-dir" env:"SOURCES_DIR" default:"./sources" description:"Directory containing calendar source configuration files"`
	Sources      []string `long:"source" env:"SOURCES" env-delim:"," description:"Limit the run to the named sources (repeatable)"`
	Serve        bool     `long:"serve" env:"SERVE" description:"Run the HTTP status/trigger server instead of a single crawl pass"`
	Port         string   `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey string   `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Fetch configuration
	UserAgent      string `long:"user-agent" env:"USER_AGENT" default:"DucksGatherHarvester/1.0 (+https://github.com/ducksgather/harvester)" description:"User agent string identifying the crawler"`
	FetchTimeout   int    `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"10" description:"Per-request timeout in seconds"`
	MaxAttempts    int    `long:"max-attempts" env:"MAX_ATTEMPTS" default:"5" description:"Maximum fetch attempts per page"`
	InitialBackoff int    `long:"initial-backoff" env:"INITIAL_BACKOFF_MS" default:"500" description:"Initial retry backoff in milliseconds"`
	MaxBackoff     int    `long:"max-backoff" env:"MAX_BACKOFF_MS" default:"8000" description:"Maximum retry backoff in milliseconds"`

	// Application metadata
	Timezone string `long:"timezone" env:"TZ" default:"America/Los_Angeles" description:"Timezone used to derive event dates (e.g., UTC, America/Los_Angeles)"`
	Debug    bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	return load(nil)
}

func load(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	var err error
	if args == nil {
		_, err = parser.Parse()
	} else {
		_, err = parser.ParseArgs(args)
	}
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:         raw.DBPath,
		SourcesDir:     raw.SourcesDir,
		Sources:        raw.Sources,
		Serve:          raw.Serve,
		Port:           raw.Port,
		APIAccessKey:   raw.APIAccessKey,
		UserAgent:      raw.UserAgent,
		FetchTimeout:   time.Duration(raw.FetchTimeout) * time.Second,
		MaxAttempts:    raw.MaxAttempts,
		InitialBackoff: time.Duration(raw.InitialBackoff) * time.Millisecond,
		MaxBackoff:     time.Duration(raw.MaxBackoff) * time.Millisecond,
		Timezone:       raw.Timezone,
		Debug:          raw.Debug,
		Version:        GetVersion(),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func validate(cfg *Cfg) error {
	if cfg.UserAgent == "" {
		return fmt.Errorf("user agent must not be empty")
	}
	if cfg.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", cfg.MaxAttempts)
	}
	if cfg.FetchTimeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive")
	}
	if cfg.InitialBackoff < 0 || cfg.MaxBackoff < cfg.InitialBackoff {
		return fmt.Errorf("invalid backoff window %s..%s", cfg.InitialBackoff, cfg.MaxBackoff)
	}
	return nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
			fmt.Printf("Timezone configured: %s\n", timezone)
		}
	}
	return nil
}
