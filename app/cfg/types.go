package cfg

import "time"

type Cfg struct {
	// Storage configuration
	DBPath string

	// Application configuration
	SourcesDir   string
	Sources      []string
	Serve        bool
	Port         string
	APIAccessKey string

	// Fetch configuration
	UserAgent      string
	FetchTimeout   time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// Application metadata
	Timezone string
	Debug    bool
	Version  string
}
