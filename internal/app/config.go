package app

import "time"

// WorkerConfig describes one provider worker.
type WorkerConfig struct {
	// Name is the provider id the worker reports.
	Name string `yaml:"name" json:"name"`
	// Kind is one of file, command, selector or endpoint.
	Kind string `yaml:"kind" json:"kind"`
	// Path is the records file (file) or the executable (command).
	Path string   `yaml:"path" json:"path"`
	Args []string `yaml:"args" json:"args"`
	// URL is the proxy base URL (endpoint).
	URL string `yaml:"url" json:"url"`
	// Preset names an entry of the presets file (selector). Defaults to Name.
	Preset string `yaml:"preset" json:"preset"`
}

// Config holds runtime configuration for the application.
type Config struct {
	// Search
	Providers     []string
	Workers       []WorkerConfig
	PresetsPath   string
	SearchTimeout time.Duration
	ResultLimit   int

	// Aggregation
	MaxPerProvider int
	PerDomainCap   int
	MinTextChars   int
	CheckLinks     bool
	DropBroken     bool

	// Spam lists
	RuleServiceURL   string
	ListsPath        string
	Whitelist        []string
	HardBlacklist    []string
	CacheDir         string
	CacheMaxAge      time.Duration
	CacheClear       bool
	CacheStrictPerms bool
	PublicSuffixFile string
	FallbackResolver bool
	RefreshInterval  time.Duration

	// Verification
	VerifyEnabled    bool
	VerifyTarget     string
	VerifyWindow     time.Duration
	VerifyInboxLimit int
	MinPosterScore   int
	VerifyCleanup    bool
	RedisAddr        string

	// Persistence
	StorePath string

	// Behavior
	UserAgent  string
	Verbose    bool
	LogJSON    bool
	ListenAddr string
}

const (
	defaultCacheDir        = ".revimg-cache"
	defaultStorePath       = ".revimg-cache/state"
	defaultMaxPerProvider  = 5
	defaultSearchTimeout   = 60 * time.Second
	defaultRefreshInterval = time.Hour
	defaultListenAddr      = ":8080"
)

// DefaultConfig returns the configuration used when nothing else is set.
func DefaultConfig() Config {
	return Config{
		SearchTimeout:   defaultSearchTimeout,
		MaxPerProvider:  defaultMaxPerProvider,
		CacheDir:        defaultCacheDir,
		CacheMaxAge:     24 * time.Hour,
		RefreshInterval: defaultRefreshInterval,
		VerifyWindow:    30 * time.Second,
		StorePath:       defaultStorePath,
		UserAgent:       defaultUserAgent(),
		ListenAddr:      defaultListenAddr,
	}
}

func defaultUserAgent() string {
	return "revimg/" + BuildVersion + " (+https://github.com/hyperifyio/revimg)"
}
