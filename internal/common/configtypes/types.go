package configtypes

import (
	"github.com/edgecomet/detailwatch/pkg/types"
)

// Log level constants
const (
	LogLevelDebug  = "debug"
	LogLevelInfo   = "info"
	LogLevelWarn   = "warn"
	LogLevelError  = "error"
	LogLevelDPanic = "dpanic"
	LogLevelPanic  = "panic"
	LogLevelFatal  = "fatal"
)

// Log format constants
const (
	LogFormatJSON    = "json"
	LogFormatConsole = "console"
	LogFormatText    = "text"
)

// ServerConfig is the status API listener
type ServerConfig struct {
	ID     string `yaml:"id"`
	Listen string `yaml:"listen"`
}

// TargetConfig is the page the watcher opens
type TargetConfig struct {
	URL          string         `yaml:"url"`
	LoadTimeout  types.Duration `yaml:"load_timeout"`
	WaitSelector string         `yaml:"wait_selector,omitempty"`
}

// ChromeConfig controls the browser that hosts the page
type ChromeConfig struct {
	RemoteURL      string         `yaml:"remote_url,omitempty"` // attach to a running browser instead of launching one
	Headless       *bool          `yaml:"headless,omitempty"`
	UserAgent      string         `yaml:"user_agent,omitempty"`
	ViewportWidth  int            `yaml:"viewport_width,omitempty"`
	ViewportHeight int            `yaml:"viewport_height,omitempty"`
	StartupTimeout types.Duration `yaml:"startup_timeout"`
	CallTimeout    types.Duration `yaml:"call_timeout"`
	Block          BlockConfig    `yaml:"block"`
}

// BlockConfig lists subresource requests the watched tab aborts. The page
// document itself is never blocked.
type BlockConfig struct {
	Defaults      *bool    `yaml:"defaults,omitempty"` // include the built-in tracker list
	Patterns      []string `yaml:"patterns,omitempty"`
	ResourceTypes []string `yaml:"resource_types,omitempty"`
}

// WatchConfig tunes the extraction scheduler
type WatchConfig struct {
	CoalesceDelay   types.Duration `yaml:"coalesce_delay"`
	RetryInterval   types.Duration `yaml:"retry_interval"`
	RetryWindow     types.Duration `yaml:"retry_window"`
	NavigationPoll  types.Duration `yaml:"navigation_poll"`
	FetchTimeout    types.Duration `yaml:"fetch_timeout"`
	FetchMaxBytes   int64          `yaml:"fetch_max_bytes"`
	SinkTimeout     types.Duration `yaml:"sink_timeout"` // per sink call
	Dedup           string         `yaml:"dedup"` // shared or separate
	StateContainers []string       `yaml:"state_containers,omitempty"`
	Publish         PublishConfig  `yaml:"publish"`
}

// PublishConfig controls what the page sink writes into the page
type PublishConfig struct {
	GlobalName      string `yaml:"global_name"`
	MarkerAttribute string `yaml:"marker_attribute"`
	NavigationEvent string `yaml:"navigation_event"`
	Overlay         *bool  `yaml:"overlay,omitempty"`
}

type RedisConfig struct {
	Enabled     bool           `yaml:"enabled"`
	Addr        string         `yaml:"addr"`
	Password    string         `yaml:"password"`
	DB          int            `yaml:"db"`
	KeyPrefix   string         `yaml:"key_prefix"`
	TTL         types.Duration `yaml:"ttl"`
	Compression string         `yaml:"compression,omitempty"` // none, snappy, lz4
}

// EventsConfig configures the accepted-result event log
type EventsConfig struct {
	File EventFileConfig `yaml:"file"`
}

// EventFileConfig configures file-based event logging
type EventFileConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Path     string         `yaml:"path"`
	Rotation RotationConfig `yaml:"rotation"`
}

type LogConfig struct {
	Level   string           `yaml:"level"`
	Console ConsoleLogConfig `yaml:"console"`
	File    FileLogConfig    `yaml:"file"`
}

type ConsoleLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	Format  string `yaml:"format"`
	Level   string `yaml:"level,omitempty"`
}

type FileLogConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Path     string         `yaml:"path"`
	Format   string         `yaml:"format"`
	Level    string         `yaml:"level,omitempty"`
	Rotation RotationConfig `yaml:"rotation"`
}

type RotationConfig struct {
	MaxSize    int  `yaml:"max_size"`
	MaxAge     int  `yaml:"max_age"`
	MaxBackups int  `yaml:"max_backups"`
	Compress   bool `yaml:"compress"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Listen    string `yaml:"listen"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}
