package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/detailwatch/internal/common/configtypes"
	"github.com/edgecomet/detailwatch/internal/common/yamlutil"
	"github.com/edgecomet/detailwatch/pkg/pattern"
	"github.com/edgecomet/detailwatch/pkg/types"
)

// Config is the detail-watcher configuration file
type Config struct {
	Server  configtypes.ServerConfig  `yaml:"server"`
	Target  configtypes.TargetConfig  `yaml:"target"`
	Chrome  configtypes.ChromeConfig  `yaml:"chrome"`
	Watch   configtypes.WatchConfig   `yaml:"watch"`
	Redis   configtypes.RedisConfig   `yaml:"redis"`
	Events  configtypes.EventsConfig  `yaml:"events"`
	Log     configtypes.LogConfig     `yaml:"log"`
	Metrics configtypes.MetricsConfig `yaml:"metrics"`
}

const (
	defaultCoalesceDelay  = 16 * time.Millisecond
	defaultRetryInterval  = 500 * time.Millisecond
	defaultRetryWindow    = 8 * time.Second
	defaultNavigationPoll = time.Second
	defaultFetchTimeout   = 15 * time.Second
	defaultFetchMaxBytes  = 20 * 1024 * 1024
	defaultSinkTimeout    = 5 * time.Second

	defaultLoadTimeout    = 30 * time.Second
	defaultStartupTimeout = 30 * time.Second
	defaultCallTimeout    = 5 * time.Second

	defaultRedisKeyPrefix = "detailwatch:"
	defaultRedisTTL       = time.Hour

	defaultMetricsPath      = "/metrics"
	defaultMetricsNamespace = "detailwatch"
)

// defaultBlockedResourceTypes never carry embedded state. An explicit empty
// list disables type blocking.
var defaultBlockedResourceTypes = []string{"Image", "Media", "Font"}

// blockableResourceTypes are the DevTools resource types a rule may name
var blockableResourceTypes = map[string]struct{}{
	"Stylesheet": {}, "Image": {}, "Media": {}, "Font": {}, "Script": {},
	"TextTrack": {}, "XHR": {}, "Fetch": {}, "Prefetch": {}, "EventSource": {},
	"WebSocket": {}, "Manifest": {}, "SignedExchange": {}, "Ping": {},
	"CSPViolationReport": {}, "Preflight": {}, "Other": {},
}

var (
	jsIdentifierRegex  = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)
	attributeNameRegex = regexp.MustCompile(`^[A-Za-z_:][-A-Za-z0-9_:.]*$`)
	namespaceRegex     = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

// ConfigManager owns the loaded configuration
type ConfigManager struct {
	config     *Config
	configPath string
	logger     *zap.Logger
}

// NewConfigManager loads and validates the file at configPath
func NewConfigManager(configPath string, logger *zap.Logger) (*ConfigManager, error) {
	cm := &ConfigManager{
		configPath: configPath,
		logger:     logger,
	}

	if err := cm.LoadConfig(); err != nil {
		return nil, err
	}

	return cm, nil
}

// LoadConfig (re)reads the configuration file
func (cm *ConfigManager) LoadConfig() error {
	cfg, err := LoadConfig(cm.configPath)
	if err != nil {
		return err
	}
	cm.config = cfg

	cm.logger.Debug("Configuration loaded",
		zap.String("path", cm.configPath),
		zap.String("target", cfg.Target.URL),
		zap.String("dedup", cfg.Watch.Dedup))
	return nil
}

// GetConfig returns the current configuration
func (cm *ConfigManager) GetConfig() *Config {
	return cm.config
}

// LoadConfig reads, defaults and validates a configuration file
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes configuration bytes, applies defaults and validates
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yamlutil.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDuration(d *types.Duration, def time.Duration) {
	if *d == 0 {
		*d = types.Duration(def)
	}
}

// applyDefaults fills zero values
func (cfg *Config) applyDefaults() {
	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console.Enabled = true
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = configtypes.LogLevelInfo
	}
	if cfg.Log.Console.Format == "" {
		cfg.Log.Console.Format = configtypes.LogFormatConsole
	}
	if cfg.Log.File.Format == "" {
		cfg.Log.File.Format = configtypes.LogFormatText
	}

	setDuration(&cfg.Target.LoadTimeout, defaultLoadTimeout)
	setDuration(&cfg.Chrome.StartupTimeout, defaultStartupTimeout)
	setDuration(&cfg.Chrome.CallTimeout, defaultCallTimeout)
	if cfg.Chrome.Headless == nil {
		headless := true
		cfg.Chrome.Headless = &headless
	}
	if cfg.Chrome.Block.Defaults == nil {
		defaults := true
		cfg.Chrome.Block.Defaults = &defaults
	}
	if cfg.Chrome.Block.ResourceTypes == nil {
		cfg.Chrome.Block.ResourceTypes = append([]string(nil), defaultBlockedResourceTypes...)
	}

	w := &cfg.Watch
	setDuration(&w.CoalesceDelay, defaultCoalesceDelay)
	setDuration(&w.RetryInterval, defaultRetryInterval)
	setDuration(&w.RetryWindow, defaultRetryWindow)
	setDuration(&w.NavigationPoll, defaultNavigationPoll)
	setDuration(&w.FetchTimeout, defaultFetchTimeout)
	setDuration(&w.SinkTimeout, defaultSinkTimeout)
	if w.FetchMaxBytes == 0 {
		w.FetchMaxBytes = defaultFetchMaxBytes
	}
	if w.Dedup == "" {
		w.Dedup = types.DedupShared
	}
	if len(w.StateContainers) == 0 {
		w.StateContainers = append([]string(nil), types.DefaultStateContainers...)
	}
	if w.Publish.GlobalName == "" {
		w.Publish.GlobalName = types.DefaultGlobalName
	}
	if w.Publish.MarkerAttribute == "" {
		w.Publish.MarkerAttribute = types.DefaultMarkerAttribute
	}
	if w.Publish.NavigationEvent == "" {
		w.Publish.NavigationEvent = types.DefaultNavigationEvent
	}
	if w.Publish.Overlay == nil {
		overlay := true
		w.Publish.Overlay = &overlay
	}

	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = defaultRedisKeyPrefix
	}
	setDuration(&cfg.Redis.TTL, defaultRedisTTL)
	if cfg.Redis.Compression == "" {
		cfg.Redis.Compression = types.CompressionNone
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = defaultMetricsPath
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = defaultMetricsNamespace
	}
}

// Validate checks configuration validity
func (cfg *Config) Validate() error {
	if cfg.Server.ID == "" {
		return fmt.Errorf("server.id is required")
	}
	if cfg.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	} else if err := configtypes.ValidateListenAddress(cfg.Server.Listen); err != nil {
		return fmt.Errorf("invalid server.listen: %w", err)
	}

	if err := validateTargetURL(cfg.Target.URL); err != nil {
		return err
	}
	if cfg.Target.LoadTimeout <= 0 {
		return fmt.Errorf("target.load_timeout must be positive")
	}

	if cfg.Chrome.StartupTimeout <= 0 {
		return fmt.Errorf("chrome.startup_timeout must be positive")
	}
	if cfg.Chrome.CallTimeout <= 0 {
		return fmt.Errorf("chrome.call_timeout must be positive")
	}
	if cfg.Chrome.ViewportWidth < 0 || cfg.Chrome.ViewportHeight < 0 {
		return fmt.Errorf("chrome viewport dimensions must be >= 0")
	}
	if err := validateBlock(cfg.Chrome.Block); err != nil {
		return err
	}

	if err := cfg.validateWatch(); err != nil {
		return err
	}
	if err := cfg.validateRedis(); err != nil {
		return err
	}

	if cfg.Events.File.Enabled && cfg.Events.File.Path == "" {
		return fmt.Errorf("events.file.path must be specified when event logging is enabled")
	}

	if err := cfg.validateLog(); err != nil {
		return err
	}

	return cfg.validateMetrics()
}

func validateTargetURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("target.url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid target.url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid target.url: scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid target.url: host is required")
	}
	return nil
}

func validateBlock(block configtypes.BlockConfig) error {
	if _, err := pattern.CompileAll(block.Patterns); err != nil {
		return fmt.Errorf("invalid chrome.block.patterns: %w", err)
	}
	for _, rt := range block.ResourceTypes {
		if rt == "Document" {
			return fmt.Errorf("chrome.block.resource_types cannot include Document")
		}
		if _, ok := blockableResourceTypes[rt]; !ok {
			return fmt.Errorf("invalid chrome.block.resource_types entry %q", rt)
		}
	}
	return nil
}

func (cfg *Config) validateWatch() error {
	w := cfg.Watch

	durations := []struct {
		name  string
		value types.Duration
	}{
		{"watch.coalesce_delay", w.CoalesceDelay},
		{"watch.retry_interval", w.RetryInterval},
		{"watch.retry_window", w.RetryWindow},
		{"watch.navigation_poll", w.NavigationPoll},
		{"watch.fetch_timeout", w.FetchTimeout},
		{"watch.sink_timeout", w.SinkTimeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive", d.name)
		}
	}

	if w.RetryWindow < w.RetryInterval {
		return fmt.Errorf("watch.retry_window (%s) must be >= watch.retry_interval (%s)", w.RetryWindow, w.RetryInterval)
	}
	if w.FetchMaxBytes < 0 {
		return fmt.Errorf("watch.fetch_max_bytes must be >= 0")
	}

	if w.Dedup != types.DedupShared && w.Dedup != types.DedupSeparate {
		return fmt.Errorf("invalid watch.dedup: %s (must be shared or separate)", w.Dedup)
	}

	for _, name := range w.StateContainers {
		if !jsIdentifierRegex.MatchString(name) {
			return fmt.Errorf("invalid watch.state_containers entry: %q", name)
		}
	}

	if !jsIdentifierRegex.MatchString(w.Publish.GlobalName) {
		return fmt.Errorf("invalid watch.publish.global_name: %q", w.Publish.GlobalName)
	}
	if !attributeNameRegex.MatchString(w.Publish.MarkerAttribute) {
		return fmt.Errorf("invalid watch.publish.marker_attribute: %q", w.Publish.MarkerAttribute)
	}
	if strings.TrimSpace(w.Publish.NavigationEvent) == "" {
		return fmt.Errorf("watch.publish.navigation_event cannot be blank")
	}

	return nil
}

func (cfg *Config) validateRedis() error {
	if !cfg.Redis.Enabled {
		return nil
	}
	if cfg.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	if cfg.Redis.TTL < 0 {
		return fmt.Errorf("redis.ttl must be >= 0")
	}
	switch cfg.Redis.Compression {
	case types.CompressionNone, types.CompressionSnappy, types.CompressionLZ4:
	default:
		return fmt.Errorf("invalid redis.compression: %s (must be none, snappy, or lz4)", cfg.Redis.Compression)
	}
	return nil
}

func (cfg *Config) validateLog() error {
	validLogLevels := map[string]bool{
		configtypes.LogLevelDebug:  true,
		configtypes.LogLevelInfo:   true,
		configtypes.LogLevelWarn:   true,
		configtypes.LogLevelError:  true,
		configtypes.LogLevelDPanic: true,
		configtypes.LogLevelPanic:  true,
		configtypes.LogLevelFatal:  true,
	}
	if !validLogLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log.level: %s (must be debug, info, warn, error, dpanic, panic, or fatal)", cfg.Log.Level)
	}

	if cfg.Log.Console.Enabled &&
		cfg.Log.Console.Format != configtypes.LogFormatJSON &&
		cfg.Log.Console.Format != configtypes.LogFormatConsole {
		return fmt.Errorf("invalid log.console.format: %s (must be json or console)", cfg.Log.Console.Format)
	}

	if cfg.Log.File.Enabled {
		if cfg.Log.File.Path == "" {
			return fmt.Errorf("log.file.path must be specified when file logging is enabled")
		}
		if cfg.Log.File.Format != configtypes.LogFormatJSON && cfg.Log.File.Format != configtypes.LogFormatText {
			return fmt.Errorf("invalid log.file.format: %s (must be json or text)", cfg.Log.File.Format)
		}
		r := cfg.Log.File.Rotation
		if r.MaxSize < 0 || r.MaxAge < 0 || r.MaxBackups < 0 {
			return fmt.Errorf("log.file.rotation values must be >= 0")
		}
	}

	return nil
}

func (cfg *Config) validateMetrics() error {
	if cfg.Metrics.Enabled {
		if cfg.Metrics.Listen == "" {
			return fmt.Errorf("metrics.listen is required when metrics enabled")
		} else if err := configtypes.ValidateListenAddress(cfg.Metrics.Listen); err != nil {
			return fmt.Errorf("invalid metrics.listen: %w", err)
		}
		if configtypes.SamePort(cfg.Metrics.Listen, cfg.Server.Listen) {
			return fmt.Errorf("metrics.listen must use a different port than server.listen")
		}
	}

	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("invalid metrics.path: %s (must start with /)", cfg.Metrics.Path)
	}
	if !namespaceRegex.MatchString(cfg.Metrics.Namespace) {
		return fmt.Errorf("invalid metrics.namespace: %s (must match [a-zA-Z_][a-zA-Z0-9_]*)", cfg.Metrics.Namespace)
	}

	return nil
}

// GetConfigPath resolves the config file path
func GetConfigPath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("config path cannot be empty")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path: %w", err)
	}

	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		return "", fmt.Errorf("config file does not exist: %s", absPath)
	}

	return absPath, nil
}
