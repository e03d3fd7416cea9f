package logger

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/edgecomet/detailwatch/internal/common/configtypes"
)

// DynamicLogger is a zap.Logger whose per-output levels can be changed at runtime.
// The daemon starts at INFO so the startup banner is always visible, then drops to
// the configured level once the watcher is running.
type DynamicLogger struct {
	*zap.Logger
	levels     map[string]*zap.AtomicLevel
	configured configtypes.LogConfig
}

const (
	outputConsole = "console"
	outputFile    = "file"
)

// NewLogger builds a logger with one core per enabled output
func NewLogger(config configtypes.LogConfig) (*DynamicLogger, error) {
	global := parseLogLevel(config.Level)
	levels := make(map[string]*zap.AtomicLevel, 2)
	var cores []zapcore.Core

	if config.Console.Enabled {
		level := zap.NewAtomicLevelAt(resolveLogLevel(config.Console.Level, global))
		levels[outputConsole] = &level
		cores = append(cores, zapcore.NewCore(createEncoder(config.Console.Format), zapcore.Lock(os.Stdout), level))
	}

	if config.File.Enabled {
		if config.File.Path == "" {
			return nil, fmt.Errorf("file.path must be specified when file logging is enabled")
		}
		level := zap.NewAtomicLevelAt(resolveLogLevel(config.File.Level, global))
		levels[outputFile] = &level
		writer := zapcore.AddSync(NewRotatingWriter(config.File.Path, config.File.Rotation))
		cores = append(cores, zapcore.NewCore(createEncoder(config.File.Format), writer, level))
	}

	if len(cores) == 0 {
		return nil, fmt.Errorf("at least one log output (console or file) must be enabled")
	}

	return &DynamicLogger{
		Logger:     zap.New(zapcore.NewTee(cores...)),
		levels:     levels,
		configured: config,
	}, nil
}

// NewLoggerWithStartupOverride starts at INFO when the configured level is quieter.
// Call SwitchToConfiguredLevel once startup is complete.
func NewLoggerWithStartupOverride(config configtypes.LogConfig) (*DynamicLogger, error) {
	if parseLogLevel(config.Level) <= zap.InfoLevel {
		return NewLogger(config)
	}

	startup := config
	startup.Level = configtypes.LogLevelInfo
	if startup.Console.Level == "" {
		startup.Console.Level = configtypes.LogLevelInfo
	}
	if startup.File.Level == "" {
		startup.File.Level = configtypes.LogLevelInfo
	}

	dl, err := NewLogger(startup)
	if err != nil {
		return nil, err
	}
	dl.configured = config
	return dl, nil
}

// NewDefaultLogger is the bootstrap logger used before the config file is read
func NewDefaultLogger() (*DynamicLogger, error) {
	return NewLogger(configtypes.LogConfig{
		Level: configtypes.LogLevelDebug,
		Console: configtypes.ConsoleLogConfig{
			Enabled: true,
			Format:  configtypes.LogFormatConsole,
		},
	})
}

// SwitchToConfiguredLevel applies the levels from the config file
func (dl *DynamicLogger) SwitchToConfiguredLevel() {
	global := parseLogLevel(dl.configured.Level)
	dl.Info("Switching logger to configured level", zap.String("level", dl.configured.Level))

	if level, ok := dl.levels[outputConsole]; ok {
		level.SetLevel(resolveLogLevel(dl.configured.Console.Level, global))
	}
	if level, ok := dl.levels[outputFile]; ok {
		level.SetLevel(resolveLogLevel(dl.configured.File.Level, global))
	}
}

// EnsureInfoLevelForShutdown lowers every output to INFO so the shutdown sequence is logged
func (dl *DynamicLogger) EnsureInfoLevelForShutdown() {
	changed := false
	for _, level := range dl.levels {
		if level.Level() > zap.InfoLevel {
			level.SetLevel(zap.InfoLevel)
			changed = true
		}
	}
	if changed {
		dl.Info("Switched to INFO level for shutdown visibility")
	}
}

// Level reports the current level of an output ("console" or "file")
func (dl *DynamicLogger) Level(output string) (zapcore.Level, bool) {
	level, ok := dl.levels[output]
	if !ok {
		return zapcore.InvalidLevel, false
	}
	return level.Level(), true
}

// NewRotatingWriter returns a size-rotated file writer.
// Shared by the file log output and the result event log.
func NewRotatingWriter(path string, rotation configtypes.RotationConfig) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    rotation.MaxSize,
		MaxAge:     rotation.MaxAge,
		MaxBackups: rotation.MaxBackups,
		Compress:   rotation.Compress,
	}
}

func parseLogLevel(level string) zapcore.Level {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return zap.InfoLevel
	}
	return parsed
}

func resolveLogLevel(outputLevel string, global zapcore.Level) zapcore.Level {
	if outputLevel != "" {
		return parseLogLevel(outputLevel)
	}
	return global
}

func createEncoder(format string) zapcore.Encoder {
	if format == configtypes.LogFormatJSON {
		return zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	if format == configtypes.LogFormatText {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return zapcore.NewConsoleEncoder(encoderConfig)
}
