package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/edgecomet/detailwatch/internal/common/configtypes"
	"github.com/edgecomet/detailwatch/internal/common/logger"
	"github.com/edgecomet/detailwatch/internal/extract"
	"github.com/edgecomet/detailwatch/pkg/types"
)

const (
	DefaultMaxSize    = 100 // MB
	DefaultMaxAge     = 30  // days
	DefaultMaxBackups = 10  // files
)

// Event kinds written by FileSink
const (
	KindResult     = "result"
	KindNavigation = "navigation"
)

// FileRecord is one line of the event file
type FileRecord struct {
	Kind       string                 `json:"kind"`
	LoggedAt   time.Time              `json:"logged_at"`
	Result     *extract.Result        `json:"result,omitempty"`
	Navigation *types.NavigationEvent `json:"navigation,omitempty"`
}

// FileSink appends one JSON line per result and navigation to a rotated file
type FileSink struct {
	mu     sync.Mutex
	writer io.WriteCloser
}

// NewFileSink creates the parent directory and opens the rotated writer lazily
func NewFileSink(cfg configtypes.EventFileConfig) (*FileSink, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create event directory %s: %w", dir, err)
	}

	rotation := cfg.Rotation
	if rotation.MaxSize == 0 {
		rotation.MaxSize = DefaultMaxSize
	}
	if rotation.MaxAge == 0 {
		rotation.MaxAge = DefaultMaxAge
	}
	if rotation.MaxBackups == 0 {
		rotation.MaxBackups = DefaultMaxBackups
	}

	return &FileSink{writer: logger.NewRotatingWriter(cfg.Path, rotation)}, nil
}

func (f *FileSink) Name() string {
	return "file"
}

func (f *FileSink) Publish(_ context.Context, result *extract.Result) error {
	return f.write(FileRecord{Kind: KindResult, LoggedAt: time.Now().UTC(), Result: result})
}

func (f *FileSink) NavigationChanged(_ context.Context, event types.NavigationEvent) error {
	return f.write(FileRecord{Kind: KindNavigation, LoggedAt: time.Now().UTC(), Navigation: &event})
}

func (f *FileSink) write(rec FileRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode %s record: %w", rec.Kind, err)
	}
	line = append(line, '\n')

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.writer.Write(line); err != nil {
		return fmt.Errorf("failed to write %s record: %w", rec.Kind, err)
	}
	return nil
}

func (f *FileSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writer.Close()
}
