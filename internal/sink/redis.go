package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/edgecomet/detailwatch/internal/common/configtypes"
	"github.com/edgecomet/detailwatch/internal/common/redis"
	"github.com/edgecomet/detailwatch/internal/extract"
	"github.com/edgecomet/detailwatch/pkg/types"
)

// RedisSink stores the latest result under <prefix>latest and broadcasts
// results and navigations on <prefix>results and <prefix>navigation.
type RedisSink struct {
	client *redis.Client
	cfg    configtypes.RedisConfig
	logger *zap.Logger
}

func NewRedisSink(client *redis.Client, cfg configtypes.RedisConfig, logger *zap.Logger) *RedisSink {
	return &RedisSink{client: client, cfg: cfg, logger: logger}
}

func (s *RedisSink) Name() string {
	return "redis"
}

func (s *RedisSink) Publish(ctx context.Context, result *extract.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	data, err = Compress(data, s.cfg.Compression)
	if err != nil {
		return err
	}

	keys := s.client.Keys()
	if err := s.client.Set(ctx, keys.Latest(), data, s.cfg.TTL.ToDuration()); err != nil {
		return err
	}

	receivers, err := s.client.Publish(ctx, keys.Results(), data)
	if err != nil {
		return err
	}

	s.logger.Debug("Published result to Redis",
		zap.String("fingerprint", result.Fingerprint),
		zap.Int("bytes", len(data)),
		zap.Int64("receivers", receivers))
	return nil
}

// Stored reads back the latest result written by any run. A missing key
// returns nil with no error.
func (s *RedisSink) Stored(ctx context.Context) (*extract.Result, error) {
	data, err := s.client.Get(ctx, s.client.Keys().Latest())
	if err != nil || data == nil {
		return nil, err
	}
	data, err = Decompress(data, s.cfg.Compression)
	if err != nil {
		return nil, err
	}
	var result extract.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode stored result: %w", err)
	}
	return &result, nil
}

// NavigationChanged broadcasts the event uncompressed; it is small and has no stored copy
func (s *RedisSink) NavigationChanged(ctx context.Context, event types.NavigationEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode navigation: %w", err)
	}
	_, err = s.client.Publish(ctx, s.client.Keys().Navigation(), data)
	return err
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
