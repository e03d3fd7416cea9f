package sink

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/snappy"
	"github.com/pierrec/lz4/v4"

	"github.com/edgecomet/detailwatch/pkg/types"
)

// Compress encodes content with algorithm. Unlike on-disk caches there is no
// size threshold: subscribers decode every message with the configured algorithm.
func Compress(content []byte, algorithm string) ([]byte, error) {
	switch algorithm {
	case "", types.CompressionNone:
		return content, nil

	case types.CompressionSnappy:
		return snappy.Encode(nil, content), nil

	case types.CompressionLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(content); err != nil {
			w.Close()
			return nil, fmt.Errorf("lz4 compression failed: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("lz4 compression close failed: %w", err)
		}
		return buf.Bytes(), nil

	default:
		return nil, fmt.Errorf("unknown compression algorithm %q", algorithm)
	}
}

// Decompress reverses Compress
func Decompress(content []byte, algorithm string) ([]byte, error) {
	switch algorithm {
	case "", types.CompressionNone:
		return content, nil

	case types.CompressionSnappy:
		out, err := snappy.Decode(nil, content)
		if err != nil {
			return nil, fmt.Errorf("snappy decompression failed: %w", err)
		}
		return out, nil

	case types.CompressionLZ4:
		out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(content)))
		if err != nil {
			return nil, fmt.Errorf("lz4 decompression failed: %w", err)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unknown compression algorithm %q", algorithm)
	}
}
