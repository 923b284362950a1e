package cache

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/pierrec/lz4/v4"
)

// Entry encodings written by CompressedStore.
const (
	encodingRaw byte = 0
	encodingLZ4 byte = 1

	// lz4HeaderSize is the encoding byte plus the uncompressed length.
	lz4HeaderSize = 1 + 4
)

// ErrCorruptEntry is returned for cached values that cannot be decoded.
var ErrCorruptEntry = errors.New("corrupt cache entry")

// CompressedStore LZ4-compresses values on their way into another Store.
// Values that do not compress are stored as they are.
type CompressedStore struct {
	inner Store
}

// NewCompressedStore wraps inner.
func NewCompressedStore(inner Store) *CompressedStore {
	return &CompressedStore{inner: inner}
}

// Get decodes the value stored under key. A value that does not decode,
// such as one written before compression was enabled, is reported as a
// miss so the caller fetches and overwrites it.
func (s *CompressedStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	value, err := decodeEntry(data)
	if err != nil {
		CacheErrors.WithLabelValues("decode").Inc()
		return nil, fmt.Errorf("%w: %w", ErrCacheMiss, err)
	}
	return value, nil
}

// Set compresses value and stores it under key.
func (s *CompressedStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.inner.Set(ctx, key, encodeEntry(value), ttl)
}

func encodeEntry(value []byte) []byte {
	buf := make([]byte, lz4HeaderSize+lz4.CompressBlockBound(len(value)))

	written, err := lz4.CompressBlock(value, buf[lz4HeaderSize:], nil)
	if err != nil || written == 0 || written >= len(value) {
		raw := make([]byte, 1+len(value))
		raw[0] = encodingRaw
		copy(raw[1:], value)
		return raw
	}

	buf[0] = encodingLZ4
	binary.LittleEndian.PutUint32(buf[1:lz4HeaderSize], uint32(len(value)))
	return buf[:lz4HeaderSize+written]
}

func decodeEntry(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty value", ErrCorruptEntry)
	}

	switch data[0] {
	case encodingRaw:
		return data[1:], nil
	case encodingLZ4:
		if len(data) < lz4HeaderSize {
			return nil, fmt.Errorf("%w: truncated header", ErrCorruptEntry)
		}
		size := binary.LittleEndian.Uint32(data[1:lz4HeaderSize])
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(data[lz4HeaderSize:], out)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
		}
		if n != int(size) {
			return nil, fmt.Errorf("%w: decoded %d of %d bytes", ErrCorruptEntry, n, size)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown encoding %d", ErrCorruptEntry, data[0])
	}
}
