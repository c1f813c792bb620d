// internal/safe/compression.go
package safe

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// CompressionOptions configures compression behavior
type CompressionOptions struct {
	// Minimum size in bytes before compressing
	MinSize int
	// Compression level (1=fastest, 4=best)
	Level int
	// Disabled stores every blob raw
	Disabled bool
}

// DefaultCompressionOptions provides sensible defaults
func DefaultCompressionOptions() CompressionOptions {
	return CompressionOptions{
		MinSize: 1024, // 1KB
		Level:   2,    // Balanced speed/compression
	}
}

// compressionManager pools zstd encoders and decoders
type compressionManager struct {
	opts CompressionOptions

	encoders sync.Pool
	decoders sync.Pool
}

func newCompressionManager(opts CompressionOptions) (*compressionManager, error) {
	// Fail early on a bad level rather than inside the pool
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(opts.Level)),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("creating test encoder: %w", err)
	}
	enc.Close()

	return &compressionManager{
		opts: opts,
		encoders: sync.Pool{
			New: func() interface{} {
				enc, _ := zstd.NewWriter(nil,
					zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(opts.Level)),
					zstd.WithEncoderConcurrency(1),
				)
				return enc
			},
		},
		decoders: sync.Pool{
			New: func() interface{} {
				dec, _ := zstd.NewReader(nil,
					zstd.WithDecoderConcurrency(1),
				)
				return dec
			},
		},
	}, nil
}

func (cm *compressionManager) shouldCompress(size int) bool {
	return !cm.opts.Disabled && size >= cm.opts.MinSize
}

// compress returns the stored form of content and whether it was compressed.
// Compression that does not shrink the blob is discarded.
func (cm *compressionManager) compress(content []byte) ([]byte, bool) {
	if !cm.shouldCompress(len(content)) {
		return content, false
	}

	enc := cm.encoders.Get().(*zstd.Encoder)
	defer cm.encoders.Put(enc)

	out := enc.EncodeAll(content, make([]byte, 0, len(content)/2))
	if len(out) >= len(content) {
		return content, false
	}
	return out, true
}

func (cm *compressionManager) decompress(content []byte) ([]byte, error) {
	if len(content) < 4 || !bytes.Equal(content[:4], zstdMagic) {
		return nil, fmt.Errorf("blob is not zstd compressed")
	}

	dec := cm.decoders.Get().(*zstd.Decoder)
	defer cm.decoders.Put(dec)

	return dec.DecodeAll(content, nil)
}
