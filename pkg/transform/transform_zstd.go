package transform

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// maxDecodedSize bounds decompression so a hostile peer cannot inflate a
// small frame into an arbitrary allocation.
const maxDecodedSize = 16 << 20

type zstdTransform struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewZstdTransform creates a compression/decompression transform using Zstandard.
// Provide a compression level like zstd.SpeedFastest, zstd.SpeedDefault,
// zstd.SpeedBetterCompression, etc.
func NewZstdTransform(level zstd.EncoderLevel) (Transform, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("zstd: failed to initialize encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1), zstd.WithDecoderMaxMemory(maxDecodedSize))
	if err != nil {
		return nil, fmt.Errorf("zstd: failed to initialize decoder: %w", err)
	}
	return &zstdTransform{encoder: enc, decoder: dec}, nil
}

// Apply compresses the data. EncodeAll is safe for concurrent use.
func (s *zstdTransform) Apply(data []byte) ([]byte, error) {
	return s.encoder.EncodeAll(data, make([]byte, 0, len(data)/2+16)), nil
}

func (s *zstdTransform) Reverse(data []byte) ([]byte, error) {
	out, err := s.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd reverse (decompress): %w", err)
	}
	return out, nil
}
