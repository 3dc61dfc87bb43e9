package compression

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"encoding/json"
	"fmt"
	"io"
)

// Compressor defines the interface for packed value compression
type Compressor interface {
	// Compress compresses the given data and returns compressed bytes
	Compress(data []byte) ([]byte, error)

	// Decompress decompresses the given compressed bytes
	Decompress(compressed []byte) ([]byte, error)

	// Name returns the name/identifier of the compressor
	Name() string
}

// CompressorType represents different compression algorithms
type CompressorType string

const (
	CompressorNone    CompressorType = "none"
	CompressorGzip    CompressorType = "gzip"
	CompressorDeflate CompressorType = "deflate"
)

// Config holds packing configuration
type Config struct {
	// Enabled determines whether committed values are packed at all
	Enabled bool

	// Algorithm specifies which compression algorithm to use
	Algorithm CompressorType

	// MinSize is the minimum serialized size in bytes before compression is applied.
	// Smaller values are stored serialized but uncompressed.
	MinSize int

	// Level is the compression level (1-9 for gzip/deflate, -1 for default)
	Level int
}

// NewDefaultConfig creates a default compression configuration
func NewDefaultConfig() *Config {
	return &Config{
		Enabled:   false,
		Algorithm: CompressorGzip,
		MinSize:   1024,
		Level:     -1,
	}
}

// WithEnabled sets whether packing is enabled
func (c *Config) WithEnabled(enabled bool) *Config {
	c.Enabled = enabled
	return c
}

// WithAlgorithm sets the compression algorithm
func (c *Config) WithAlgorithm(algorithm CompressorType) *Config {
	c.Algorithm = algorithm
	return c
}

// WithMinSize sets the minimum size threshold for compression
func (c *Config) WithMinSize(minSize int) *Config {
	c.MinSize = minSize
	return c
}

// WithLevel sets the compression level
func (c *Config) WithLevel(level int) *Config {
	c.Level = level
	return c
}

// NewCompressor creates a compressor for the configured algorithm
func NewCompressor(config *Config) (Compressor, error) {
	if config == nil || !config.Enabled {
		return noOpCompressor{}, nil
	}

	switch config.Algorithm {
	case CompressorNone, "":
		return noOpCompressor{}, nil
	case CompressorGzip:
		return &streamCompressor{
			name:  string(CompressorGzip),
			level: config.Level,
			writer: func(w io.Writer, level int) (io.WriteCloser, error) {
				return gzip.NewWriterLevel(w, level)
			},
			reader: func(r io.Reader) (io.ReadCloser, error) {
				return gzip.NewReader(r)
			},
		}, nil
	case CompressorDeflate:
		return &streamCompressor{
			name:  string(CompressorDeflate),
			level: config.Level,
			writer: func(w io.Writer, level int) (io.WriteCloser, error) {
				return zlib.NewWriterLevel(w, level)
			},
			reader: zlib.NewReader,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", config.Algorithm)
	}
}

type noOpCompressor struct{}

func (noOpCompressor) Compress(data []byte) ([]byte, error) { return data, nil }

func (noOpCompressor) Decompress(compressed []byte) ([]byte, error) { return compressed, nil }

func (noOpCompressor) Name() string { return string(CompressorNone) }

// streamCompressor adapts any stdlib compress/* writer/reader pair
type streamCompressor struct {
	name   string
	level  int
	writer func(io.Writer, int) (io.WriteCloser, error)
	reader func(io.Reader) (io.ReadCloser, error)
}

// Compress compresses data in one pass
func (s *streamCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	w, err := s.writer(&buf, s.level)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s writer: %w", s.name, err)
	}

	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to write %s data: %w", s.name, err)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close %s writer: %w", s.name, err)
	}

	return buf.Bytes(), nil
}

// Decompress reverses Compress
func (s *streamCompressor) Decompress(compressed []byte) ([]byte, error) {
	r, err := s.reader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s reader: %w", s.name, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s data: %w", s.name, err)
	}

	return data, nil
}

// Name returns the compressor name
func (s *streamCompressor) Name() string {
	return s.name
}

// Packed is a serialized, possibly compressed value. Its Data is never
// modified after Pack returns, so a Packed may be shared freely.
type Packed struct {
	Data         []byte
	Compressed   bool
	OriginalSize int
}

// Ratio returns original/packed size, or 1 when the value was not compressed
func (p Packed) Ratio() float64 {
	if !p.Compressed || len(p.Data) == 0 {
		return 1.0
	}
	return float64(p.OriginalSize) / float64(len(p.Data))
}

// Pack serializes value with JSON and compresses it when the serialized form
// is at least minSize bytes and compression actually shrinks it.
func Pack(value any, compressor Compressor, minSize int) (Packed, error) {
	serialized, err := json.Marshal(value)
	if err != nil {
		return Packed{}, fmt.Errorf("failed to serialize value: %w", err)
	}

	p := Packed{Data: serialized, OriginalSize: len(serialized)}
	if len(serialized) < minSize {
		return p, nil
	}

	compressed, err := compressor.Compress(serialized)
	if err != nil {
		return Packed{}, fmt.Errorf("failed to compress data: %w", err)
	}

	if len(compressed) >= len(serialized) {
		return p, nil
	}

	p.Data = compressed
	p.Compressed = true
	return p, nil
}

// Unpack decodes a Packed produced by Pack into a fresh V
func Unpack[V any](p Packed, compressor Compressor) (V, error) {
	var value V

	serialized := p.Data
	if p.Compressed {
		var err error
		serialized, err = compressor.Decompress(p.Data)
		if err != nil {
			return value, fmt.Errorf("failed to decompress data: %w", err)
		}
	}

	if err := json.Unmarshal(serialized, &value); err != nil {
		return value, fmt.Errorf("failed to deserialize value: %w", err)
	}

	return value, nil
}

var (
	_ Compressor = noOpCompressor{}
	_ Compressor = (*streamCompressor)(nil)
)
