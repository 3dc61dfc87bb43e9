package slotcache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vnykmshr/slotcache-go/pkg/compression"
)

// repeat is compute(n) = n copies of n
func repeat(_ context.Context, n int64) ([]int64, error) {
	out := make([]int64, n)
	for i := range out {
		out[i] = n
	}
	return out, nil
}

func TestPackedValuesRoundTrip(t *testing.T) {
	for _, algorithm := range []compression.CompressorType{compression.CompressorGzip, compression.CompressorDeflate} {
		t.Run(string(algorithm), func(t *testing.T) {
			config := NewDefaultConfig().
				WithCompressionEnabled(true).
				WithCompressionAlgorithm(algorithm).
				WithCompressionMinSize(64)

			s, err := NewWithConfig(config, repeat)
			require.NoError(t, err)
			defer s.Close()

			computed, err := s.Serve(context.Background(), 500)
			require.NoError(t, err)
			require.Len(t, computed, 500)

			_, _, ok := s.Peek()
			require.True(t, ok)

			e, ok := s.slot.Peek()
			require.True(t, ok)
			require.NotNil(t, e.Value.packed)
			assert.True(t, e.Value.packed.Compressed)
			assert.Greater(t, e.Value.packed.Ratio(), 1.0)

			cached, err := s.Serve(context.Background(), 500)
			require.NoError(t, err)
			assert.Equal(t, computed, cached)
			assert.Equal(t, uint64(1), s.Stats().Hits())
		})
	}
}

func TestPackedHitsDecodeFreshCopies(t *testing.T) {
	config := NewDefaultConfig().WithCompressionEnabled(true).WithCompressionMinSize(0)
	// No clone function: packing alone keeps the slot private
	s, err := NewWithConfig(config, square)
	require.NoError(t, err)
	defer s.Close()

	computed, err := s.Serve(context.Background(), 3)
	require.NoError(t, err)
	computed[0] = 99

	first, err := s.Serve(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 9}, first)
	first[1] = 99

	second, err := s.Serve(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 9}, second)
}

func TestSmallValuesStayUncompressed(t *testing.T) {
	config := NewDefaultConfig().WithCompressionEnabled(true)
	s, err := NewWithConfig(config, square)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Serve(context.Background(), 2)
	require.NoError(t, err)

	e, ok := s.slot.Peek()
	require.True(t, ok)
	require.NotNil(t, e.Value.packed)
	assert.False(t, e.Value.packed.Compressed)
}

func TestUnknownCompressionAlgorithm(t *testing.T) {
	config := NewDefaultConfig().
		WithCompressionEnabled(true).
		WithCompressionAlgorithm(compression.CompressorType("lz77"))

	_, err := NewWithConfig(config, square)
	assert.Error(t, err)
}

func TestPackFailureSkipsCommit(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	config := NewDefaultConfig().
		WithLogger(zap.New(core)).
		WithCompressionEnabled(true).
		WithCompressionMinSize(0)

	unserializable := func(_ context.Context, n int) (func() int, error) {
		return func() int { return n }, nil
	}
	s, err := NewWithConfig(config, unserializable)
	require.NoError(t, err)
	defer s.Close()

	fn, err := s.Serve(context.Background(), 5)
	require.NoError(t, err, "the computed value is still returned")
	assert.Equal(t, 5, fn())

	_, _, ok := s.Peek()
	assert.False(t, ok)

	warnings := logs.FilterMessage("Failed to pack value, skipping commit")
	require.Equal(t, 1, warnings.Len())
	assert.Equal(t, zapcore.WarnLevel, warnings.All()[0].Level)

	_, err = s.Serve(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), s.Stats().Misses())
}

func TestCorruptPackedValue(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	config := NewDefaultConfig().
		WithLogger(zap.New(core)).
		WithCompressionEnabled(true)

	s, err := NewWithConfig(config, square)
	require.NoError(t, err)
	defer s.Close()

	s.slot.Commit(7, stored[[]int64]{packed: &compression.Packed{Data: []byte("{not json")}})

	_, err = s.Serve(context.Background(), 7)
	assert.ErrorIs(t, err, ErrStateCorruption)
	assert.Equal(t, uint64(1), s.Stats().Failures())
	assert.Equal(t, 1, logs.FilterMessage("Cached value cannot be decoded").FilterField(zap.Int64("key", 7)).Len())

	_, _, ok := s.Peek()
	assert.False(t, ok)

	// A fresh commit for another key recovers the slot
	got, err := s.Serve(context.Background(), 8)
	require.NoError(t, err)
	assert.Equal(t, []int64{8, 64}, got)
}

type reading struct {
	Public  int
	private int
}

func TestLossyPackedValuesAreNotCommitted(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	config := NewDefaultConfig().
		WithLogger(zap.New(core)).
		WithCompressionEnabled(true).
		WithCompressionMinSize(0)

	s, err := NewWithConfig(config, func(_ context.Context, n int) (reading, error) {
		return reading{Public: n, private: n}, nil
	})
	require.NoError(t, err)
	defer s.Close()

	for i := 0; i < 2; i++ {
		got, err := s.Serve(context.Background(), 7)
		require.NoError(t, err)
		assert.Equal(t, reading{Public: 7, private: 7}, got)
	}

	_, _, ok := s.Peek()
	assert.False(t, ok)
	assert.Equal(t, uint64(2), s.Stats().Misses())
	assert.Zero(t, s.Stats().Hits())

	warnings := logs.FilterMessage("Failed to pack value, skipping commit")
	require.Equal(t, 2, warnings.Len())
	assert.Equal(t, ErrLossyPacking.Error(), warnings.All()[0].ContextMap()["error"])
}

func TestPackedInterfaceValuesKeepTheirType(t *testing.T) {
	config := NewDefaultConfig().WithCompressionEnabled(true).WithCompressionMinSize(0)

	s, err := NewWithConfig(config, func(_ context.Context, n int) (any, error) {
		if n < 0 {
			return "negative", nil
		}
		return n * 6, nil
	})
	require.NoError(t, err)
	defer s.Close()

	// An int inside an interface decodes as float64, so it is never cached
	for i := 0; i < 2; i++ {
		got, err := s.Serve(context.Background(), 7)
		require.NoError(t, err)
		assert.Equal(t, 42, got)
	}
	assert.Zero(t, s.Stats().Hits())

	// A string survives the round trip and is cached as usual
	for i := 0; i < 2; i++ {
		got, err := s.Serve(context.Background(), -1)
		require.NoError(t, err)
		assert.Equal(t, "negative", got)
	}
	assert.Equal(t, uint64(1), s.Stats().Hits())
}
