package cache

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecRoundTrip(t *testing.T) {
	codec := NewCodec(0)

	t.Run("String", func(t *testing.T) {
		data, err := codec.Encode("hello")
		require.NoError(t, err)
		var out string
		require.NoError(t, codec.Decode(data, &out))
		assert.Equal(t, "hello", out)
	})

	t.Run("Float", func(t *testing.T) {
		data, err := codec.Encode(3.75)
		require.NoError(t, err)
		var out float64
		require.NoError(t, codec.Decode(data, &out))
		assert.Equal(t, 3.75, out)
	})

	t.Run("Nested Containers", func(t *testing.T) {
		value := map[string]any{
			"signs":  []any{"aries", "taurus"},
			"houses": map[string]any{"first": "mars", "second": "venus"},
			"exact":  true,
		}
		data, err := codec.Encode(value)
		require.NoError(t, err)
		var out map[string]any
		require.NoError(t, codec.Decode(data, &out))
		assert.Equal(t, value, out)
	})

	t.Run("Flat Record", func(t *testing.T) {
		type interpretation struct {
			ChartID string  `json:"chart_id"`
			Text    string  `json:"text"`
			Score   float64 `json:"score"`
		}
		value := interpretation{ChartID: "c1", Text: "rising sign analysis", Score: 0.9}
		data, err := codec.Encode(value)
		require.NoError(t, err)
		var out interpretation
		require.NoError(t, codec.Decode(data, &out))
		assert.Equal(t, value, out)
	})

	t.Run("Raw Bytes", func(t *testing.T) {
		value := []byte{0x00, 0x1f, 0x8b, 0xff}
		data, err := codec.Encode(value)
		require.NoError(t, err)
		var out []byte
		require.NoError(t, codec.Decode(data, &out))
		assert.Equal(t, value, out)
	})
}

func TestCodecCompression(t *testing.T) {
	codec := NewCodec(1024)

	t.Run("Large Compressible Value", func(t *testing.T) {
		value := strings.Repeat("ascendant ", 200) // ~2000 bytes, highly compressible
		data, err := codec.Encode(value)
		require.NoError(t, err)
		assert.True(t, isGzip(data), "large compressible payload should be stored compressed")
		assert.Less(t, len(data), len(value))

		var out string
		require.NoError(t, codec.Decode(data, &out))
		assert.Equal(t, value, out)
	})

	t.Run("Small Value Stays Uncompressed", func(t *testing.T) {
		data, err := codec.Encode("tiny")
		require.NoError(t, err)
		assert.False(t, isGzip(data))
	})

	t.Run("Incompressible Value Stays Uncompressed", func(t *testing.T) {
		// Pseudo-random bytes do not shrink under gzip; the codec must keep
		// the plain form rather than store a larger "compressed" payload.
		value := make([]byte, 4096)
		seed := uint32(2463534242)
		for i := range value {
			seed ^= seed << 13
			seed ^= seed >> 17
			seed ^= seed << 5
			value[i] = byte(seed)
		}
		data, err := codec.Encode(value)
		require.NoError(t, err)
		assert.False(t, isGzip(data))

		var out []byte
		require.NoError(t, codec.Decode(data, &out))
		assert.Equal(t, value, out)
	})
}

func TestCodecSerializationError(t *testing.T) {
	codec := NewCodec(0)
	_, err := codec.Encode(make(chan int))
	require.Error(t, err)
	var serr *SerializationError
	assert.ErrorAs(t, err, &serr)
}

func TestCodecDecodeErrors(t *testing.T) {
	codec := NewCodec(0)

	t.Run("Empty Payload", func(t *testing.T) {
		var out string
		assert.Error(t, codec.Decode(nil, &out))
	})

	t.Run("Unknown Tag", func(t *testing.T) {
		var out string
		assert.Error(t, codec.Decode([]byte{0x7f, 'x'}, &out))
	})

	t.Run("Raw Into Wrong Destination", func(t *testing.T) {
		data, err := codec.Encode([]byte("payload"))
		require.NoError(t, err)
		var out int
		assert.Error(t, codec.Decode(data, &out))
	})
}
