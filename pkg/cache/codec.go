package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// DefaultCompressionThreshold is the encoded size above which values are
// considered for compression.
const DefaultCompressionThreshold = 1024

// Encoding tags prefix every stored payload so decode never has to guess.
const (
	encodingRaw  byte = 0x01
	encodingJSON byte = 0x02
)

// maxDecompressedSize bounds decompression output as protection against
// corrupt or hostile payloads.
const maxDecompressedSize = 256 << 20

// valueCodec is one entry in the ordered encoding chain. Encode returns
// applied=false when the codec does not handle the value, letting the next
// codec try.
type valueCodec interface {
	tag() byte
	encode(v any) ([]byte, bool, error)
	decode(data []byte, dest any) error
}

// rawCodec passes []byte values through untouched.
type rawCodec struct{}

func (rawCodec) tag() byte { return encodingRaw }

func (rawCodec) encode(v any) ([]byte, bool, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, false, nil
	}
	return b, true, nil
}

func (rawCodec) decode(data []byte, dest any) error {
	switch d := dest.(type) {
	case *[]byte:
		*d = append([]byte(nil), data...)
		return nil
	case *string:
		*d = string(data)
		return nil
	default:
		return fmt.Errorf("raw payload needs *[]byte or *string destination, got %T", dest)
	}
}

// jsonCodec handles every remaining value shape.
type jsonCodec struct{}

func (jsonCodec) tag() byte { return encodingJSON }

func (jsonCodec) encode(v any) ([]byte, bool, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, true, &SerializationError{Cause: err}
	}
	return data, true, nil
}

func (jsonCodec) decode(data []byte, dest any) error {
	return json.Unmarshal(data, dest)
}

// Codec serializes values for storage. Encoding is an ordered chain of
// codecs, each output prefixed with its tag byte; payloads above the
// threshold are gzipped when that strictly shrinks them. The gzip magic
// bytes distinguish compressed payloads.
type Codec struct {
	chain     []valueCodec
	threshold int
}

// NewCodec creates a codec with the given compression threshold; values of
// threshold <= 0 select the default.
func NewCodec(threshold int) *Codec {
	if threshold <= 0 {
		threshold = DefaultCompressionThreshold
	}
	return &Codec{
		chain:     []valueCodec{rawCodec{}, jsonCodec{}},
		threshold: threshold,
	}
}

// Encode serializes v. The error is a *SerializationError when v has no
// encodable representation.
func (c *Codec) Encode(v any) ([]byte, error) {
	for _, codec := range c.chain {
		payload, applied, err := codec.encode(v)
		if !applied {
			continue
		}
		if err != nil {
			return nil, err
		}
		tagged := make([]byte, 0, len(payload)+1)
		tagged = append(tagged, codec.tag())
		tagged = append(tagged, payload...)
		if len(tagged) > c.threshold {
			if compressed, ok := compress(tagged); ok {
				return compressed, nil
			}
		}
		return tagged, nil
	}
	return nil, &SerializationError{Cause: fmt.Errorf("no codec for %T", v)}
}

// Decode reverses Encode into dest, which must be a pointer.
func (c *Codec) Decode(data []byte, dest any) error {
	if isGzip(data) {
		var err error
		data, err = decompress(data)
		if err != nil {
			return fmt.Errorf("decompress: %w", err)
		}
	}
	if len(data) == 0 {
		return fmt.Errorf("empty payload")
	}
	for _, codec := range c.chain {
		if codec.tag() == data[0] {
			return codec.decode(data[1:], dest)
		}
	}
	return fmt.Errorf("unknown encoding tag 0x%02x", data[0])
}

// compress gzips data, reporting false when compression does not strictly
// reduce the size.
func compress(data []byte) ([]byte, bool) {
	var buf bytes.Buffer
	gz, err := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
	if err != nil {
		return nil, false
	}
	if _, err := gz.Write(data); err != nil {
		_ = gz.Close()
		return nil, false
	}
	if err := gz.Close(); err != nil {
		return nil, false
	}
	if buf.Len() >= len(data) {
		return nil, false
	}
	return buf.Bytes(), true
}

func decompress(data []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer func() { _ = gz.Close() }()
	return io.ReadAll(io.LimitReader(gz, maxDecompressedSize))
}

func isGzip(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}
