package session

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"propdash/internal/domain"
)

// codecVersion prefixes every payload so a future layout change can be
// detected instead of misread.
const codecVersion byte = 1

// Codec serializes whole sessions as zstd-compressed gob.
type Codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewCodec builds a codec. Encoder and decoder are safe for concurrent use
// through EncodeAll/DecodeAll.
func NewCodec() (*Codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &Codec{enc: enc, dec: dec}, nil
}

// Encode returns the compressed representation of s.
func (c *Codec) Encode(s *domain.Session) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, fmt.Errorf("gob encode session: %w", err)
	}
	out := make([]byte, 1, buf.Len()/2+1)
	out[0] = codecVersion
	return c.enc.EncodeAll(buf.Bytes(), out), nil
}

// Decode reverses Encode. Any failure wraps domain.ErrSessionCorrupt.
func (c *Codec) Decode(b []byte) (*domain.Session, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty payload", domain.ErrSessionCorrupt)
	}
	if b[0] != codecVersion {
		return nil, fmt.Errorf("%w: unknown payload version %d", domain.ErrSessionCorrupt, b[0])
	}
	raw, err := c.dec.DecodeAll(b[1:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: decompress: %v", domain.ErrSessionCorrupt, err)
	}
	var s domain.Session
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&s); err != nil {
		return nil, fmt.Errorf("%w: gob decode: %v", domain.ErrSessionCorrupt, err)
	}
	if s.Table == nil {
		return nil, fmt.Errorf("%w: payload has no table", domain.ErrSessionCorrupt)
	}
	return &s, nil
}

// Close releases the encoder and decoder.
func (c *Codec) Close() {
	_ = c.enc.Close()
	c.dec.Close()
}
