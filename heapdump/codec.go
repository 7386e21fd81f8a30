package heapdump

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/vmheap/internal/conv"
)

// Compression selects the payload codec.
type Compression uint8

const (
	// CompressionNone stores the body as is.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 block compression (fast).
	CompressionLZ4 Compression = 1
	// CompressionZSTD uses ZSTD (better ratio).
	CompressionZSTD Compression = 2
)

// String returns the codec name.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ParseCompression parses a codec name as printed by String.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "none", "":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	default:
		return 0, fmt.Errorf("heapdump: unknown compression %q", s)
	}
}

const (
	// Version is the current format version.
	Version = 1

	headerSize = 4 + 2 + 1 + 1 + 4 + 4 + 4
	bodyFixed  = 8 + 8 + 4 + 4 + 4 + 4
	spanSize   = 4 + 4 + 4 + 4 + 1

	// maxBody bounds the raw length accepted from a header: one span per
	// encodable link.
	maxBody = bodyFixed + spanSize*(1<<25)
)

var magic = [4]byte{'V', 'M', 'H', 'D'}

// ErrCorrupt is returned when a dump cannot be decoded.
var ErrCorrupt = errors.New("heapdump: corrupt dump")

// ZSTD encoder/decoder pools for efficiency
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Marshal encodes the snapshot.
func Marshal(s *Snapshot, c Compression) ([]byte, error) {
	raw, err := encodeBody(s)
	if err != nil {
		return nil, err
	}

	payload, used, err := compress(raw, c)
	if err != nil {
		return nil, err
	}

	rawLen, err := conv.IntToUint32(len(raw))
	if err != nil {
		return nil, err
	}
	payloadLen, err := conv.IntToUint32(len(payload))
	if err != nil {
		return nil, err
	}

	out := make([]byte, headerSize, headerSize+len(payload))
	copy(out[0:4], magic[:])
	binary.LittleEndian.PutUint16(out[4:6], Version)
	out[6] = byte(used)
	binary.LittleEndian.PutUint32(out[8:12], rawLen)
	binary.LittleEndian.PutUint32(out[12:16], payloadLen)
	binary.LittleEndian.PutUint32(out[16:20], crc32.ChecksumIEEE(raw))
	return append(out, payload...), nil
}

// Encode writes the encoded snapshot to w.
func Encode(w io.Writer, s *Snapshot, c Compression) error {
	data, err := Marshal(s, c)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Header is the fixed-size prefix of a dump.
type Header struct {
	Version     uint16
	Compression Compression
	RawLen      uint32
	PayloadLen  uint32
	Checksum    uint32
}

// ReadHeader parses and validates the header of a dump.
func ReadHeader(data []byte) (Header, error) {
	if len(data) < headerSize {
		return Header{}, fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorrupt, len(data))
	}
	if !bytes.Equal(data[0:4], magic[:]) {
		return Header{}, fmt.Errorf("%w: bad magic %q", ErrCorrupt, data[0:4])
	}

	h := Header{
		Version:     binary.LittleEndian.Uint16(data[4:6]),
		Compression: Compression(data[6]),
		RawLen:      binary.LittleEndian.Uint32(data[8:12]),
		PayloadLen:  binary.LittleEndian.Uint32(data[12:16]),
		Checksum:    binary.LittleEndian.Uint32(data[16:20]),
	}
	if h.Version != Version {
		return Header{}, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, h.Version)
	}
	if h.RawLen > maxBody {
		return Header{}, fmt.Errorf("%w: raw length %d too large", ErrCorrupt, h.RawLen)
	}
	if uint64(len(data)-headerSize) < uint64(h.PayloadLen) {
		return Header{}, fmt.Errorf("%w: payload truncated", ErrCorrupt)
	}
	return h, nil
}

// Unmarshal decodes a dump.
func Unmarshal(data []byte) (*Snapshot, error) {
	h, err := ReadHeader(data)
	if err != nil {
		return nil, err
	}

	raw, err := decompress(data[headerSize:headerSize+int(h.PayloadLen)], h.RawLen, h.Compression)
	if err != nil {
		return nil, err
	}
	if crc32.ChecksumIEEE(raw) != h.Checksum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	return decodeBody(raw)
}

// Decode reads a whole dump from r.
func Decode(r io.Reader) (*Snapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}

func encodeBody(s *Snapshot) ([]byte, error) {
	count, err := conv.IntToUint32(len(s.Spans))
	if err != nil {
		return nil, err
	}

	buf := make([]byte, bodyFixed+len(s.Spans)*spanSize)
	binary.LittleEndian.PutUint64(buf[0:], s.ArenaBase)
	binary.LittleEndian.PutUint64(buf[8:], s.ArenaSize)
	binary.LittleEndian.PutUint32(buf[16:], s.UnitSize)
	binary.LittleEndian.PutUint32(buf[20:], s.Capacity)
	binary.LittleEndian.PutUint32(buf[24:], s.MaxSpanUnits)
	binary.LittleEndian.PutUint32(buf[28:], count)

	p := buf[bodyFixed:]
	for _, sp := range s.Spans {
		binary.LittleEndian.PutUint32(p[0:], sp.Index)
		binary.LittleEndian.PutUint32(p[4:], sp.Offset)
		binary.LittleEndian.PutUint32(p[8:], sp.Size)
		binary.LittleEndian.PutUint32(p[12:], sp.Next)
		if sp.Free {
			p[16] = 1
		}
		p = p[spanSize:]
	}
	return buf, nil
}

func decodeBody(raw []byte) (*Snapshot, error) {
	if len(raw) < bodyFixed {
		return nil, fmt.Errorf("%w: body too small", ErrCorrupt)
	}

	s := &Snapshot{
		ArenaBase:    binary.LittleEndian.Uint64(raw[0:]),
		ArenaSize:    binary.LittleEndian.Uint64(raw[8:]),
		UnitSize:     binary.LittleEndian.Uint32(raw[16:]),
		Capacity:     binary.LittleEndian.Uint32(raw[20:]),
		MaxSpanUnits: binary.LittleEndian.Uint32(raw[24:]),
	}
	count := uint64(binary.LittleEndian.Uint32(raw[28:]))

	p := raw[bodyFixed:]
	if uint64(len(p)) != count*spanSize {
		return nil, fmt.Errorf("%w: %d span bytes for %d spans", ErrCorrupt, len(p), count)
	}

	s.Spans = make([]Span, 0, count)
	for ; len(p) > 0; p = p[spanSize:] {
		s.Spans = append(s.Spans, Span{
			Index:  binary.LittleEndian.Uint32(p[0:]),
			Offset: binary.LittleEndian.Uint32(p[4:]),
			Size:   binary.LittleEndian.Uint32(p[8:]),
			Next:   binary.LittleEndian.Uint32(p[12:]),
			Free:   p[16] != 0,
		})
	}
	return s, nil
}

// compress returns the payload and the codec actually used.
func compress(raw []byte, c Compression) ([]byte, Compression, error) {
	var (
		out []byte
		err error
	)

	switch c {
	case CompressionNone:
		return raw, CompressionNone, nil
	case CompressionLZ4:
		out = make([]byte, lz4.CompressBlockBound(len(raw)))
		var n int
		n, err = lz4.CompressBlock(raw, out, nil)
		out = out[:n]
	case CompressionZSTD:
		enc := getZstdEncoder()
		out = enc.EncodeAll(raw, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, 0, fmt.Errorf("heapdump: unknown compression %d", c)
	}
	if err != nil {
		return nil, 0, err
	}

	// Incompressible bodies are stored as is
	if len(out) == 0 || len(out) >= len(raw) {
		return raw, CompressionNone, nil
	}
	return out, c, nil
}

func decompress(payload []byte, rawLen uint32, c Compression) ([]byte, error) {
	switch c {
	case CompressionNone:
		if uint64(len(payload)) != uint64(rawLen) {
			return nil, fmt.Errorf("%w: raw length mismatch", ErrCorrupt)
		}
		return payload, nil

	case CompressionLZ4:
		out := make([]byte, rawLen)
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if uint32(n) != rawLen { //nolint:gosec // n <= len(out)
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
		return out, nil

	case CompressionZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)

		out, err := dec.DecodeAll(payload, make([]byte, 0, rawLen))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if uint64(len(out)) != uint64(rawLen) {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("%w: unknown compression %d", ErrCorrupt, c)
	}
}
