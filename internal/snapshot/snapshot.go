// Package snapshot stores developed film buffers as compressed files.
//
// A snapshot is a fixed little-endian header followed by a zstd frame that
// holds the float64 pixel values with their bytes split into eight planes.
// Neighboring pixels of a rendered image share sign, exponent and leading
// mantissa bytes, so the planar layout compresses far better than the raw
// buffer.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// magic identifies a snapshot file.
var magic = [4]byte{'M', 'T', 'S', 'S'}

// Version is the current format version.
const Version = 1

const headerSize = 4 + 1 + 3*4

// maxValues bounds the decoded buffer so that a corrupt header cannot
// trigger an unbounded allocation.
const maxValues = 1 << 30

var (
	// ErrFormat is returned when the input is not a snapshot.
	ErrFormat = errors.New("snapshot: invalid format")

	// ErrVersion is returned for snapshots written by a newer version.
	ErrVersion = errors.New("snapshot: unsupported version")

	// ErrSize is returned when the data length does not match the header.
	ErrSize = errors.New("snapshot: size mismatch")
)

// Snapshot is a channel-interleaved image of float64 values.
type Snapshot struct {
	Width    int
	Height   int
	Channels int
	Data     []float64
}

// values returns the number of values the dimensions describe. ok is false
// for invalid dimensions or more than maxValues values.
func (s *Snapshot) values() (n int, ok bool) {
	if s.Width < 0 || s.Height < 0 || s.Channels < 1 || s.Channels > maxValues {
		return 0, false
	}
	n = s.Channels
	for _, d := range []int{s.Width, s.Height} {
		if d > 0 && n > maxValues/d {
			return 0, false
		}
		n *= d
	}
	return n, true
}

func (s *Snapshot) validate() error {
	n, ok := s.values()
	if !ok {
		return fmt.Errorf("%w: %dx%dx%d", ErrSize, s.Width, s.Height, s.Channels)
	}
	if uint64(s.Width) > math.MaxUint32 || uint64(s.Height) > math.MaxUint32 {
		return fmt.Errorf("%w: %dx%d", ErrSize, s.Width, s.Height)
	}
	if len(s.Data) != n {
		return fmt.Errorf("%w: %d values for %dx%dx%d", ErrSize, len(s.Data), s.Width, s.Height, s.Channels)
	}
	return nil
}

func mustNewEncoder() *zstd.Encoder {
	enc, err := zstd.NewWriter(
		nil,
		zstd.WithEncoderConcurrency(1),
		zstd.WithEncoderLevel(zstd.SpeedBetterCompression),
		zstd.WithLowerEncoderMem(true),
		zstd.WithZeroFrames(true),
	)
	if err != nil {
		panic(err)
	}
	return enc
}

func mustNewDecoder() *zstd.Decoder {
	dec, err := zstd.NewReader(
		nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderLowmem(true),
		zstd.WithDecoderMaxMemory(8*maxValues),
	)
	if err != nil {
		panic(err)
	}
	return dec
}

var encPool = sync.Pool{New: func() any { return mustNewEncoder() }}

var decPool = sync.Pool{New: func() any { return mustNewDecoder() }}

// Encode writes s to w.
func Encode(w io.Writer, s *Snapshot) error {
	if err := s.validate(); err != nil {
		return err
	}

	var hdr [headerSize]byte
	copy(hdr[:4], magic[:])
	hdr[4] = Version
	binary.LittleEndian.PutUint32(hdr[5:], uint32(s.Width))    //nolint:gosec // validated
	binary.LittleEndian.PutUint32(hdr[9:], uint32(s.Height))   //nolint:gosec // validated
	binary.LittleEndian.PutUint32(hdr[13:], uint32(s.Channels)) //nolint:gosec // validated
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("snapshot: write header: %w", err)
	}

	enc := encPool.Get().(*zstd.Encoder)
	out := enc.EncodeAll(shuffle(s.Data), nil)
	encPool.Put(enc)

	if _, err := w.Write(out); err != nil {
		return fmt.Errorf("snapshot: write data: %w", err)
	}
	return nil
}

// Decode reads a snapshot written by Encode.
func Decode(r io.Reader) (*Snapshot, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: header: %w", ErrFormat, err)
	}
	if !bytes.Equal(hdr[:4], magic[:]) {
		return nil, fmt.Errorf("%w: bad magic %q", ErrFormat, hdr[:4])
	}
	if hdr[4] > Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, hdr[4])
	}

	s := &Snapshot{
		Width:    int(binary.LittleEndian.Uint32(hdr[5:])),
		Height:   int(binary.LittleEndian.Uint32(hdr[9:])),
		Channels: int(binary.LittleEndian.Uint32(hdr[13:])),
	}
	n, ok := s.values()
	if !ok {
		return nil, fmt.Errorf("%w: %dx%dx%d", ErrSize, s.Width, s.Height, s.Channels)
	}

	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("snapshot: read data: %w", err)
	}

	dec := decPool.Get().(*zstd.Decoder)
	planes, err := dec.DecodeAll(payload, make([]byte, 0, 8*n))
	decPool.Put(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	if len(planes) != 8*n {
		return nil, fmt.Errorf("%w: %d bytes for %d values", ErrSize, len(planes), n)
	}

	s.Data = unshuffle(planes, n)
	return s, nil
}

// shuffle splits the little-endian bytes of data into eight planes.
func shuffle(data []float64) []byte {
	n := len(data)
	out := make([]byte, 8*n)
	for i, v := range data {
		bits := math.Float64bits(v)
		for p := range 8 {
			out[p*n+i] = byte(bits >> (8 * p))
		}
	}
	return out
}

func unshuffle(planes []byte, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		var bits uint64
		for p := range 8 {
			bits |= uint64(planes[p*n+i]) << (8 * p)
		}
		out[i] = math.Float64frombits(bits)
	}
	return out
}
