// Package audio converts raw PCM byte streams into the 16-bit mono samples
// consumed by the decoder.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Format names a raw sample encoding.
type Format string

const (
	// S16LE is signed 16-bit little-endian PCM.
	S16LE Format = "s16le"
	// F32LE is 32-bit little-endian IEEE float PCM in [-1, 1].
	F32LE Format = "f32le"
)

// ParseFormat maps a configuration value to a Format. Empty selects S16LE.
func ParseFormat(value string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(value))); f {
	case "":
		return S16LE, nil
	case S16LE, F32LE:
		return f, nil
	default:
		return "", fmt.Errorf("audio: unsupported format %q", value)
	}
}

// SampleBytes is the width of one sample in bytes.
func (f Format) SampleBytes() int {
	if f == F32LE {
		return 4
	}
	return 2
}

// Decoder turns arbitrarily split byte chunks into samples. Bytes that do not
// complete a sample are carried into the next call so alignment survives
// chunk boundaries. A Decoder is not safe for concurrent use.
type Decoder struct {
	format Format
	carry  []byte
}

// NewDecoder returns a decoder for format.
func NewDecoder(format Format) *Decoder {
	return &Decoder{format: format}
}

// Reset drops carried bytes.
func (d *Decoder) Reset() { d.carry = d.carry[:0] }

// Decode converts chunk to 16-bit samples.
func (d *Decoder) Decode(chunk []byte) []int16 {
	width := d.format.SampleBytes()
	if len(d.carry) > 0 {
		need := width - len(d.carry)
		if len(chunk) < need {
			d.carry = append(d.carry, chunk...)
			return nil
		}
		head := append(d.carry, chunk[:need]...)
		chunk = chunk[need:]
		d.carry = d.carry[:0]
		out := d.decodeAligned(head)
		out = append(out, d.decodeAligned(chunk[:len(chunk)-len(chunk)%width])...)
		d.carry = append(d.carry, chunk[len(chunk)-len(chunk)%width:]...)
		return out
	}

	aligned := len(chunk) - len(chunk)%width
	d.carry = append(d.carry, chunk[aligned:]...)
	return d.decodeAligned(chunk[:aligned])
}

func (d *Decoder) decodeAligned(b []byte) []int16 {
	if len(b) == 0 {
		return nil
	}
	switch d.format {
	case F32LE:
		out := make([]int16, len(b)/4)
		for i := range out {
			out[i] = FloatToInt16(float64(math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))))
		}
		return out
	default:
		return BytesToInt16(b)
	}
}

// BytesToInt16 converts aligned s16le bytes. A trailing odd byte is ignored.
func BytesToInt16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

// Int16ToBytes encodes samples as s16le.
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, 0, len(samples)*2)
	for _, s := range samples {
		out = binary.LittleEndian.AppendUint16(out, uint16(s))
	}
	return out
}

// FloatToInt16 scales a sample in [-1, 1] to int16, clipping out-of-range
// values.
func FloatToInt16(v float64) int16 {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= 1:
		return math.MaxInt16
	case v <= -1:
		return math.MinInt16
	}
	return int16(v * math.MaxInt16)
}
