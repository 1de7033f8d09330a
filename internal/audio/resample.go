package audio

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Converter decodes a byte stream in one format and rate into s16le samples
// at the decoder rate.
type Converter struct {
	dec       *Decoder
	resampler resampling.Resampler
	in        []float64
}

// NewConverter builds a converter from format at inputRate to outputRate
// mono. Equal rates skip resampling.
func NewConverter(format Format, inputRate, outputRate int) (*Converter, error) {
	if inputRate <= 0 || outputRate <= 0 {
		return nil, fmt.Errorf("audio: invalid sample rates %d -> %d", inputRate, outputRate)
	}
	c := &Converter{dec: NewDecoder(format)}
	if inputRate == outputRate {
		return c, nil
	}
	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(inputRate),
		OutputRate: float64(outputRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("audio: create resampler: %w", err)
	}
	c.resampler = rs
	return c, nil
}

// Convert returns the samples produced by chunk. The resampler keeps filter
// state between calls, so output length varies per chunk.
func (c *Converter) Convert(chunk []byte) ([]int16, error) {
	samples := c.dec.Decode(chunk)
	if c.resampler == nil || len(samples) == 0 {
		return samples, nil
	}

	c.in = c.in[:0]
	for _, s := range samples {
		c.in = append(c.in, float64(s)/32768.0)
	}
	out, err := c.resampler.Process(c.in)
	if err != nil {
		return nil, fmt.Errorf("audio: resample: %w", err)
	}
	converted := make([]int16, len(out))
	for i, v := range out {
		converted[i] = FloatToInt16(v)
	}
	return converted, nil
}

// ConvertBytes is Convert encoded back to s16le.
func (c *Converter) ConvertBytes(chunk []byte) ([]byte, error) {
	samples, err := c.Convert(chunk)
	if err != nil {
		return nil, err
	}
	return Int16ToBytes(samples), nil
}

// Flush ends the input stream. It drops an incomplete trailing sample and
// returns the samples still held in the resampler filter. The converter can
// be reused afterwards.
func (c *Converter) Flush() ([]int16, error) {
	c.dec.Reset()
	if c.resampler == nil {
		return nil, nil
	}
	out, err := c.resampler.Flush()
	c.resampler.Reset()
	if err != nil {
		return nil, fmt.Errorf("audio: flush resampler: %w", err)
	}
	tail := make([]int16, len(out))
	for i, v := range out {
		tail[i] = FloatToInt16(v)
	}
	return tail, nil
}
