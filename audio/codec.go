// Package audio holds the client-side audio plumbing for the guide: the PCM
// wire codec, the gapless playback scheduler and the microphone capture
// pipeline. Host devices are reached through the OutputContext and
// InputDevice contracts so the same pipeline runs against audio/portaudio or
// the in-memory devices in audio/mock.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// InputSampleRate is the capture rate expected by the live model.
	InputSampleRate = 16000
	// OutputSampleRate is the rate of every audio payload returned by the service.
	OutputSampleRate = 24000
	// FrameSize is the number of samples delivered per capture callback.
	FrameSize = 4096
	// InputMIMEType tags outbound chunks.
	InputMIMEType = "audio/pcm;rate=16000"

	bytesPerSample = 2
)

// ErrDecode is returned for malformed base64 or PCM payloads.
var ErrDecode = errors.New("audio decode error")

// Frame is one fixed-size block of normalized samples from the capture device.
type Frame []float32

// Chunk is base64 of 16-bit little-endian PCM, the wire form in both directions.
type Chunk string

// Buffer is decoded, playable audio. Data holds one slice per channel.
type Buffer struct {
	SampleRate int
	Channels   int
	Data       [][]float32
}

// Frames returns the number of sample frames per channel.
func (b *Buffer) Frames() int {
	if b == nil || len(b.Data) == 0 {
		return 0
	}
	return len(b.Data[0])
}

// Duration returns how long the buffer plays at its sample rate.
func (b *Buffer) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return FramesToDuration(int64(b.Frames()), b.SampleRate)
}

// FramesToDuration converts a frame count at rate into wall time.
func FramesToDuration(frames int64, rate int) time.Duration {
	return time.Duration(frames * int64(time.Second) / int64(rate))
}

// EncodeFrame clamps, quantizes and base64-encodes one frame of samples.
// +Inf and -Inf clamp to the range boundaries, NaN encodes as silence.
func EncodeFrame(samples []float32) Chunk {
	pcm := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*bytesPerSample:], uint16(floatToPCM(s)))
	}
	return Chunk(base64.StdEncoding.EncodeToString(pcm))
}

func floatToPCM(s float32) int16 {
	v := float64(s)
	switch {
	case math.IsNaN(v):
		return 0
	case v >= 1:
		return math.MaxInt16
	case v <= -1:
		return math.MinInt16
	case v < 0:
		return int16(math.Round(v * 32768))
	default:
		return int16(math.Round(v * 32767))
	}
}

// DecodeChunk reverses the base64 step of the wire encoding.
func DecodeChunk(c Chunk) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(string(c))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64: %v", ErrDecode, err)
	}
	return data, nil
}

// DecodeToBuffer interprets pcm as interleaved 16-bit little-endian samples
// and builds a Buffer at the given rate and channel layout.
func DecodeToBuffer(pcm []byte, sampleRate, channels int) (*Buffer, error) {
	if channels < 1 {
		return nil, fmt.Errorf("%w: channel count %d", ErrDecode, channels)
	}
	if sampleRate < 1 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrDecode, sampleRate)
	}
	if len(pcm)%(bytesPerSample*channels) != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of %d-channel frames", ErrDecode, len(pcm), channels)
	}

	frames := len(pcm) / (bytesPerSample * channels)
	buf := &Buffer{
		SampleRate: sampleRate,
		Channels:   channels,
		Data:       make([][]float32, channels),
	}
	for ch := range buf.Data {
		buf.Data[ch] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			off := (i*channels + ch) * bytesPerSample
			sample := int16(binary.LittleEndian.Uint16(pcm[off:]))
			buf.Data[ch][i] = float32(sample) / 32768
		}
	}
	return buf, nil
}

// DecodeChunkToBuffer is DecodeChunk followed by DecodeToBuffer.
func DecodeChunkToBuffer(c Chunk, sampleRate, channels int) (*Buffer, error) {
	pcm, err := DecodeChunk(c)
	if err != nil {
		return nil, err
	}
	return DecodeToBuffer(pcm, sampleRate, channels)
}
