package audio_test

import (
	"encoding/base64"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/room4-2/gensyn-guide/audio"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	samples := []float32{0, 0.5, -0.5, 1, -1, 0.25, -0.999, 0.0001, 0.75, -0.125}
	buf, err := audio.DecodeChunkToBuffer(audio.EncodeFrame(samples), audio.InputSampleRate, 1)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if buf.Frames() != len(samples) {
		t.Fatalf("frames = %d, want %d", buf.Frames(), len(samples))
	}
	const tolerance = 1.0 / 16384
	for i, want := range samples {
		got := buf.Data[0][i]
		if math.Abs(float64(got-want)) > tolerance {
			t.Errorf("sample %d = %v, want %v (±%v)", i, got, want, tolerance)
		}
	}
}

func TestEncodeFrameClampsOutOfRange(t *testing.T) {
	t.Parallel()

	inf := float32(math.Inf(1))
	tests := []struct {
		name string
		in   float32
		want int16
	}{
		{"above one", 1.7, math.MaxInt16},
		{"below minus one", -3, math.MinInt16},
		{"positive infinity", inf, math.MaxInt16},
		{"negative infinity", -inf, math.MinInt16},
		{"nan", float32(math.NaN()), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			raw, err := base64.StdEncoding.DecodeString(string(audio.EncodeFrame([]float32{tt.in})))
			if err != nil {
				t.Fatalf("base64: %v", err)
			}
			if len(raw) != 2 {
				t.Fatalf("len = %d, want 2", len(raw))
			}
			got := int16(uint16(raw[0]) | uint16(raw[1])<<8)
			if got != tt.want {
				t.Errorf("pcm = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEncodeFrameLittleEndian(t *testing.T) {
	t.Parallel()

	raw, _ := base64.StdEncoding.DecodeString(string(audio.EncodeFrame([]float32{-1, 1})))
	want := []byte{0x00, 0x80, 0xff, 0x7f}
	if string(raw) != string(want) {
		t.Errorf("bytes = % x, want % x", raw, want)
	}
}

func TestDecodeChunkRejectsMalformedBase64(t *testing.T) {
	t.Parallel()

	if _, err := audio.DecodeChunk("not base64!!"); !errors.Is(err, audio.ErrDecode) {
		t.Fatalf("err = %v, want ErrDecode", err)
	}
}

func TestDecodeToBufferRejectsPartialFrames(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		length, channels int
	}{
		{1, 1}, {3, 1}, {2, 2}, {6, 2}, {5, 3}, {7, 1},
	} {
		if _, err := audio.DecodeToBuffer(make([]byte, tc.length), audio.OutputSampleRate, tc.channels); !errors.Is(err, audio.ErrDecode) {
			t.Errorf("len=%d channels=%d: err = %v, want ErrDecode", tc.length, tc.channels, err)
		}
	}
}

func TestDecodeToBufferDeinterleaves(t *testing.T) {
	t.Parallel()

	// L=16384 (0.5), R=-16384 (-0.5), L=0, R=32767
	pcm := []byte{0x00, 0x40, 0x00, 0xc0, 0x00, 0x00, 0xff, 0x7f}
	buf, err := audio.DecodeToBuffer(pcm, audio.OutputSampleRate, 2)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if buf.Channels != 2 || buf.Frames() != 2 {
		t.Fatalf("channels=%d frames=%d, want 2/2", buf.Channels, buf.Frames())
	}
	if buf.Data[0][0] != 0.5 || buf.Data[1][0] != -0.5 || buf.Data[0][1] != 0 {
		t.Errorf("unexpected samples: %v", buf.Data)
	}
}

func TestBufferDuration(t *testing.T) {
	t.Parallel()

	buf, err := audio.DecodeToBuffer(make([]byte, 2*audio.OutputSampleRate/2), audio.OutputSampleRate, 1)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := buf.Duration(); got != 500*time.Millisecond {
		t.Errorf("duration = %v, want 500ms", got)
	}
}
