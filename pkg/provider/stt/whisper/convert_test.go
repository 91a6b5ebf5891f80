package whisper

import (
	"encoding/binary"
	"math"
	"testing"
)

func pcm16(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestSamples_Mono(t *testing.T) {
	t.Parallel()

	got := samples(pcm16(0, 16384, -16384, 32767, -32768), 1)
	want := []float32{0, 0.5, -0.5, 32767.0 / 32768.0, -1.0}

	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Errorf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestSamples_StereoDownmix(t *testing.T) {
	t.Parallel()

	// Two stereo frames: (16384, -16384) averages to 0, (16384, 16384) to 0.5.
	got := samples(pcm16(16384, -16384, 16384, 16384), 2)
	want := []float32{0, 0.5}

	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Errorf("frame %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestComputeRMS(t *testing.T) {
	t.Parallel()

	if rms := computeRMS(pcm16(0, 0, 0, 0)); rms != 0 {
		t.Errorf("silence RMS = %v, want 0", rms)
	}
	if rms := computeRMS(pcm16(10000, -10000, 10000, -10000)); math.Abs(rms-10000) > 1e-6 {
		t.Errorf("square wave RMS = %v, want 10000", rms)
	}
}

func TestChunkDurationMs(t *testing.T) {
	t.Parallel()

	// 16 kHz mono 16-bit: 32 bytes per millisecond.
	if got := chunkDurationMs(make([]byte, 320), 16000, 1); got != 10 {
		t.Errorf("chunkDurationMs = %d, want 10", got)
	}
}
