package whisper

import "encoding/binary"

// pcmScale maps the int16 sample range onto [-1, 1).
const pcmScale = 1.0 / 32768.0

// samples converts 16-bit signed little-endian PCM into the mono float32
// stream whisper.cpp inference expects. Multi-channel audio is down-mixed
// by averaging each frame. A trailing partial frame is dropped.
func samples(pcm []byte, channels int) []float32 {
	if channels < 1 {
		channels = 1
	}
	frameBytes := 2 * channels
	out := make([]float32, len(pcm)/frameBytes)
	for f := range out {
		var sum float32
		base := f * frameBytes
		for ch := range channels {
			sum += float32(int16(binary.LittleEndian.Uint16(pcm[base+2*ch:])))
		}
		out[f] = sum * pcmScale / float32(channels)
	}
	return out
}
