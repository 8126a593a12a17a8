// Package audio provides microphone capture and buffered playback of raw
// PCM audio for real-time voice sessions. Everything in this package works
// in a single fixed format: mono, 16-bit little-endian samples at 24 kHz.
package audio

import (
	"encoding/binary"
	"math"
	"time"
)

const (
	SampleRateHz   = 24000
	Channels       = 1
	BytesPerSample = 2

	// ChunkDuration is the time slice carried by one capture chunk.
	ChunkDuration = 100 * time.Millisecond

	// ChunkBytes is the byte size of one chunk: 2400 samples of mono
	// PCM16 at 24 kHz.
	ChunkBytes = int(SampleRateHz*ChunkDuration/time.Second) * Channels * BytesPerSample
)

// MediaTypePCM24K tags outbound chunks with an explicit sample rate;
// MediaTypePCM relies on the negotiated session format instead.
const (
	MediaTypePCM24K = "audio/pcm;rate=24000"
	MediaTypePCM    = "audio/pcm"
)

func bytesPerSecond() int64 {
	return int64(SampleRateHz * Channels * BytesPerSample)
}

// Duration reports how much audio time n bytes of PCM represent.
func Duration(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / bytesPerSecond())
}

// DurationBytes reports how many PCM bytes cover d of audio time.
func DurationBytes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(int64(d) * bytesPerSecond() / int64(time.Second))
}

// Stats scans a PCM16LE buffer and returns the peak absolute sample value
// and the normalized RMS level. Used for mic-health warnings.
func Stats(p []byte) (peakAbs int, rms float64) {
	if len(p) < 2 {
		return 0, 0
	}
	var sumSquares float64
	samples := 0
	for i := 0; i+1 < len(p); i += 2 {
		v := int16(binary.LittleEndian.Uint16(p[i : i+2]))
		abs := int(v)
		if abs < 0 {
			abs = -abs
		}
		if abs > peakAbs {
			peakAbs = abs
		}
		f := float64(v) / 32768.0
		sumSquares += f * f
		samples++
	}
	if samples == 0 {
		return peakAbs, 0
	}
	return peakAbs, math.Sqrt(sumSquares / float64(samples))
}
