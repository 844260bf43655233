package local

import (
	"math"

	"github.com/gopxl/beep/v2"
)

// pcmStreamer adapts raw mono 16-bit little-endian PCM to a beep
// StreamSeeker. Both output channels carry the mono signal.
type pcmStreamer struct {
	data []byte
	pos  int // sample index
}

func newPCMStreamer(data []byte) *pcmStreamer {
	// Drop a trailing odd byte rather than stream garbage.
	return &pcmStreamer{data: data[:len(data)/bytesPerSample*bytesPerSample]}
}

func (s *pcmStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	total := s.Len()
	for n < len(samples) && s.pos < total {
		off := s.pos * bytesPerSample
		v := int16(uint16(s.data[off]) | uint16(s.data[off+1])<<8)
		f := float64(v) / (1 << 15)
		samples[n][0] = f
		samples[n][1] = f
		n++
		s.pos++
	}
	return n, n > 0
}

func (s *pcmStreamer) Err() error { return nil }

func (s *pcmStreamer) Len() int { return len(s.data) / bytesPerSample }

func (s *pcmStreamer) Position() int { return s.pos }

func (s *pcmStreamer) Seek(p int) error {
	if p < 0 {
		p = 0
	}
	if max := s.Len(); p > max {
		p = max
	}
	s.pos = p
	return nil
}

var _ beep.StreamSeeker = (*pcmStreamer)(nil)

// gainToVolume maps a linear gain in [0, 1] onto the base-2 logarithmic
// volume used by effects.Volume. Zero gain is full silence.
func gainToVolume(gain float64) (volume float64, silent bool) {
	if gain <= 0 {
		return 0, true
	}
	if gain > 1 {
		gain = 1
	}
	return math.Log2(gain), false
}
