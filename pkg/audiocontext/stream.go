package audiocontext

import (
	"encoding/binary"
	"sync"

	"github.com/hajimehoshi/ebiten/v2/audio"

	"github.com/zurustar/scoreplay/pkg/devicepool"
)

var (
	sharedAudioContext *audio.Context
	sharedAudioMutex   sync.Mutex
)

// SharedAudioContext returns the process-wide ebiten audio context,
// creating it on first use. Ebiten permits only one per process.
func SharedAudioContext() *audio.Context {
	sharedAudioMutex.Lock()
	defer sharedAudioMutex.Unlock()
	if sharedAudioContext == nil {
		sharedAudioContext = audio.NewContext(devicepool.SampleRate)
	}
	return sharedAudioContext
}

// Stream implements io.Reader over a *devicepool.Synth's rendered audio,
// for feeding an ebiten audio.Player during real-time (non-export)
// playback.
type Stream struct {
	synth   *devicepool.Synth
	mu      sync.Mutex
	stopped bool
}

// NewStream wraps synth as an io.Reader source.
func NewStream(synth *devicepool.Synth) *Stream {
	return &Stream{synth: synth}
}

// Read renders 16-bit little-endian interleaved stereo samples from the
// synth into p.
func (s *Stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	samples := len(p) / 4
	if samples == 0 {
		return 0, nil
	}

	left := make([]float32, samples)
	right := make([]float32, samples)
	s.synth.Render(left, right)

	for i := 0; i < samples; i++ {
		l := int16(clamp(left[i]) * 32767)
		r := int16(clamp(right[i]) * 32767)
		binary.LittleEndian.PutUint16(p[i*4:], uint16(l))
		binary.LittleEndian.PutUint16(p[i*4+2:], uint16(r))
	}

	return samples * 4, nil
}

// Stop marks the stream as silent; subsequent Read calls return zeros
// instead of rendering, so a closed player doesn't race the synth.
func (s *Stream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

func clamp(v float32) float32 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
