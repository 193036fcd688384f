package backoff

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Join backoff constants, in seconds.
const (
	// InitialSeconds is the base delay after the first failed attempt.
	InitialSeconds = 10

	// StepSeconds is added to the base delay per failed attempt.
	StepSeconds = 10

	// MaxBaseSeconds caps the base delay at one hour.
	MaxBaseSeconds = 3600

	// JitterDivisor sets the jitter span to base/JitterDivisor.
	JitterDivisor = 5
)

// CapRetries is the first retry count whose base delay is MaxBaseSeconds.
const CapRetries = (MaxBaseSeconds - InitialSeconds) / StepSeconds

// Source supplies uniformly distributed integers in [0, n).
// *rand.Rand from math/rand/v2 satisfies it.
type Source interface {
	IntN(n int) int
}

// Window is the range a delay is drawn from for one retry count.
type Window struct {
	// Base is the unjittered delay in seconds.
	Base uint32

	// JitterSpan is the maximum extra delay in seconds.
	JitterSpan uint32
}

// Min returns the shortest delay in the window.
func (w Window) Min() time.Duration {
	return time.Duration(w.Base) * time.Second
}

// Max returns the longest delay in the window.
func (w Window) Max() time.Duration {
	return time.Duration(w.Base+w.JitterSpan) * time.Second
}

// Contains reports whether d lies inside the window.
func (w Window) Contains(d time.Duration) bool {
	return d >= w.Min() && d <= w.Max()
}

// Base returns the unjittered delay in seconds for a retry count.
func Base(retries uint32) uint32 {
	b := uint64(InitialSeconds) + uint64(StepSeconds)*uint64(retries)
	if b > MaxBaseSeconds {
		return MaxBaseSeconds
	}
	return uint32(b)
}

// WindowFor returns the delay window for a retry count.
func WindowFor(retries uint32) Window {
	base := Base(retries)
	return Window{Base: base, JitterSpan: base / JitterDivisor}
}

// DelaySeconds returns the jittered delay in seconds, consuming one draw
// from src.
func DelaySeconds(retries uint32, src Source) uint32 {
	w := WindowFor(retries)

	// r is uniform in [jitter, 2*jitter]
	draw := src.IntN(int(w.JitterSpan) + 1)
	if draw < 0 {
		draw = 0
	} else if draw > int(w.JitterSpan) {
		draw = int(w.JitterSpan)
	}
	r := w.JitterSpan + uint32(draw)

	return (w.Base - w.JitterSpan) + r
}

// Delay returns the jittered delay for a retry count.
func Delay(retries uint32, src Source) time.Duration {
	return time.Duration(DelaySeconds(retries, src)) * time.Second
}

// NewSource returns a seeded PCG source.
func NewSource(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Generator binds a Source so callers only supply the retry count.
// It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	src Source
}

// New creates a Generator seeded from the current time.
func New() *Generator {
	return NewGenerator(NewSource(uint64(time.Now().UnixNano())))
}

// NewGenerator creates a Generator drawing from src.
func NewGenerator(src Source) *Generator {
	return &Generator{src: src}
}

// Delay returns the jittered delay for a retry count.
func (g *Generator) Delay(retries uint32) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Delay(retries, g.src)
}
