package voice

import (
	"context"
	"errors"
	"log"
	"sync"
)

// ErrSynthUnavailable is returned while the breaker is open; callers skip
// synthesis instead of hammering a failing upstream.
var ErrSynthUnavailable = errors.New("synthesizer unavailable: breaker open")

// Breaker wraps a Synthesizer and trips open after a run of consecutive
// failures. There is no automatic half-open probe: once tripped, the
// breaker stays open until an operator calls Reset.
type Breaker struct {
	inner     Synthesizer
	threshold int

	mu       sync.Mutex
	failures int
	tripped  bool
}

func NewBreaker(inner Synthesizer, threshold int) *Breaker {
	if threshold <= 0 {
		threshold = 3
	}
	return &Breaker{inner: inner, threshold: threshold}
}

func (b *Breaker) Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (SynthesizeResult, error) {
	b.mu.Lock()
	if b.tripped {
		b.mu.Unlock()
		return SynthesizeResult{}, ErrSynthUnavailable
	}
	b.mu.Unlock()

	res, err := b.inner.Synthesize(ctx, text, opts)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.failures++
		if b.failures >= b.threshold && !b.tripped {
			b.tripped = true
			log.Printf("tts breaker opened after %d consecutive failures", b.failures)
		}
		return SynthesizeResult{}, err
	}
	b.failures = 0
	return res, nil
}

func (b *Breaker) ListVoices(ctx context.Context, language string) ([]Voice, error) {
	return b.inner.ListVoices(ctx, language)
}

// Reset closes the breaker and clears the failure count.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tripped {
		log.Printf("tts breaker reset by operator")
	}
	b.tripped = false
	b.failures = 0
}

// Tripped reports whether the breaker is currently open.
func (b *Breaker) Tripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tripped
}

func (b *Breaker) Healthy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.tripped && b.inner.Healthy()
}
