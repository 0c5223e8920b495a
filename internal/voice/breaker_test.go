package voice

import (
	"context"
	"errors"
	"testing"
)

type flakySynth struct {
	err   error
	calls int
}

func (f *flakySynth) Synthesize(_ context.Context, text string, _ SynthesizeOptions) (SynthesizeResult, error) {
	f.calls++
	if f.err != nil {
		return SynthesizeResult{}, f.err
	}
	return SynthesizeResult{Audio: []byte(text), Format: "wav"}, nil
}

func (f *flakySynth) ListVoices(_ context.Context, _ string) ([]Voice, error) { return nil, nil }

func (f *flakySynth) Healthy() bool { return f.err == nil }

func TestBreakerTripsAfterThreshold(t *testing.T) {
	inner := &flakySynth{err: errors.New("boom")}
	b := NewBreaker(inner, 3)

	for i := 0; i < 3; i++ {
		if _, err := b.Synthesize(context.Background(), "hi", SynthesizeOptions{}); err == nil {
			t.Fatalf("call %d: expected failure", i)
		}
	}
	if !b.Tripped() {
		t.Fatalf("breaker not tripped after 3 failures")
	}

	_, err := b.Synthesize(context.Background(), "hi", SynthesizeOptions{})
	if !errors.Is(err, ErrSynthUnavailable) {
		t.Fatalf("error = %v, want ErrSynthUnavailable", err)
	}
	if inner.calls != 3 {
		t.Fatalf("inner calls = %d, want 3 (open breaker must not call upstream)", inner.calls)
	}
}

func TestBreakerSuccessClearsFailureRun(t *testing.T) {
	inner := &flakySynth{err: errors.New("boom")}
	b := NewBreaker(inner, 3)

	b.Synthesize(context.Background(), "a", SynthesizeOptions{})
	b.Synthesize(context.Background(), "b", SynthesizeOptions{})

	inner.err = nil
	if _, err := b.Synthesize(context.Background(), "c", SynthesizeOptions{}); err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}

	inner.err = errors.New("boom")
	b.Synthesize(context.Background(), "d", SynthesizeOptions{})
	b.Synthesize(context.Background(), "e", SynthesizeOptions{})
	if b.Tripped() {
		t.Fatalf("breaker tripped after non-consecutive failures")
	}
}

func TestBreakerStaysOpenUntilReset(t *testing.T) {
	inner := &flakySynth{err: errors.New("boom")}
	b := NewBreaker(inner, 1)

	b.Synthesize(context.Background(), "a", SynthesizeOptions{})
	if !b.Tripped() {
		t.Fatalf("breaker not tripped")
	}

	// Fixing the upstream alone must not close the breaker.
	inner.err = nil
	if _, err := b.Synthesize(context.Background(), "b", SynthesizeOptions{}); !errors.Is(err, ErrSynthUnavailable) {
		t.Fatalf("error = %v, want ErrSynthUnavailable before reset", err)
	}

	b.Reset()
	if b.Tripped() {
		t.Fatalf("breaker still tripped after Reset")
	}
	if _, err := b.Synthesize(context.Background(), "c", SynthesizeOptions{}); err != nil {
		t.Fatalf("Synthesize() after reset error = %v", err)
	}
}

func TestBreakerHealthyReflectsState(t *testing.T) {
	inner := &flakySynth{}
	b := NewBreaker(inner, 1)
	if !b.Healthy() {
		t.Fatalf("Healthy() = false for closed breaker")
	}

	inner.err = errors.New("boom")
	b.Synthesize(context.Background(), "a", SynthesizeOptions{})
	if b.Healthy() {
		t.Fatalf("Healthy() = true for open breaker")
	}
}
