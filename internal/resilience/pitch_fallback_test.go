package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/pitchtrace/pkg/provider/pitch"
	"github.com/MrWong99/pitchtrace/pkg/provider/pitch/mock"
)

func peaked(bin int) pitch.Activation {
	var a pitch.Activation
	a[bin] = 1
	return a
}

func TestPitchFallback_UsesPrimary(t *testing.T) {
	t.Parallel()
	primary := &mock.Engine{Activation: peaked(10)}
	secondary := &mock.Engine{Activation: peaked(20)}

	f := NewPitchFallback(primary, "full", FallbackConfig{})
	f.AddFallback("tiny", secondary)

	act, err := f.Infer(context.Background(), make([]float32, pitch.InputSize))
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if act[10] != 1 {
		t.Error("activation did not come from primary")
	}
	if secondary.Calls() != 0 {
		t.Errorf("secondary called %d times, want 0", secondary.Calls())
	}
}

func TestPitchFallback_FailsOver(t *testing.T) {
	t.Parallel()
	primary := &mock.Engine{InferErr: errors.New("session lost")}
	secondary := &mock.Engine{Activation: peaked(20)}

	f := NewPitchFallback(primary, "full", FallbackConfig{})
	f.AddFallback("tiny", secondary)

	act, err := f.Infer(context.Background(), make([]float32, pitch.InputSize))
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if act[20] != 1 {
		t.Error("activation did not come from the fallback")
	}
}

func TestPitchFallback_AllFailIsInferenceError(t *testing.T) {
	t.Parallel()
	primary := &mock.Engine{InferErr: errors.New("boom")}

	f := NewPitchFallback(primary, "full", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour},
	})

	features := make([]float32, pitch.InputSize)
	for range 3 {
		_, err := f.Infer(context.Background(), features)
		if !errors.Is(err, pitch.ErrInference) {
			t.Fatalf("err = %v, want pitch.ErrInference", err)
		}
		if !errors.Is(err, ErrAllFailed) {
			t.Fatalf("err = %v, want ErrAllFailed", err)
		}
	}

	if primary.Calls() != 2 {
		t.Errorf("primary called %d times, want 2 before the breaker opened", primary.Calls())
	}
	if f.Healthy() {
		t.Error("Healthy() = true with the only engine tripped")
	}
	if got := f.States()["full"]; got != StateOpen {
		t.Errorf("state = %v, want open", got)
	}
}

func TestPitchFallback_CanceledContextDoesNotTrip(t *testing.T) {
	t.Parallel()
	primary := &mock.Engine{Activation: peaked(5)}
	f := NewPitchFallback(primary, "full", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for range 3 {
		if _, err := f.Infer(ctx, make([]float32, pitch.InputSize)); err == nil {
			t.Fatal("expected error for canceled context")
		}
	}
	if !f.Healthy() {
		t.Error("cancellation tripped the breaker")
	}
}

func TestPitchFallback_CloseClosesAll(t *testing.T) {
	t.Parallel()
	a := &mock.Engine{}
	b := &mock.Engine{CloseErr: errors.New("busy")}
	f := NewPitchFallback(a, "a", FallbackConfig{})
	f.AddFallback("b", b)

	err := f.Close()
	if err == nil {
		t.Fatal("expected joined close error")
	}
	if a.CloseCallCount != 1 || b.CloseCallCount != 1 {
		t.Errorf("close calls = %d, %d; want 1, 1", a.CloseCallCount, b.CloseCallCount)
	}
}
