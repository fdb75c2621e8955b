package resilience

import (
	"errors"
	"testing"
	"time"
)

var errAnswer = errors.New("answer")

func TestFallbackGroup_Execute(t *testing.T) {
	tests := []struct {
		name     string
		failing  map[string]bool
		wantCall string
		wantErr  bool
	}{
		{name: "primary succeeds", wantCall: "primary"},
		{name: "primary fails", failing: map[string]bool{"primary": true}, wantCall: "secondary"},
		{name: "all fail", failing: map[string]bool{"primary": true, "secondary": true}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fg := NewFallbackGroup("primary", "primary", FallbackConfig{
				CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
			})
			fg.AddFallback("secondary", "secondary")

			var called string
			err := fg.Execute(func(v string) error {
				if tt.failing[v] {
					return errTest
				}
				called = v
				return nil
			})
			if tt.wantErr {
				if !errors.Is(err, ErrAllFailed) || !errors.Is(err, errTest) {
					t.Fatalf("err = %v, want ErrAllFailed wrapping errTest", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if called != tt.wantCall {
				t.Fatalf("called = %q, want %q", called, tt.wantCall)
			}
		})
	}
}

func TestFallbackGroup_SkipsOpenBreaker(t *testing.T) {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour},
	})
	fg.AddFallback("secondary", "secondary")

	var primaryCalls int
	for range 4 {
		_ = fg.Execute(func(v string) error {
			if v == "primary" {
				primaryCalls++
				return errTest
			}
			return nil
		})
	}
	if primaryCalls != 2 {
		t.Fatalf("primary called %d times, want 2 before its breaker opened", primaryCalls)
	}
	if got := fg.States()["primary"]; got != StateOpen {
		t.Fatalf("primary state = %v, want open", got)
	}
	if got := fg.States()["secondary"]; got != StateClosed {
		t.Fatalf("secondary state = %v, want closed", got)
	}
}

func TestFallbackGroup_AllOpenWrapsCircuitOpen(t *testing.T) {
	fg := NewFallbackGroup(1, "only", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	})
	_ = fg.Execute(func(int) error { return errTest })

	err := fg.Execute(func(int) error { return nil })
	if !errors.Is(err, ErrAllFailed) || !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrAllFailed wrapping ErrCircuitOpen", err)
	}
}

func TestExecuteWithResult_Failover(t *testing.T) {
	fg := NewFallbackGroup(10, "ten", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fg.AddFallback("twenty", 20)

	result, err := ExecuteWithResult(fg, func(v int) (string, error) {
		if v == 10 {
			return "", errTest
		}
		return "from-twenty", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "from-twenty" {
		t.Fatalf("result = %q, want from-twenty", result)
	}
}

func TestExecuteWithResult_Passthrough(t *testing.T) {
	fg := NewFallbackGroup(10, "ten", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
		Passthrough:    func(err error) bool { return errors.Is(err, errAnswer) },
	})
	fg.AddFallback("twenty", 20)

	var calls []int
	for range 3 {
		_, err := ExecuteWithResult(fg, func(v int) (string, error) {
			calls = append(calls, v)
			return "", errAnswer
		})
		if !errors.Is(err, errAnswer) || errors.Is(err, ErrAllFailed) {
			t.Fatalf("err = %v, want errAnswer unwrapped", err)
		}
	}
	if len(calls) != 3 || calls[0] != 10 || calls[2] != 10 {
		t.Fatalf("calls = %v, want only the primary", calls)
	}
	if got := fg.States()["ten"]; got != StateClosed {
		t.Fatalf("primary state = %v, want closed", got)
	}
}

func TestFallbackGroup_Names(t *testing.T) {
	fg := NewFallbackGroup("a", "a", FallbackConfig{})
	fg.AddFallback("b", "b")
	fg.AddFallback("c", "c")
	names := fg.Names()
	if len(names) != 3 || names[0] != "a" || names[2] != "c" {
		t.Fatalf("Names() = %v", names)
	}
}
