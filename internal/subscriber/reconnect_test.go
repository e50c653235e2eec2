package subscriber

import (
	"testing"
	"time"

	"github.com/nerrad567/statuslogger/internal/infrastructure/config"
)

func TestNoReconnect(t *testing.T) {
	p := NoReconnect()
	if p.Enabled() {
		t.Error("Enabled() = true, want false")
	}
	if _, ok := p.NextDelay(1); ok {
		t.Error("NextDelay(1) ok = true, want false")
	}
	if p.String() != "none" {
		t.Errorf("String() = %q, want none", p.String())
	}
}

func TestFixedInterval(t *testing.T) {
	p := FixedInterval(2*time.Second, 3)

	for attempt := 1; attempt <= 3; attempt++ {
		delay, ok := p.NextDelay(attempt)
		if !ok || delay != 2*time.Second {
			t.Errorf("NextDelay(%d) = %v, %v; want 2s, true", attempt, delay, ok)
		}
	}
	if _, ok := p.NextDelay(4); ok {
		t.Error("NextDelay(4) ok = true, want false after max attempts")
	}
}

func TestExponentialBackoff(t *testing.T) {
	p := ExponentialBackoff(time.Second, 10*time.Second, 0)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{50, 10 * time.Second},
	}
	for _, tt := range tests {
		delay, ok := p.NextDelay(tt.attempt)
		if !ok {
			t.Fatalf("NextDelay(%d) ok = false with unlimited attempts", tt.attempt)
		}
		if delay != tt.want {
			t.Errorf("NextDelay(%d) = %v, want %v", tt.attempt, delay, tt.want)
		}
	}
}

func TestExponentialBackoff_MaxAttempts(t *testing.T) {
	p := ExponentialBackoff(time.Second, time.Minute, 2)

	if _, ok := p.NextDelay(2); !ok {
		t.Error("NextDelay(2) ok = false, want true")
	}
	if _, ok := p.NextDelay(3); ok {
		t.Error("NextDelay(3) ok = true, want false")
	}
}

func TestNewReconnectPolicy(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.MQTTReconnectConfig
		want    string
		wantErr bool
	}{
		{name: "none", cfg: config.MQTTReconnectConfig{Policy: "none"}, want: "none"},
		{name: "fixed", cfg: config.MQTTReconnectConfig{Policy: "fixed", InitialDelay: 5}, want: "fixed"},
		{name: "exponential", cfg: config.MQTTReconnectConfig{Policy: "exponential", InitialDelay: 1, MaxDelay: 60}, want: "exponential"},
		{name: "unknown", cfg: config.MQTTReconnectConfig{Policy: "sometimes"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewReconnectPolicy(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("NewReconnectPolicy() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewReconnectPolicy() error = %v", err)
			}
			if p.String() != tt.want {
				t.Errorf("policy = %q, want %q", p.String(), tt.want)
			}
		})
	}
}

func TestNewReconnectPolicy_FixedUsesInitialDelay(t *testing.T) {
	p, err := NewReconnectPolicy(config.MQTTReconnectConfig{Policy: "fixed", InitialDelay: 5})
	if err != nil {
		t.Fatalf("NewReconnectPolicy() error = %v", err)
	}
	if delay, _ := p.NextDelay(7); delay != 5*time.Second {
		t.Errorf("NextDelay(7) = %v, want 5s", delay)
	}
}
