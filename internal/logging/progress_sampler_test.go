package logging

import "testing"

func TestProgressSamplerSteps(t *testing.T) {
	s := NewProgressSampler(200, 25)
	var reported []int
	for i := 1; i <= 200; i++ {
		if _, ok := s.Observe(i); ok {
			reported = append(reported, i)
		}
	}
	want := []int{50, 100, 150, 200}
	if len(reported) != len(want) {
		t.Fatalf("reported %v, want %v", reported, want)
	}
	for i := range want {
		if reported[i] != want[i] {
			t.Fatalf("reported %v, want %v", reported, want)
		}
	}
}

func TestProgressSamplerSkipsAhead(t *testing.T) {
	s := NewProgressSampler(100, 10)
	if _, ok := s.Observe(35); !ok {
		t.Fatal("expected report at 35%")
	}
	if _, ok := s.Observe(39); ok {
		t.Fatal("39% is below the next step")
	}
	if pct, ok := s.Observe(40); !ok || pct != 40 {
		t.Fatalf("Observe(40) = %v, %v", pct, ok)
	}
}

func TestProgressSamplerUnknownTotal(t *testing.T) {
	tests := []struct {
		name    string
		sampler *ProgressSampler
	}{
		{"nil", nil},
		{"zero total", NewProgressSampler(0, 10)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := tt.sampler.Observe(10); ok {
				t.Fatal("expected no report")
			}
		})
	}
}

func TestProgressSamplerClampsOverrun(t *testing.T) {
	s := NewProgressSampler(10, 50)
	s.Observe(10)
	if pct, ok := s.Observe(12); ok || pct != 100 {
		t.Fatalf("Observe past total = %v, %v", pct, ok)
	}
}
