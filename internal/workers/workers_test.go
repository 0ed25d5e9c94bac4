package workers

import (
	"runtime"
	"testing"
)

func TestCount(t *testing.T) {
	available := runtime.GOMAXPROCS(0)

	tests := []struct {
		name       string
		multiplier float64
		limit      int
		override   string
		want       int
	}{
		{"CPU bound", 1.0, 0, "", maxInt(available, 1)},
		{"IO bound doubles", 2.0, 0, "", maxInt(available*2, 1)},
		{"Limit caps result", 2.0, 1, "", 1},
		{"Override respected", 1.0, 0, "7", 7},
		{"Override capped by limit", 1.0, 3, "7", 3},
		{"Invalid override ignored", 1.0, 0, "zero", maxInt(available, 1)},
		{"Negative override ignored", 1.0, 0, "-4", maxInt(available, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("PIPELINE_WORKERS", tt.override)
			if got := Count(tt.multiplier, tt.limit); got != tt.want {
				t.Errorf("Count(%v, %d) = %d, want %d", tt.multiplier, tt.limit, got, tt.want)
			}
		})
	}
}

func TestHelpers(t *testing.T) {
	t.Setenv("PIPELINE_WORKERS", "")

	if got := ForCPU(0); got < 1 {
		t.Errorf("ForCPU(0) = %d, want >= 1", got)
	}
	if got := ForIO(0); got < ForCPU(0) {
		t.Errorf("ForIO(0) = %d, want >= ForCPU(0) = %d", got, ForCPU(0))
	}
	if got := ForMixed(2); got > 2 {
		t.Errorf("ForMixed(2) = %d, want <= 2", got)
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
