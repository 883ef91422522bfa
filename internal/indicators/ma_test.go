package indicators

import (
	"math"
	"testing"
)

func TestSMA(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		period int
		want   float64
	}{
		{"last window", []float64{1, 2, 3, 4, 5}, 3, 4},
		{"full window", []float64{2, 4}, 2, 3},
		{"insufficient", []float64{1, 2}, 3, 0},
		{"zero period", []float64{1, 2}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SMA(tt.values, tt.period); got != tt.want {
				t.Errorf("SMA = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEMA(t *testing.T) {
	// Seed SMA(1,2,3)=2, k=0.5: 4*0.5+2*0.5=3, 5*0.5+3*0.5=4.
	if got := EMA([]float64{1, 2, 3, 4, 5}, 3); !near(got, 4, 1e-12) {
		t.Errorf("EMA = %v, want 4", got)
	}
	if got := EMA([]float64{1, 2, 3}, 3); got != 2 {
		t.Errorf("EMA with exactly period values = %v, want 2", got)
	}
	if got := EMA([]float64{1}, 3); got != 0 {
		t.Errorf("EMA insufficient = %v", got)
	}
}

func TestBollinger(t *testing.T) {
	values := []float64{100, 2, 4, 4, 4, 5, 5, 7, 9}
	upper, mid, lower := Bollinger(values, 8, 2)
	// Population std of the last eight values is 2.
	if mid != 5 || !near(upper, 9, 1e-12) || !near(lower, 1, 1e-12) {
		t.Errorf("bands = %v/%v/%v, want 9/5/1", upper, mid, lower)
	}

	u, m, l := Bollinger([]float64{3, 3, 3}, 3, 2)
	if u != m || m != l {
		t.Errorf("flat series must collapse bands: %v/%v/%v", u, m, l)
	}
	if u, m, l := Bollinger([]float64{1}, 3, 2); u != 0 || m != 0 || l != 0 {
		t.Error("insufficient data must return zeros")
	}
}

func TestMACrossover(t *testing.T) {
	rising := make([]float64, 200)
	for i := range rising {
		rising[i] = float64(i)
	}
	falling := make([]float64, 200)
	for i := range falling {
		falling[i] = math.Max(0, 200-float64(i))
	}
	tests := []struct {
		name   string
		values []float64
		want   int
	}{
		{"fast above slow", rising, 1},
		{"fast below slow", falling, 0},
		{"too short", rising[:100], 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MACrossover(tt.values, 50, 200); got != tt.want {
				t.Errorf("MACrossover = %d, want %d", got, tt.want)
			}
		})
	}
}
