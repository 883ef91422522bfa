package indicators

import "math"

// SMA calculates the simple moving average for the last period values.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(period)
}

// EMA returns the exponential moving average at the last value. The average
// starts from the SMA of the first period values.
func EMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	k := 2.0 / float64(period+1)
	ema := SMA(values[:period], period)
	for _, v := range values[period:] {
		ema = v*k + ema*(1-k)
	}
	return ema
}

// Bollinger returns the bands over the last period values using the
// population standard deviation.
func Bollinger(values []float64, period int, numStdDev float64) (upper, mid, lower float64) {
	if period <= 0 || len(values) < period {
		return 0, 0, 0
	}
	window := values[len(values)-period:]
	mid = SMA(window, period)

	variance := 0.0
	for _, v := range window {
		d := v - mid
		variance += d * d
	}
	sd := math.Sqrt(variance / float64(period))

	return mid + numStdDev*sd, mid, mid - numStdDev*sd
}

// MACrossover is 1 when the fast SMA is above the slow SMA, else 0.
func MACrossover(values []float64, fast, slow int) int {
	if SMA(values, fast) > SMA(values, slow) && len(values) >= slow {
		return 1
	}
	return 0
}
