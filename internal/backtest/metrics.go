package backtest

import (
	"errors"
	"math"
)

// TradingDays annualizes daily statistics.
const TradingDays = 252

var ErrTooFewPoints = errors.New("need at least two positive equity points")

// Metrics summarizes a daily equity curve. Percentages are in percent units;
// MaxDrawdown is zero or negative.
type Metrics struct {
	Days             int     `json:"days"`
	Sharpe           float64 `json:"sharpe_ratio"`
	CumulativeReturn float64 `json:"cumulative_returns"`
	AnnualReturn     float64 `json:"annual_returns"`
	AnnualVolatility float64 `json:"annual_volatility"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	Score            float64 `json:"score"`
}

// Compute derives the metrics from equity sampled once per trading day.
// The risk-free rate is zero.
func Compute(equity []float64) (Metrics, error) {
	if len(equity) < 2 || equity[0] <= 0 {
		return Metrics{}, ErrTooFewPoints
	}

	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1]
		if prev <= 0 {
			returns = append(returns, -1)
			continue
		}
		returns = append(returns, equity[i]/prev-1)
	}
	mean, std := meanStd(returns)

	m := Metrics{Days: len(returns)}
	if std > 0 {
		m.Sharpe = mean / std * math.Sqrt(TradingDays)
	}
	growth := equity[len(equity)-1] / equity[0]
	m.CumulativeReturn = (growth - 1) * 100
	if growth > 0 {
		m.AnnualReturn = (math.Pow(growth, TradingDays/float64(len(returns))) - 1) * 100
	} else {
		m.AnnualReturn = -100
	}
	m.AnnualVolatility = std * math.Sqrt(TradingDays) * 100
	m.MaxDrawdown = maxDrawdown(equity)
	m.Score = Score(m.Sharpe, m.CumulativeReturn, m.AnnualReturn, m.AnnualVolatility, m.MaxDrawdown)
	return m, nil
}

// Score weighs the five headline numbers into one ranking value.
func Score(sharpe, cumulative, annual, volatility, drawdown float64) float64 {
	return 0.2*sharpe +
		0.2*(cumulative/100) +
		0.1*(annual/100) -
		0.25*(volatility/100) -
		0.25*(drawdown/100)
}

// meanStd returns the mean and sample standard deviation.
func meanStd(xs []float64) (mean, std float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(len(xs)-1))
}

func maxDrawdown(equity []float64) float64 {
	peak := equity[0]
	worst := 0.0
	for _, e := range equity {
		if e > peak {
			peak = e
		}
		if peak > 0 {
			if dd := (e/peak - 1) * 100; dd < worst {
				worst = dd
			}
		}
	}
	return worst
}
