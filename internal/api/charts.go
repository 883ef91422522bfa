package api

import (
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"strategy-core/internal/strategy"
)

const chartTimeLayout = "2006-01-02 15:04"

func chartOptions(title, subtitle string) []charts.GlobalOpts {
	return []charts.GlobalOpts{
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: title,
			Width:     "1200px",
			Height:    "600px",
			Theme:     types.ThemeInfographic,
		}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: true, Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: true, Top: "bottom"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "inside", Start: 0, End: 100}),
	}
}

func renderChart(c *gin.Context, line *charts.Line) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := line.Render(c.Writer); err != nil {
		log.Printf("chart render: %v", err)
	}
}

// rsiChart plots the journaled RSI of one instrument against the strategy's
// oversold and overbought bands.
func (s *Server) rsiChart(c *gin.Context) {
	id := strings.TrimSpace(c.Query("strategy"))
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	if id == "" {
		respondError(c, http.StatusBadRequest, "MISSING_STRATEGY", "strategy query parameter is required")
		return
	}
	if s.DB == nil {
		respondError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "database not attached")
		return
	}
	signals, err := s.DB.ListSignals(c.Request.Context(), id, 1000)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}

	th := strategy.DefaultThresholds()
	var xs []string
	var rsi, low, high []opts.LineData
	// Signals come newest first.
	for i := len(signals) - 1; i >= 0; i-- {
		sig := signals[i]
		if symbol == "" {
			symbol = sig.Symbol
		}
		if sig.Symbol != symbol {
			continue
		}
		xs = append(xs, sig.CreatedAt.Format(chartTimeLayout))
		rsi = append(rsi, opts.LineData{Value: sig.RSI})
		low = append(low, opts.LineData{Value: th.Oversold})
		high = append(high, opts.LineData{Value: th.Overbought})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(append(chartOptions("RSI "+symbol, id),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 100}))...)
	line.SetXAxis(xs).
		AddSeries("RSI", rsi).
		AddSeries("Oversold", low).
		AddSeries("Overbought", high)
	renderChart(c, line)
}

// equityChart plots the recorded equity of every strategy, or of the one
// named by ?strategy=.
func (s *Server) equityChart(c *gin.Context) {
	if s.DB == nil {
		respondError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "database not attached")
		return
	}
	id := strings.TrimSpace(c.Query("strategy"))
	points, err := s.DB.ListEquity(c.Request.Context(), id, 1000)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}

	byStrategy := make(map[string]map[time.Time]float64)
	stamps := make(map[time.Time]bool)
	for _, p := range points {
		if byStrategy[p.StrategyID] == nil {
			byStrategy[p.StrategyID] = make(map[time.Time]float64)
		}
		byStrategy[p.StrategyID][p.CreatedAt] = p.Equity
		stamps[p.CreatedAt] = true
	}
	times := make([]time.Time, 0, len(stamps))
	for t := range stamps {
		times = append(times, t)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	ids := make([]string, 0, len(byStrategy))
	for sid := range byStrategy {
		ids = append(ids, sid)
	}
	sort.Strings(ids)

	xs := make([]string, len(times))
	for i, t := range times {
		xs[i] = t.Format(chartTimeLayout)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(append(chartOptions("Equity", id),
		charts.WithYAxisOpts(opts.YAxis{Scale: true}))...)
	line.SetXAxis(xs)
	for _, sid := range ids {
		data := make([]opts.LineData, len(times))
		for i, t := range times {
			if v, ok := byStrategy[sid][t]; ok {
				data[i] = opts.LineData{Value: v}
			} else {
				data[i] = opts.LineData{Value: "-"}
			}
		}
		line.AddSeries(sid, data)
	}
	renderChart(c, line)
}
