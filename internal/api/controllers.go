package api

import (
	"errors"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"strategy-core/internal/indicators"
	"strategy-core/internal/strategy"
)

type journalQuery struct {
	Strategy string `form:"strategy"`
	Limit    int    `form:"limit"`
}

func (q *journalQuery) normalize(def, max int) {
	q.Strategy = strings.TrimSpace(q.Strategy)
	if q.Limit <= 0 {
		q.Limit = def
	}
	if q.Limit > max {
		q.Limit = max
	}
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

// bindJournal parses the strategy/limit query and checks the database is
// attached. It writes the error response itself.
func (s *Server) bindJournal(c *gin.Context, def, max int) (journalQuery, bool) {
	var q journalQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", "invalid query parameters")
		return q, false
	}
	q.normalize(def, max)
	if s.DB == nil {
		respondError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "database not attached")
		return q, false
	}
	return q, true
}

func (s *Server) getSystemStatus(c *gin.Context) {
	resp := gin.H{
		"meta":       s.Meta,
		"strategies": len(s.Strategies.List()),
	}
	if s.OrderQueue != nil {
		resp["queue_depth"] = s.OrderQueue.Len()
	}
	if s.Metrics != nil {
		resp["uptime"] = s.Metrics.GetSnapshot().Uptime
	}
	c.JSON(http.StatusOK, resp)
}

// getMetrics returns system performance metrics.
func (s *Server) getMetrics(c *gin.Context) {
	if s.Metrics == nil {
		respondError(c, http.StatusServiceUnavailable, "METRICS_UNAVAILABLE", "metrics not available")
		return
	}
	resp := gin.H{"metrics": s.Metrics.GetSnapshot()}
	if s.OrderQueue != nil {
		resp["queue_depth"] = s.OrderQueue.Len()
	}
	if s.Journal != nil {
		resp["journal"] = s.Journal.Metrics()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, s.Strategies.List())
}

type rsiView struct {
	StrategyID  string                   `json:"strategy_id"`
	Instruments []indicators.RSISnapshot `json:"instruments"`
}

// getRSI returns the tracker state published after each strategy's last
// callback. ?strategy= narrows it to one strategy.
func (s *Server) getRSI(c *gin.Context) {
	filter := strings.TrimSpace(c.Query("strategy"))
	snaps := s.Strategies.RSISnapshots()

	out := make([]rsiView, 0, len(snaps))
	for id, instruments := range snaps {
		if filter != "" && id != filter {
			continue
		}
		out = append(out, rsiView{StrategyID: id, Instruments: instruments})
	}
	if filter != "" && len(out) == 0 {
		respondError(c, http.StatusNotFound, "STRATEGY_NOT_FOUND", "no RSI state for strategy "+filter)
		return
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StrategyID < out[j].StrategyID })
	c.JSON(http.StatusOK, out)
}

func (s *Server) getSignals(c *gin.Context) {
	q, ok := s.bindJournal(c, 100, 1000)
	if !ok {
		return
	}
	signals, err := s.DB.ListSignals(c.Request.Context(), q.Strategy, q.Limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	c.Header("X-Result-Limit", strconv.Itoa(q.Limit))
	c.JSON(http.StatusOK, nonNil(signals))
}

func (s *Server) getOrders(c *gin.Context) {
	q, ok := s.bindJournal(c, 100, 500)
	if !ok {
		return
	}
	orders, err := s.DB.ListOrders(c.Request.Context(), q.Limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	c.Header("X-Result-Limit", strconv.Itoa(q.Limit))
	c.JSON(http.StatusOK, nonNil(orders))
}

func (s *Server) getOrderTrades(c *gin.Context) {
	if _, ok := s.bindJournal(c, 1, 1); !ok {
		return
	}
	trades, err := s.DB.ListTradesByOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, nonNil(trades))
}

func (s *Server) getPositions(c *gin.Context) {
	q, ok := s.bindJournal(c, 1, 1)
	if !ok {
		return
	}
	positions, err := s.DB.ListPositions(c.Request.Context(), q.Strategy)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, nonNil(positions))
}

func (s *Server) getEquity(c *gin.Context) {
	q, ok := s.bindJournal(c, 500, 1000)
	if !ok {
		return
	}
	points, err := s.DB.ListEquity(c.Request.Context(), q.Strategy, q.Limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, nonNil(points))
}

// Strategy Actions

func (s *Server) pauseStrategy(c *gin.Context) {
	s.setStrategyStatus(c, true)
}

func (s *Server) resumeStrategy(c *gin.Context) {
	s.setStrategyStatus(c, false)
}

func (s *Server) setStrategyStatus(c *gin.Context, pause bool) {
	id := c.Param("id")
	action, status := s.Strategies.Resume, strategy.StatusActive
	if pause {
		action, status = s.Strategies.Pause, strategy.StatusPaused
	}
	if err := action(c.Request.Context(), id); err != nil {
		if errors.Is(err, strategy.ErrUnknownStrategy) {
			respondError(c, http.StatusNotFound, "STRATEGY_NOT_FOUND", "strategy not found")
			return
		}
		respondError(c, http.StatusInternalServerError, "ENGINE_ERROR", err.Error())
		return
	}
	log.Printf("[API] %s set %s to %s", CurrentOperator(c), id, status)
	c.JSON(http.StatusOK, gin.H{"id": id, "status": status})
}

// nonNil keeps empty results encoded as [] instead of null.
func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
