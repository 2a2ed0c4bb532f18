package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"signal-trading-engine/internal/engine"
	"signal-trading-engine/internal/logging"
	"signal-trading-engine/internal/scoring"
	"signal-trading-engine/internal/weights"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "signal-trading-engine",
		"time":    time.Now().UTC(),
	})
}

// ============================================================================
// WEIGHTS
// ============================================================================

func (s *Server) handleGetWeights(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"weights": s.parliament.GetWeights()})
}

type amendmentRequest struct {
	Authority string             `json:"authority" binding:"required"`
	Reason    string             `json:"reason"`
	Changes   map[string]float64 `json:"changes" binding:"required"`
}

func (s *Server) handleProposeAmendment(c *gin.Context) {
	var req amendmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	authority, ok := parseAuthority(req.Authority)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown authority: " + req.Authority})
		return
	}

	amendment, err := s.parliament.ProposeAmendment(authority, req.Reason, weights.Vector(req.Changes))
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	if s.bus != nil {
		s.bus.PublishWeightsAmended(amendment.ID, string(amendment.Authority), amendment.Reason)
	}
	c.JSON(http.StatusOK, gin.H{"amendment": amendment})
}

type resetRequest struct {
	Authority string `json:"authority" binding:"required"`
	Reason    string `json:"reason"`
}

func (s *Server) handleResetWeights(c *gin.Context) {
	var req resetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	authority, ok := parseAuthority(req.Authority)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown authority: " + req.Authority})
		return
	}

	amendment := s.parliament.ResetToDefault(authority, req.Reason)
	if s.bus != nil {
		s.bus.PublishWeightsAmended(amendment.ID, string(amendment.Authority), amendment.Reason)
	}
	c.JSON(http.StatusOK, gin.H{"amendment": amendment})
}

func (s *Server) handleWeightHistory(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	history := s.parliament.GetHistory(limit)

	// After a restart the in-memory history is empty; fall back to the
	// persisted ledger when one is configured.
	if len(history) == 0 && s.amendments != nil {
		persisted, err := s.amendments.GetAmendments(c.Request.Context(), limit)
		if err != nil {
			s.logger.Warn("persisted amendment ledger unavailable", "error", err)
		} else {
			history = persisted
		}
	}

	c.JSON(http.StatusOK, gin.H{"history": history, "count": len(history)})
}

func parseAuthority(raw string) (weights.Authority, bool) {
	switch weights.Authority(strings.ToUpper(raw)) {
	case weights.AuthorityOperator:
		return weights.AuthorityOperator, true
	case weights.AuthorityCongressional:
		return weights.AuthorityCongressional, true
	case weights.AuthoritySystem:
		return weights.AuthoritySystem, true
	}
	return "", false
}

// ============================================================================
// DECISIONS
// ============================================================================

func (s *Server) handleDecision(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	timeframe := c.DefaultQuery("timeframe", "5m")

	comps := s.runner.Collect(c.Request.Context(), symbol, timeframe)
	decision := s.combiner.Combine(comps, s.parliament.GetWeights())

	if s.bus != nil {
		s.bus.PublishDecision(symbol, string(decision.Action), decision.Score, decision.Confidence)
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol":    symbol,
		"timeframe": timeframe,
		"decision":  decision,
	})
}

// ============================================================================
// SIGNALS
// ============================================================================

type executeSignalRequest struct {
	Source       string  `json:"source"`
	Symbol       string  `json:"symbol" binding:"required"`
	Action       string  `json:"action" binding:"required"`
	Confidence   float64 `json:"confidence"`
	Score        float64 `json:"score"`
	QuantityUSDT float64 `json:"quantity_usdt"`
}

func (s *Server) handleExecuteSignal(c *gin.Context) {
	var req executeSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	action := scoring.Action(strings.ToUpper(req.Action))
	if action != scoring.ActionBuy && action != scoring.ActionSell && action != scoring.ActionHold {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown action: " + req.Action})
		return
	}

	source := req.Source
	if source == "" {
		source = engine.SourceManual
	}

	sig := engine.Signal{
		Source:     source,
		Symbol:     strings.ToUpper(req.Symbol),
		Action:     action,
		Confidence: req.Confidence,
		Score:      req.Score,
		Timestamp:  time.Now().UTC(),
	}

	if req.QuantityUSDT < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "quantity_usdt must not be negative"})
		return
	}

	result := s.engine.ExecuteSignal(c.Request.Context(), sig, req.QuantityUSDT)
	c.JSON(http.StatusOK, gin.H{"result": result})
}

func (s *Server) handleOrdersBySymbol(c *gin.Context) {
	if s.orders == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "order storage not configured"})
		return
	}

	symbol := strings.ToUpper(c.Param("symbol"))
	limit := 50
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	records, err := s.orders.GetOrdersBySymbol(c.Request.Context(), symbol, limit)
	if err != nil {
		s.logger.Error("order lookup failed", "symbol", symbol, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "order lookup failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "orders": records, "count": len(records)})
}

func (s *Server) handlePrice(c *gin.Context) {
	if s.prices == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "price source not configured"})
		return
	}

	symbol := strings.ToUpper(c.Param("symbol"))
	price, err := s.prices.GetPrice(c.Request.Context(), symbol)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "price unavailable for " + symbol})
		return
	}

	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "price": price})
}

// ============================================================================
// RISK
// ============================================================================

type riskCheckRequest struct {
	Symbol       string  `json:"symbol" binding:"required"`
	Side         string  `json:"side" binding:"required"`
	QuantityUSDT float64 `json:"quantity_usdt" binding:"required"`
}

func (s *Server) handleRiskCheck(c *gin.Context) {
	var req riskCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	symbol := strings.ToUpper(req.Symbol)
	side := strings.ToUpper(req.Side)

	result := s.guard.CheckTradeRisk(symbol, side, req.QuantityUSDT)
	if !result.Allowed {
		logging.RiskContext(s.logger, symbol, side, req.QuantityUSDT).
			Warn("risk check denied", "reason", result.Reason)
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

func (s *Server) handleRiskStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"config":         s.guard.GetConfig(),
		"total_exposure": s.guard.TotalExposure(),
		"breaker":        s.guard.Breaker().Stats(),
	})
}

type breakerResetRequest struct {
	Symbol string `json:"symbol" binding:"required"`
}

func (s *Server) handleBreakerReset(c *gin.Context) {
	var req breakerResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	symbol := strings.ToUpper(req.Symbol)
	s.guard.Breaker().ForceReset(symbol)
	s.logger.Info("circuit breaker force-reset", "symbol", symbol)
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "state": s.guard.Breaker().State(symbol)})
}
