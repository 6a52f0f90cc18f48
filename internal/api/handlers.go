package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"dai-trader/internal/errs"
)

func (s *Server) handleStatus(c *gin.Context) {
	successResponse(c, s.trader.Status())
}

// handleReport returns the most recent cycle report, 404 before the first
// cycle completes.
func (s *Server) handleReport(c *gin.Context) {
	report := s.trader.LastReport()
	if report == nil {
		errorResponse(c, http.StatusNotFound, "no cycle has run yet")
		return
	}
	successResponse(c, report)
}

func (s *Server) handlePositions(c *gin.Context) {
	successResponse(c, s.trader.OpenTrades())
}

// handleTrades returns the closed-trade journal, newest first.
func (s *Server) handleTrades(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 {
			errorResponse(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, 500)
	}

	trades, err := s.trader.RecentTrades(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read trade journal", "error", err)
		errorResponse(c, http.StatusInternalServerError, "Failed to fetch trade history")
		return
	}
	successResponse(c, trades)
}

func (s *Server) handleLedger(c *gin.Context) {
	successResponse(c, s.trader.Status().Ledger)
}

func (s *Server) handleBreaker(c *gin.Context) {
	successResponse(c, s.trader.Status().Breaker)
}

type distributionRequest struct {
	Amount float64 `json:"amount" binding:"required,gt=0"`
}

// handleDistribution books a withdrawal of realized gains.
func (s *Server) handleDistribution(c *gin.Context) {
	var req distributionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "amount must be a positive number")
		return
	}

	if err := s.trader.RecordDistribution(c.Request.Context(), req.Amount); err != nil {
		if errors.Is(err, errs.ErrRiskBreach) {
			errorResponse(c, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error("failed to record distribution", "amount", req.Amount, "error", err)
		errorResponse(c, http.StatusInternalServerError, "Failed to record distribution")
		return
	}
	successResponse(c, s.trader.Status().Ledger)
}

func (s *Server) handleBreakerReset(c *gin.Context) {
	s.trader.ResetBreaker()
	successResponse(c, s.trader.Status().Breaker)
}

// handleRunCycle runs one decision cycle immediately. It serializes with
// the scheduled loop.
func (s *Server) handleRunCycle(c *gin.Context) {
	report, err := s.trader.RunCycle(c.Request.Context())
	if err != nil {
		s.logger.Error("manual cycle failed", "error", err)
		errorResponse(c, http.StatusBadGateway, err.Error())
		return
	}
	successResponse(c, report)
}
