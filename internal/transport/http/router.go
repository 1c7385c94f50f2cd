package apihttp

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"papertrade/internal/allocator"
	"papertrade/internal/domain"
	"papertrade/internal/engine"
	"papertrade/internal/ledger"
	"papertrade/internal/logger"
	"papertrade/internal/performance"
	"papertrade/internal/position"
	"papertrade/internal/report"
	"papertrade/internal/signal"

	"github.com/gin-gonic/gin"
)

// Router exposes the trading API.
type Router struct {
	Ledger      *ledger.Service
	Positions   *position.Service
	Allocator   *allocator.Service
	Performance *performance.Aggregator
	Engine      *engine.Engine
	Report      *report.Renderer
}

// Register mounts the API routes on the given group.
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/balance", r.handleBalance)
	group.GET("/trades", r.handleListTrades)
	group.POST("/trades", r.handleCreateTrade)
	group.POST("/trades/:id/close", r.handleCloseTrade)
	group.POST("/trades/:id/cancel", r.handleCancelTrade)

	group.GET("/positions", r.handleListPositions)
	group.GET("/positions/:id", r.handlePositionDetail)
	group.POST("/positions", r.handleOpenPosition)
	group.POST("/positions/:id/close", r.handleClosePosition)

	group.POST("/cycle/run", r.handleRunCycle)
	group.POST("/signals", r.handleSignal)

	group.GET("/capital", r.handleCapital)
	group.GET("/performance", r.handlePerformance)
	group.GET("/performance/history", r.handlePerformanceHistory)
}

func (r *Router) handleBalance(c *gin.Context) {
	recon, err := r.Ledger.Reconcile(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"balance":       recon.Balance,
		"trade_count":   recon.TradeCount,
		"warnings":      recon.Warnings,
		"reconciled_at": recon.ReconciledAt,
	})
}

func (r *Router) handleListTrades(c *gin.Context) {
	trades, err := r.Ledger.ListTrades(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades, "count": len(trades)})
}

type createTradeRequest struct {
	Symbol      string  `json:"symbol"`
	Side        string  `json:"side"`
	Quantity    int64   `json:"quantity"`
	Price       float64 `json:"price"`
	StrategyTag string  `json:"strategy_tag"`
}

func (r *Router) handleCreateTrade(c *gin.Context) {
	var req createTradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	trade, err := r.Ledger.CreateTrade(c.Request.Context(), ledger.CreateTradeRequest{
		Symbol:      req.Symbol,
		Side:        domain.TradeSide(strings.ToUpper(strings.TrimSpace(req.Side))),
		Quantity:    req.Quantity,
		Price:       req.Price,
		StrategyTag: req.StrategyTag,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	logger.Infof("[api] trade created ip=%s id=%d %s %s x%d", c.ClientIP(), trade.ID, trade.Side, trade.Symbol, trade.Quantity)
	c.JSON(http.StatusCreated, gin.H{"trade": trade})
}

type closeTradeRequest struct {
	Price *float64 `json:"price"`
}

func (r *Router) handleCloseTrade(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var req closeTradeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	trade, err := r.Ledger.CloseTrade(c.Request.Context(), id, req.Price)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trade": trade})
}

func (r *Router) handleCancelTrade(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	trade, err := r.Ledger.CancelTrade(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trade": trade})
}

func (r *Router) handleListPositions(c *gin.Context) {
	positions, err := r.Positions.ListActive(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions, "count": len(positions)})
}

func (r *Router) handlePositionDetail(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pos, events, err := r.Positions.Get(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"position": pos, "exit_events": events})
}

type openPositionRequest struct {
	StrategyID int64   `json:"strategy_id"`
	Symbol     string  `json:"symbol"`
	Quantity   int64   `json:"quantity"`
	Price      float64 `json:"price"`
}

func (r *Router) handleOpenPosition(c *gin.Context) {
	var req openPositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pos, err := r.Positions.Open(c.Request.Context(), position.OpenRequest{
		StrategyID: req.StrategyID,
		Symbol:     req.Symbol,
		Quantity:   req.Quantity,
		EntryPrice: req.Price,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"position": pos})
}

type closePositionRequest struct {
	Quantity int64   `json:"quantity"`
	Price    float64 `json:"price"`
	Reason   string  `json:"reason"`
}

func (r *Router) handleClosePosition(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var req closePositionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	event, err := r.Positions.Close(c.Request.Context(), position.CloseRequest{
		PositionID: id,
		ExitType:   domain.ExitTypeManual,
		Reason:     req.Reason,
		Quantity:   req.Quantity,
		Price:      req.Price,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"event": event})
}

func (r *Router) handleRunCycle(c *gin.Context) {
	result, err := r.Engine.RunCycle(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (r *Router) handleSignal(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sig, err := signal.Parse(raw)
	if err != nil {
		logger.Warnf("[api] signal rejected ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := r.Engine.ExecuteSignal(c.Request.Context(), sig)
	if err != nil {
		abortWithError(c, err)
		return
	}
	logger.Infof("[api] signal %s %s executed=%v ip=%s", sig.Action, sig.Symbol, result.Executed, c.ClientIP())
	c.JSON(http.StatusOK, result)
}

func (r *Router) handleCapital(c *gin.Context) {
	status, err := r.Allocator.PortfolioStatus(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (r *Router) handlePerformance(c *gin.Context) {
	strategyID, _ := strconv.ParseInt(c.DefaultQuery("strategy_id", "0"), 10, 64)
	var since time.Time
	if raw := strings.TrimSpace(c.Query("since")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339"})
			return
		}
		since = parsed
	}
	metrics, err := r.Performance.Compute(c.Request.Context(), strategyID, since)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, metrics)
}

func (r *Router) handlePerformanceHistory(c *gin.Context) {
	strategyID, _ := strconv.ParseInt(c.DefaultQuery("strategy_id", "0"), 10, 64)
	if strategyID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "strategy_id required"})
		return
	}
	history, err := r.Performance.History(c.Request.Context(), strategyID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": history})
}

func (r *Router) handleEquityReport(c *gin.Context) {
	strategyID, _ := strconv.ParseInt(c.DefaultQuery("strategy_id", "0"), 10, 64)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := r.Report.RenderEquity(c.Request.Context(), strategyID, c.Writer); err != nil {
		logger.Errorf("[api] equity report failed ip=%s err=%v", c.ClientIP(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func pathID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

// abortWithError maps the domain error taxonomy onto HTTP statuses:
// validation failures are 400, missing entities 404, state and capital
// conflicts 409, everything else 500.
func abortWithError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidTrade):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrStrategyNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrInsufficientShares),
		errors.Is(err, domain.ErrInsufficientCapital):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		logger.Errorf("[api] %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
