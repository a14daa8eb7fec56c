package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"dip-trader/internal/order"
	"dip-trader/internal/session"
)

func (s *Server) getSessionStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"session": s.Session.Status(),
		"meta":    s.Meta,
	})
}

func (s *Server) getWatchlist(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"batches": s.Session.Watchlist()})
}

func (s *Server) getContracts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"contracts": s.Session.Contracts()})
}

func (s *Server) getHoldings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"holdings": s.Session.Holdings()})
}

// getOrders lists tracked orders, optionally filtered by ?class= and ?live=true.
func (s *Server) getOrders(c *gin.Context) {
	class := order.Class(strings.TrimSpace(c.Query("class")))
	liveOnly := c.Query("live") == "true"

	records := s.Session.Orders()
	out := make([]order.Record, 0, len(records))
	for _, r := range records {
		if class != "" && r.Class != class {
			continue
		}
		if liveOnly && !r.Live {
			continue
		}
		out = append(out, r)
	}
	c.JSON(http.StatusOK, gin.H{"orders": out, "count": len(out)})
}

func (s *Server) getMetrics(c *gin.Context) {
	if s.Monitor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"code":  "METRICS_DISABLED",
			"error": "metrics not configured",
		})
		return
	}
	c.JSON(http.StatusOK, s.Monitor.Snapshot())
}

type admitRequest struct {
	Symbol       string `json:"symbol"`
	OpeningPrice string `json:"opening_price"`
}

// admitSymbol queues a symbol for admission. The session validates it asynchronously;
// rejections show up on the event stream.
func (s *Server) admitSymbol(c *gin.Context) {
	var req admitRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_PAYLOAD",
			"error": "invalid request payload",
		})
		return
	}
	price, err := decimal.NewFromString(strings.TrimSpace(req.OpeningPrice))
	if err != nil || !price.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_PRICE",
			"error": "opening_price must be a positive decimal",
		})
		return
	}

	err = s.Session.AdmitSymbol(c.Request.Context(), req.Symbol, price)
	switch {
	case errors.Is(err, session.ErrEmptySymbol):
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_SYMBOL",
			"error": err.Error(),
		})
		return
	case err != nil:
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"code":  "ADMISSION_UNAVAILABLE",
			"error": err.Error(),
		})
		return
	}

	s.log.Info().Str("symbol", req.Symbol).Str("opening_price", price.String()).
		Str("user", CurrentUserID(c)).Msg("symbol queued via api")
	c.JSON(http.StatusAccepted, gin.H{
		"symbol": strings.ToUpper(strings.TrimSpace(req.Symbol)),
		"status": "queued",
	})
}

func (s *Server) rotateWatchlist(c *gin.Context) {
	s.Session.RotateBatch()
	st := s.Session.Status()
	c.JSON(http.StatusOK, gin.H{
		"cursor":               st.Cursor,
		"batches":              st.Batches,
		"active_subscriptions": st.ActiveSubscriptions,
	})
}
