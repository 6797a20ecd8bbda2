package handler

import (
	"errors"
	"net/http"
	"strings"

	"coinchart/internal/domain"
	"coinchart/internal/service"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

type listTokensRequest struct {
	Range   string `form:"range" validate:"max=16"`
	Source  string `form:"source" default:"CookieFun" validate:"max=32"`
	SortBy  string `form:"sortBy" default:"marketCap" validate:"max=32"`
	SortDir string `form:"sortDir" default:"desc" validate:"oneof=asc desc ASC DESC"`
}

type searchTokensRequest struct {
	Query string `form:"query" validate:"required,max=64"`
}

// ListTokens godoc
// @Summary      List tokens
// @Description  Returns a page of tokens launched before the minimum-age cutoff
// @Tags         tokens
// @Produce      json
// @Param        range    query  string  false  "Row range, e.g. 100 or 101-200"  default(100)
// @Param        source   query  string  false  "CookieFun, Binance or Bybit"  default(CookieFun)
// @Param        sortBy   query  string  false  "marketCap, price, volume24h, percentChange24h, rank, launchDate, riskLevel, symbol"  default(marketCap)
// @Param        sortDir  query  string  false  "asc or desc"  default(desc)
// @Success      200  {object}  service.TokenPage
// @Failure      400  {object}  map[string]interface{}
// @Router       /api/tokens [get]
func (h *Handler) ListTokens(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.list-tokens")
	defer span.End()

	var req listTokensRequest
	if errs := bindQuery(c, &req); errs != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": errs})
		return
	}
	span.SetAttributes(attribute.String("source", req.Source), attribute.String("range", req.Range))

	page, err := h.tokens.ListTokens(ctx, service.TokenListQuery{
		Range:   req.Range,
		Source:  req.Source,
		SortBy:  req.SortBy,
		SortDir: strings.ToLower(req.SortDir),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// SearchTokens godoc
// @Summary      Search tokens by symbol
// @Description  Case-insensitive substring match on symbol across every source
// @Tags         tokens
// @Produce      json
// @Param        query  query  string  true  "Symbol fragment"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]interface{}
// @Router       /api/tokens/search [get]
func (h *Handler) SearchTokens(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.search-tokens")
	defer span.End()

	var req searchTokensRequest
	if errs := bindQuery(c, &req); errs != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": errs})
		return
	}

	tokens, err := h.tokens.SearchTokens(ctx, req.Query)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": tokens})
}

// GetToken godoc
// @Summary      Token details
// @Description  Returns one token; without a source the largest market cap wins
// @Tags         tokens
// @Produce      json
// @Param        symbol  path   string  true   "Token symbol"
// @Param        source  query  string  false  "CookieFun, Binance or Bybit"
// @Success      200  {object}  domain.Token
// @Failure      404  {object}  map[string]string
// @Router       /api/tokens/{symbol} [get]
func (h *Handler) GetToken(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-token")
	defer span.End()

	symbol := c.Param("symbol")
	span.SetAttributes(attribute.String("symbol", symbol))

	token, err := h.tokens.GetToken(ctx, symbol, c.Query("source"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, token)
}

// IngestStatus godoc
// @Summary      Last ingestion run per source
// @Tags         ingest
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api/ingest/status [get]
func (h *Handler) IngestStatus(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.ingest-status")
	defer span.End()

	runs, err := h.ingest.LastRuns(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sources": runs})
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
