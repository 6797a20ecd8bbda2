package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

const walletHeader = "X-Wallet-Address"

type listSignalsRequest struct {
	Strategy string `form:"strategy" validate:"max=64"`
}

// ListSignals godoc
// @Summary      Tokens with signals
// @Description  Tokens ordered by most recent signal. Free wallets see 3 tokens with their 3 latest signals.
// @Tags         signals
// @Produce      json
// @Param        strategy          query   string  false  "Only signals from this strategy"
// @Param        X-Wallet-Address  header  string  false  "Wallet used for the subscription lookup, honored only behind a trusted gateway"
// @Success      200  {object}  service.SignalsView
// @Failure      400  {object}  map[string]interface{}
// @Router       /api/signals [get]
func (h *Handler) ListSignals(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.list-signals")
	defer span.End()

	var req listSignalsRequest
	if errs := bindQuery(c, &req); errs != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": errs})
		return
	}
	wallet := walletFrom(c)
	span.SetAttributes(attribute.String("strategy", req.Strategy), attribute.Bool("wallet", wallet != ""))

	view, err := h.tokens.ListSignals(ctx, req.Strategy, wallet)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
