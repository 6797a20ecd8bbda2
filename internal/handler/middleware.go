package handler

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"coinchart/internal/metrics"

	"github.com/gin-gonic/gin"
)

// APIKeyAuth enforces the X-API-Key header. An empty key disables the check.
func APIKeyAuth(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}
		provided := strings.TrimSpace(c.GetHeader("X-API-Key"))
		if provided == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing X-API-Key header"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid API key"})
			return
		}
		c.Next()
	}
}

const walletKey = "wallet"

// SetWallet records the authenticated wallet for the current request.
func SetWallet(c *gin.Context, wallet string) {
	c.Set(walletKey, strings.TrimSpace(wallet))
}

// WalletIdentity falls back to the X-Wallet-Address header when trustHeader
// is set and no earlier middleware called SetWallet.
func WalletIdentity(trustHeader bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get(walletKey); !ok && trustHeader {
			if w := strings.TrimSpace(c.GetHeader(walletHeader)); w != "" {
				SetWallet(c, w)
			}
		}
		c.Next()
	}
}

func walletFrom(c *gin.Context) string {
	return c.GetString(walletKey)
}

// RequestMetrics records count and latency per matched route.
func RequestMetrics(rec *metrics.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		rec.RecordHTTPRequest(route, c.Request.Method, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
