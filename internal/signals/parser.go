package signals

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	tickerRx  = regexp.MustCompile(`\[\$([^\]]+)\]`)
	priceRx   = regexp.MustCompile(`\$(\d+\.?\d*)`)
	numericRx = regexp.MustCompile(`^\d+$`)
)

const quoteSuffix = "USDT"

// ExtractTicker returns the first bracketed ticker, e.g. "BTC" from "[$BTC] breakout".
func ExtractTicker(description string) (string, bool) {
	m := tickerRx.FindStringSubmatch(description)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// NormalizeTicker upper-cases a ticker and strips one trailing USDT.
func NormalizeTicker(raw string) string {
	return strings.TrimSuffix(strings.ToUpper(raw), quoteSuffix)
}

// ExtractPrice returns the first dollar amount in the description.
// Note "[$1INCH]" yields 1: the bracketed ticker is not excluded.
func ExtractPrice(description string) (decimal.Decimal, bool) {
	m := priceRx.FindStringSubmatch(description)
	if m == nil {
		return decimal.Zero, false
	}
	price, err := decimal.NewFromString(strings.TrimSuffix(m[1], "."))
	if err != nil {
		return decimal.Zero, false
	}
	return price, true
}

// IsNumericSymbol reports symbols made only of digits; those are never real tickers.
func IsNumericSymbol(symbol string) bool {
	return numericRx.MatchString(symbol)
}

// SymbolsMatch compares two already normalized symbols by equality or
// containment in either direction. Short tickers over-match (ETH inside METH,
// and an empty ticker matches everything); callers accept that.
func SymbolsMatch(tokenSymbol, ticker string) bool {
	return tokenSymbol == ticker ||
		strings.Contains(ticker, tokenSymbol) ||
		strings.Contains(tokenSymbol, ticker)
}
