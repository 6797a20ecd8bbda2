package signals

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTicker(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"[$BTC] breakout at $42000.5", "BTC", true},
		{"momentum on [$ethusdt] now", "ethusdt", true},
		{"first [$SOL] then [$ADA]", "SOL", true},
		{"no ticker here $12", "", false},
		{"[BTC] missing dollar", "", false},
		{"[$] empty", "", false},
	}
	for _, tt := range tests {
		got, ok := ExtractTicker(tt.in)
		assert.Equal(t, tt.wantOK, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestNormalizeTicker(t *testing.T) {
	assert.Equal(t, "BTC", NormalizeTicker("btcusdt"))
	assert.Equal(t, "BTC", NormalizeTicker("BTC"))
	assert.Equal(t, "USDTBTC", NormalizeTicker("usdtbtc"))
	assert.Equal(t, "BTCUSDT", NormalizeTicker("BTCUSDTUSDT"))
	assert.Equal(t, "", NormalizeTicker("USDT"))
}

func TestExtractPrice(t *testing.T) {
	p, ok := ExtractPrice("[$BTC] breakout at $42000.5")
	assert.True(t, ok)
	assert.Equal(t, "42000.5", p.String())

	p, ok = ExtractPrice("[$DOGE] target $0.125 then $0.2")
	assert.True(t, ok)
	assert.Equal(t, "0.125", p.String())

	p, ok = ExtractPrice("[$ETH] close at $3100.")
	assert.True(t, ok)
	assert.Equal(t, "3100", p.String())

	// The bracketed ticker is scanned too.
	p, ok = ExtractPrice("[$1INCH] accumulation")
	assert.True(t, ok)
	assert.Equal(t, "1", p.String())

	_, ok = ExtractPrice("[$BTC] no price")
	assert.False(t, ok)
}

func TestIsNumericSymbol(t *testing.T) {
	assert.True(t, IsNumericSymbol("123"))
	assert.True(t, IsNumericSymbol("0"))
	assert.False(t, IsNumericSymbol("1INCH"))
	assert.False(t, IsNumericSymbol(""))
	assert.False(t, IsNumericSymbol("12 3"))
}

func TestSymbolsMatch(t *testing.T) {
	assert.True(t, SymbolsMatch("BTC", "BTC"))
	assert.True(t, SymbolsMatch("BTCUP", "BTC"))
	assert.True(t, SymbolsMatch("BTC", "BTCDOWN"))
	assert.True(t, SymbolsMatch("METH", "ETH"))
	assert.False(t, SymbolsMatch("SOL", "ADA"))
	// An empty ticker (from "[$USDT]") is contained in every symbol.
	assert.True(t, SymbolsMatch("SOL", ""))
}
