package market

// QuoteKind tells which currency a pair is quoted in, which fixes the
// pip size and display precision.
type QuoteKind string

const (
	JPYQuoted QuoteKind = "JPY_QUOTED"
	USDQuoted QuoteKind = "USD_QUOTED"
)

// SymbolInfo carries the static trading attributes of one pair.
type SymbolInfo struct {
	Symbol    string    `json:"symbol"`
	Kind      QuoteKind `json:"quote_kind"`
	Precision int       `json:"precision"`
	PipSize   float64   `json:"pip_size"`
}

// The broker's FX lineup. JPY-quoted pairs tick in hundredths, the
// rest in ten-thousandths.
var symbolTable = []SymbolInfo{
	{Symbol: "USD_JPY", Kind: JPYQuoted, Precision: 3, PipSize: 0.01},
	{Symbol: "EUR_JPY", Kind: JPYQuoted, Precision: 3, PipSize: 0.01},
	{Symbol: "GBP_JPY", Kind: JPYQuoted, Precision: 3, PipSize: 0.01},
	{Symbol: "AUD_JPY", Kind: JPYQuoted, Precision: 3, PipSize: 0.01},
	{Symbol: "NZD_JPY", Kind: JPYQuoted, Precision: 3, PipSize: 0.01},
	{Symbol: "CAD_JPY", Kind: JPYQuoted, Precision: 3, PipSize: 0.01},
	{Symbol: "CHF_JPY", Kind: JPYQuoted, Precision: 3, PipSize: 0.01},
	{Symbol: "TRY_JPY", Kind: JPYQuoted, Precision: 3, PipSize: 0.01},
	{Symbol: "ZAR_JPY", Kind: JPYQuoted, Precision: 3, PipSize: 0.01},
	{Symbol: "MXN_JPY", Kind: JPYQuoted, Precision: 3, PipSize: 0.01},
	{Symbol: "EUR_USD", Kind: USDQuoted, Precision: 5, PipSize: 0.0001},
	{Symbol: "GBP_USD", Kind: USDQuoted, Precision: 5, PipSize: 0.0001},
	{Symbol: "AUD_USD", Kind: USDQuoted, Precision: 5, PipSize: 0.0001},
	{Symbol: "NZD_USD", Kind: USDQuoted, Precision: 5, PipSize: 0.0001},
}

// Symbols returns the supported pairs in listing order.
func Symbols() []SymbolInfo {
	out := make([]SymbolInfo, len(symbolTable))
	copy(out, symbolTable)
	return out
}

// LookupSymbol returns the attributes of one pair.
func LookupSymbol(symbol string) (SymbolInfo, bool) {
	for _, info := range symbolTable {
		if info.Symbol == symbol {
			return info, true
		}
	}
	return SymbolInfo{}, false
}

// IsSupported reports whether the pair is in the broker lineup.
func IsSupported(symbol string) bool {
	_, ok := LookupSymbol(symbol)
	return ok
}

// PipSize returns the pip for a pair. Unknown symbols fall back on the
// quote-currency suffix so strategy math stays sane for new listings.
func PipSize(symbol string) float64 {
	if info, ok := LookupSymbol(symbol); ok {
		return info.PipSize
	}
	if len(symbol) >= 4 && symbol[len(symbol)-4:] == "_JPY" {
		return 0.01
	}
	return 0.0001
}
