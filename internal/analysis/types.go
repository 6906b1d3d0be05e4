// Package analysis turns candle series into per-timeframe frames and
// an integrated multi-timeframe verdict.
package analysis

import (
	"time"

	"github.com/ajitpratap0/fxfunk/internal/market"
)

type Trend string

const (
	TrendUp    Trend = "UP"
	TrendDown  Trend = "DOWN"
	TrendRange Trend = "RANGE"
)

type Signal string

const (
	SignalBuy     Signal = "BUY"
	SignalSell    Signal = "SELL"
	SignalNeutral Signal = "NEUTRAL"
)

type Strength string

const (
	StrengthWeak   Strength = "WEAK"
	StrengthMedium Strength = "MEDIUM"
	StrengthStrong Strength = "STRONG"
)

type Momentum string

const (
	MomentumAccel Momentum = "ACCEL"
	MomentumDecel Momentum = "DECEL"
	MomentumFlat  Momentum = "FLAT"
)

type RiskLevel string

const (
	RiskLow  RiskLevel = "LOW"
	RiskMed  RiskLevel = "MED"
	RiskHigh RiskLevel = "HIGH"
)

// KeyLevels are the nearby structural prices for one frame.
type KeyLevels struct {
	Support    float64 `json:"support"`
	Resistance float64 `json:"resistance"`
	Pivot      float64 `json:"pivot"`
}

// EntryPoint is one proposed trade location with its bracket.
type EntryPoint struct {
	Type       string  `json:"type"`
	Price      float64 `json:"price"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
	Reason     string  `json:"reason"`
}

// IndicatorValues are the last-bar kernel readings a frame was built
// from, kept for API consumers.
type IndicatorValues struct {
	EMAFast        float64 `json:"ema_fast"`
	EMASlow        float64 `json:"ema_slow"`
	RSI            float64 `json:"rsi"`
	MACDHist       float64 `json:"macd_hist"`
	ATR            float64 `json:"atr"`
	ADX            float64 `json:"adx"`
	BollingerWidth float64 `json:"bollinger_width"`
}

// Frame is the per-timeframe analysis result, computed on the most
// recent completed candle.
type Frame struct {
	Symbol      string           `json:"symbol"`
	Timeframe   market.Timeframe `json:"timeframe"`
	Trend       Trend            `json:"trend"`
	Signal      Signal           `json:"signal"`
	Confidence  float64          `json:"confidence"`
	Strength    Strength         `json:"strength"`
	Momentum    Momentum         `json:"momentum"`
	Volatility  float64          `json:"volatility"`
	KeyLevels   KeyLevels        `json:"key_levels"`
	EntryPoints []EntryPoint     `json:"entry_points"`
	Indicators  IndicatorValues  `json:"indicators"`
	Close       float64          `json:"close"`
}

// MarketTiming describes when the verdict was taken.
type MarketTiming struct {
	Session        string `json:"session"`
	ActivityLevel  string `json:"activity_level"`
	WeekTiming     string `json:"week_timing"`
	Recommendation string `json:"recommendation"`
}

// StrategyRec is one trading style whose frame agrees with the
// integrated signal at high confidence.
type StrategyRec struct {
	Timeframe   market.Timeframe `json:"timeframe"`
	Style       string           `json:"style"`
	Confidence  float64          `json:"confidence"`
	EntryPoints []EntryPoint     `json:"entry_points"`
}

// Verdict is the integrated multi-timeframe view for one symbol.
type Verdict struct {
	Symbol       string                     `json:"symbol"`
	Signal       Signal                     `json:"signal"`
	Confidence   float64                    `json:"confidence"`
	Alignment    float64                    `json:"alignment_score"`
	RiskLevel    RiskLevel                  `json:"risk_level"`
	MarketTiming MarketTiming               `json:"market_timing"`
	Strategies   []StrategyRec              `json:"recommended_strategies"`
	Frames       map[market.Timeframe]Frame `json:"frames"`
	AnalyzedAt   time.Time                  `json:"analyzed_at"`
}
