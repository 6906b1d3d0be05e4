package analysis

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/fxfunk/internal/indicators"
	"github.com/ajitpratap0/fxfunk/internal/market"
)

// Kernel parameters. Fixed, but named so the numbers in the rules
// below have one home.
const (
	emaFastPeriod = 20
	emaSlowPeriod = 50
	rsiPeriod     = 14
	atrPeriod     = 14
	adxPeriod     = 14
	macdFast      = 12
	macdSlow      = 26
	macdSignal    = 9
	bollPeriod    = 20
	bollWidth     = 2.0

	slopeWindow   = 5
	crossLookback = 3
	levelLookback = 20

	rsiOverbought = 70.0
	rsiOversold   = 30.0

	pullbackATRMult = 1.5
	breakoutATRMult = 1.0

	// Confidence weights: base 50, up to 40 from histogram thrust, 10
	// from ADX, 10 from trend age, clipped to [0,100].
	confBase       = 50.0
	confHistWeight = 10.0
	confHistCap    = 4.0
	confADXDivisor = 3.0
	confAgeWeight  = 10.0
	maxTrendAge    = 10
)

// minFrameBars is the longest warm-up any frame input needs: the slow
// EMA plus the slope window.
const minFrameBars = emaSlowPeriod + slopeWindow - 1

// frameLookback bounds how much history a frame reads; enough for the
// warm-up plus the trend-age count.
const frameLookback = 120

// ErrInsufficientHistory marks a series too short to analyze.
var ErrInsufficientHistory = errors.New("insufficient candle history")

// frameWeights integrate the six timeframes into one verdict.
var frameWeights = map[market.Timeframe]float64{
	market.TFD1:  0.20,
	market.TFH4:  0.20,
	market.TFH1:  0.20,
	market.TFM15: 0.20,
	market.TFM5:  0.10,
	market.TFM1:  0.10,
}

// tfStyles maps each timeframe to its trading style for strategy
// recommendations.
var tfStyles = map[market.Timeframe]string{
	market.TFM1:  "scalping",
	market.TFM5:  "scalping",
	market.TFM15: "day trade",
	market.TFH1:  "day trade",
	market.TFH4:  "swing",
	market.TFD1:  "position",
}

// Analyzer reads completed candles from the store and produces frames
// and verdicts. It holds no state between calls.
type Analyzer struct {
	store  *market.Store
	logger zerolog.Logger
	now    func() time.Time
}

func NewAnalyzer(store *market.Store, logger zerolog.Logger) *Analyzer {
	return &Analyzer{
		store:  store,
		logger: logger.With().Str("component", "analyzer").Logger(),
		now:    time.Now,
	}
}

// AnalyzeFrame builds the analysis frame for one (symbol, timeframe)
// from the most recent completed candle.
func (a *Analyzer) AnalyzeFrame(symbol string, tf market.Timeframe) (Frame, error) {
	candles := a.store.Last(symbol, tf, frameLookback)
	if len(candles) < minFrameBars {
		return Frame{}, fmt.Errorf("%s %s: %w (%d bars, need %d)",
			symbol, tf, ErrInsufficientHistory, len(candles), minFrameBars)
	}
	last := len(candles) - 1
	price := candles[last].Close

	emaFast := indicators.EMA(candles, emaFastPeriod)
	emaSlow := indicators.EMA(candles, emaSlowPeriod)
	rsi := indicators.RSI(candles, rsiPeriod)
	macd := indicators.MACD(candles, macdFast, macdSlow, macdSignal)
	atr := indicators.ATR(candles, atrPeriod)
	adx := indicators.ADX(candles, adxPeriod)
	boll := indicators.Bollinger(candles, bollPeriod, bollWidth)

	for _, v := range []float64{emaFast[last], emaSlow[last], rsi[last], macd.Hist[last], atr[last], adx[last]} {
		if math.IsNaN(v) {
			return Frame{}, fmt.Errorf("%s %s: %w (warm-up not complete)", symbol, tf, ErrInsufficientHistory)
		}
	}

	trend := trendAt(candles, emaFast, emaSlow, last)
	age := trendAge(candles, emaFast, emaSlow, last, trend)
	cross := recentHistCross(macd.Hist, last, crossLookback)
	signal := signalOf(trend, rsi[last], cross)
	confidence := frameConfidence(macd.Hist[last], atr[last], adx[last], age)

	levels := KeyLevels{
		Support:    lowestLow(candles, levelLookback),
		Resistance: highestHigh(candles, levelLookback),
		Pivot:      a.dailyPivot(symbol, candles[last]),
	}

	frame := Frame{
		Symbol:     symbol,
		Timeframe:  tf,
		Trend:      trend,
		Signal:     signal,
		Confidence: confidence,
		Strength:   strengthOf(confidence),
		Momentum:   momentumOf(candles, tf),
		Volatility: 100 * atr[last] / price,
		KeyLevels:  levels,
		Indicators: IndicatorValues{
			EMAFast:        emaFast[last],
			EMASlow:        emaSlow[last],
			RSI:            rsi[last],
			MACDHist:       macd.Hist[last],
			ATR:            atr[last],
			ADX:            adx[last],
			BollingerWidth: boll.Upper[last] - boll.Lower[last],
		},
		Close: price,
	}
	frame.EntryPoints = []EntryPoint{entryPoint(frame, atr[last])}
	return frame, nil
}

// Analyze integrates all six timeframes into one verdict. Timeframes
// without enough history are skipped; when none qualifies the verdict
// degrades to NEUTRAL at zero confidence instead of failing.
func (a *Analyzer) Analyze(symbol string) (*Verdict, error) {
	frames := make(map[market.Timeframe]Frame, len(frameWeights))
	for _, tf := range market.AllTimeframes() {
		frame, err := a.AnalyzeFrame(symbol, tf)
		if err != nil {
			if errors.Is(err, ErrInsufficientHistory) {
				a.logger.Debug().Str("symbol", symbol).Str("timeframe", tf.String()).
					Msg("Skipping timeframe, not enough history")
				continue
			}
			return nil, err
		}
		frames[tf] = frame
	}

	signal, confidence, alignment := integrateFrames(frames)

	now := a.now().UTC()
	return &Verdict{
		Symbol:       symbol,
		Signal:       signal,
		Confidence:   confidence,
		Alignment:    alignment,
		RiskLevel:    riskOf(alignment),
		MarketTiming: TimingAt(now),
		Strategies:   recommendStrategies(frames, signal),
		Frames:       frames,
		AnalyzedAt:   now,
	}, nil
}

// integrateFrames folds per-frame signals into one weighted verdict.
// Alignment is the winning weight over the weight of all decided
// frames; NEUTRAL frames carry no weight in either number. A tie or
// an all-neutral board yields NEUTRAL with the confidence averaged
// over the neutral frames instead.
func integrateFrames(frames map[market.Timeframe]Frame) (Signal, float64, float64) {
	var buyW, sellW float64
	for tf, frame := range frames {
		w := frameWeights[tf]
		switch frame.Signal {
		case SignalBuy:
			buyW += w
		case SignalSell:
			sellW += w
		}
	}

	signal := SignalNeutral
	switch {
	case buyW > sellW:
		signal = SignalBuy
	case sellW > buyW:
		signal = SignalSell
	}

	alignment := 0.0
	if decided := buyW + sellW; decided > 0 {
		alignment = math.Max(buyW, sellW) / decided
	}

	var confSum, confW float64
	for tf, frame := range frames {
		if frame.Signal != signal {
			continue
		}
		w := frameWeights[tf]
		confSum += w * frame.Confidence
		confW += w
	}
	confidence := 0.0
	if confW > 0 {
		confidence = confSum / confW
	}
	return signal, confidence, alignment
}

// trendAt classifies the trend at index i: UP needs the close above
// the slow EMA, the fast EMA above the slow, and a rising slow EMA
// over the slope window.
func trendAt(candles []market.Candle, emaFast, emaSlow []float64, i int) Trend {
	if i < slopeWindow-1 || math.IsNaN(emaSlow[i]) || math.IsNaN(emaSlow[i-slopeWindow+1]) || math.IsNaN(emaFast[i]) {
		return TrendRange
	}
	slope := emaSlow[i] - emaSlow[i-slopeWindow+1]
	price := candles[i].Close
	switch {
	case price > emaSlow[i] && emaFast[i] > emaSlow[i] && slope > 0:
		return TrendUp
	case price < emaSlow[i] && emaFast[i] < emaSlow[i] && slope < 0:
		return TrendDown
	default:
		return TrendRange
	}
}

// trendAge counts consecutive bars ending at last that share the
// current trend, capped at maxTrendAge.
func trendAge(candles []market.Candle, emaFast, emaSlow []float64, last int, trend Trend) int {
	age := 0
	for i := last; i >= 0 && age < maxTrendAge; i-- {
		if trendAt(candles, emaFast, emaSlow, i) != trend {
			break
		}
		age++
	}
	return age
}

// signalOf gates entries: a fresh MACD cross in the trend direction,
// vetoed when RSI is already stretched that way.
func signalOf(trend Trend, rsi float64, cross int) Signal {
	switch {
	case trend == TrendUp && rsi < rsiOverbought && cross > 0:
		return SignalBuy
	case trend == TrendDown && rsi > rsiOversold && cross < 0:
		return SignalSell
	default:
		return SignalNeutral
	}
}

// recentHistCross reports the most recent MACD histogram zero cross
// within lookback bars of last: +1 upward, -1 downward, 0 none.
func recentHistCross(hist []float64, last, lookback int) int {
	for i := last; i > last-lookback && i > 0; i-- {
		prev, cur := hist[i-1], hist[i]
		if math.IsNaN(prev) || math.IsNaN(cur) {
			continue
		}
		if prev <= 0 && cur > 0 {
			return 1
		}
		if prev >= 0 && cur < 0 {
			return -1
		}
	}
	return 0
}

func frameConfidence(hist, atr, adx float64, age int) float64 {
	histScore := 0.0
	if atr > 0 {
		histScore = clip(math.Abs(hist)/atr, 0, confHistCap)
	}
	adxScore := clip(adx-20, 0, 30) / confADXDivisor
	ageBonus := float64(min(age, maxTrendAge)) / float64(maxTrendAge)
	return clip(confBase+confHistWeight*histScore+adxScore+confAgeWeight*ageBonus, 0, 100)
}

func strengthOf(confidence float64) Strength {
	switch {
	case confidence < 50:
		return StrengthWeak
	case confidence < 75:
		return StrengthMedium
	default:
		return StrengthStrong
	}
}

// momentumOf buckets the percent change over a short lookback: fast
// timeframes use 5 bars, the rest 10.
func momentumOf(candles []market.Candle, tf market.Timeframe) Momentum {
	periods := 10
	if tf == market.TFM1 || tf == market.TFM5 {
		periods = 5
	}
	last := len(candles) - 1
	if last < periods {
		return MomentumFlat
	}
	ref := candles[last-periods].Close
	if ref == 0 {
		return MomentumFlat
	}
	change := (candles[last].Close - ref) / ref * 100
	switch {
	case change > 0.2:
		return MomentumAccel
	case change < -0.2:
		return MomentumDecel
	default:
		return MomentumFlat
	}
}

func lowestLow(candles []market.Candle, lookback int) float64 {
	lo := math.Inf(1)
	start := len(candles) - lookback
	if start < 0 {
		start = 0
	}
	for _, c := range candles[start:] {
		if c.Low < lo {
			lo = c.Low
		}
	}
	return lo
}

func highestHigh(candles []market.Candle, lookback int) float64 {
	hi := math.Inf(-1)
	start := len(candles) - lookback
	if start < 0 {
		start = 0
	}
	for _, c := range candles[start:] {
		if c.High > hi {
			hi = c.High
		}
	}
	return hi
}

// dailyPivot uses the previous completed D1 bar; before any daily bar
// exists it degrades to the typical price of the frame's last bar.
func (a *Analyzer) dailyPivot(symbol string, fallback market.Candle) float64 {
	if d1, ok := a.store.LastCandle(symbol, market.TFD1); ok {
		return indicators.PivotLevels(d1).P
	}
	return (fallback.High + fallback.Low + fallback.Close) / 3
}

// entryPoint proposes the single entry for a frame. Near the fast EMA
// (within one ATR) or in a range the play is a pullback; otherwise a
// breakout through the nearby level.
func entryPoint(f Frame, atr float64) EntryPoint {
	nearEMA := math.Abs(f.Close-f.Indicators.EMAFast) <= atr

	switch f.Trend {
	case TrendUp:
		if nearEMA {
			ref := f.Indicators.EMAFast
			return EntryPoint{
				Type:       "pullback",
				Price:      ref,
				StopLoss:   ref - pullbackATRMult*atr,
				TakeProfit: ref + 2*pullbackATRMult*atr,
				Reason:     "pullback to the fast EMA in an uptrend",
			}
		}
		ref := f.KeyLevels.Resistance
		return EntryPoint{
			Type:       "breakout",
			Price:      ref,
			StopLoss:   ref - breakoutATRMult*atr,
			TakeProfit: ref + 2*breakoutATRMult*atr,
			Reason:     "breakout above resistance",
		}
	case TrendDown:
		if nearEMA {
			ref := f.Indicators.EMAFast
			return EntryPoint{
				Type:       "pullback",
				Price:      ref,
				StopLoss:   ref + pullbackATRMult*atr,
				TakeProfit: ref - 2*pullbackATRMult*atr,
				Reason:     "rally to the fast EMA in a downtrend",
			}
		}
		ref := f.KeyLevels.Support
		return EntryPoint{
			Type:       "breakout",
			Price:      ref,
			StopLoss:   ref + breakoutATRMult*atr,
			TakeProfit: ref - 2*breakoutATRMult*atr,
			Reason:     "breakdown below support",
		}
	default:
		ref := f.KeyLevels.Support
		return EntryPoint{
			Type:       "pullback",
			Price:      ref,
			StopLoss:   ref - pullbackATRMult*atr,
			TakeProfit: ref + 2*pullbackATRMult*atr,
			Reason:     "range rotation off support",
		}
	}
}

func riskOf(alignment float64) RiskLevel {
	switch {
	case alignment < 0.5:
		return RiskHigh
	case alignment < 0.75:
		return RiskMed
	default:
		return RiskLow
	}
}

// recommendStrategies picks frames agreeing with the winning signal
// at confidence above 65, best three first.
func recommendStrategies(frames map[market.Timeframe]Frame, signal Signal) []StrategyRec {
	if signal == SignalNeutral {
		return nil
	}
	var recs []StrategyRec
	for tf, frame := range frames {
		if frame.Signal != signal || frame.Confidence <= 65 {
			continue
		}
		recs = append(recs, StrategyRec{
			Timeframe:   tf,
			Style:       tfStyles[tf],
			Confidence:  frame.Confidence,
			EntryPoints: frame.EntryPoints,
		})
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Confidence > recs[j].Confidence })
	if len(recs) > 3 {
		recs = recs[:3]
	}
	return recs
}

func clip(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
