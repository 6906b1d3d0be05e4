package market

import (
	"fmt"
	"time"

	"github.com/ajitpratap0/fxfunk/internal/gmo"
)

// Timeframe is one of the six analysis resolutions.
type Timeframe string

const (
	TFM1  Timeframe = "M1"
	TFM5  Timeframe = "M5"
	TFM15 Timeframe = "M15"
	TFH1  Timeframe = "H1"
	TFH4  Timeframe = "H4"
	TFD1  Timeframe = "D1"
)

// The FX trading day rolls at 06:00 JST, which anchors the H4 and D1
// grids at 21:00 UTC.
const fxDayAnchor = 21 * time.Hour

// AllTimeframes returns the resolutions shortest first.
func AllTimeframes() []Timeframe {
	return []Timeframe{TFM1, TFM5, TFM15, TFH1, TFH4, TFD1}
}

// ParseTimeframe converts a config or API label.
func ParseTimeframe(s string) (Timeframe, error) {
	switch Timeframe(s) {
	case TFM1, TFM5, TFM15, TFH1, TFH4, TFD1:
		return Timeframe(s), nil
	}
	return "", fmt.Errorf("unknown timeframe %q", s)
}

func (tf Timeframe) String() string {
	return string(tf)
}

// Duration returns the bar length.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TFM1:
		return time.Minute
	case TFM5:
		return 5 * time.Minute
	case TFM15:
		return 15 * time.Minute
	case TFH1:
		return time.Hour
	case TFH4:
		return 4 * time.Hour
	case TFD1:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Interval returns the broker kline resolution string.
func (tf Timeframe) Interval() gmo.Interval {
	switch tf {
	case TFM1:
		return gmo.Interval1Min
	case TFM5:
		return gmo.Interval5Min
	case TFM15:
		return gmo.Interval15Min
	case TFH1:
		return gmo.Interval1Hour
	case TFH4:
		return gmo.Interval4Hour
	case TFD1:
		return gmo.Interval1Day
	default:
		return ""
	}
}

// Intraday reports whether the broker pages this resolution by FX day
// (YYYYMMDD) rather than by year (YYYY).
func (tf Timeframe) Intraday() bool {
	return tf != TFH4 && tf != TFD1
}

// Truncate aligns t down to the timeframe grid. Intraday grids sit on
// the UTC epoch; H4 and D1 anchor on the 06:00 JST day roll.
func (tf Timeframe) Truncate(t time.Time) time.Time {
	d := tf.Duration()
	if tf == TFH4 || tf == TFD1 {
		return t.Add(-fxDayAnchor).Truncate(d).Add(fxDayAnchor)
	}
	return t.Truncate(d)
}

// NextBoundary returns the first grid point strictly after t.
func (tf Timeframe) NextBoundary(t time.Time) time.Time {
	return tf.Truncate(t).Add(tf.Duration())
}
