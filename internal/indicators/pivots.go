package indicators

import "github.com/ajitpratap0/fxfunk/internal/market"

// Pivots are the classic floor-trader levels computed from the
// previous completed daily bar.
type Pivots struct {
	P  float64 `json:"pivot"`
	R1 float64 `json:"r1"`
	R2 float64 `json:"r2"`
	S1 float64 `json:"s1"`
	S2 float64 `json:"s2"`
}

// PivotLevels derives the levels from yesterday's D1 bar:
// P = (H+L+C)/3, R1 = 2P-L, S1 = 2P-H, R2/S2 = P +/- (H-L).
func PivotLevels(prevDay market.Candle) Pivots {
	p := (prevDay.High + prevDay.Low + prevDay.Close) / 3
	rng := prevDay.High - prevDay.Low
	return Pivots{
		P:  p,
		R1: 2*p - prevDay.Low,
		S1: 2*p - prevDay.High,
		R2: p + rng,
		S2: p - rng,
	}
}
