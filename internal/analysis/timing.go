package analysis

import "time"

// Session activity by UTC hour. The overlap window is when both
// London and New York are open and spreads are tightest.
const (
	sessionSydney  = "sydney"
	sessionTokyo   = "tokyo"
	sessionLondon  = "london"
	sessionOverlap = "london_ny_overlap"
	sessionNewYork = "new_york"

	activityLow    = "low"
	activityMedium = "medium"
	activityHigh   = "high"

	weekStart   = "week_start"
	midWeek     = "mid_week"
	weekEnd     = "week_end"
	weekendDays = "weekend"
)

// TimingAt classifies the trading session, weekly position, and a
// one-line recommendation for the given instant.
func TimingAt(now time.Time) MarketTiming {
	now = now.UTC()
	session, activity := sessionOf(now.Hour())
	return MarketTiming{
		Session:        session,
		ActivityLevel:  activity,
		WeekTiming:     weekTimingOf(now.Weekday()),
		Recommendation: recommendationFor(session, now.Weekday()),
	}
}

func sessionOf(hour int) (string, string) {
	switch {
	case hour <= 6:
		return sessionTokyo, activityMedium
	case hour <= 11:
		return sessionLondon, activityHigh
	case hour <= 16:
		return sessionOverlap, activityHigh
	case hour <= 20:
		return sessionNewYork, activityMedium
	default:
		return sessionSydney, activityLow
	}
}

func weekTimingOf(day time.Weekday) string {
	switch day {
	case time.Monday, time.Tuesday:
		return weekStart
	case time.Wednesday, time.Thursday:
		return midWeek
	case time.Friday:
		return weekEnd
	default:
		return weekendDays
	}
}

func recommendationFor(session string, day time.Weekday) string {
	if day == time.Saturday || day == time.Sunday {
		return "market closed, plan the week ahead"
	}
	active := session == sessionLondon || session == sessionOverlap || session == sessionNewYork
	core := day == time.Tuesday || day == time.Wednesday || day == time.Thursday
	switch {
	case active && core:
		return "aggressive trading favoured"
	case session == sessionTokyo && (day == time.Monday || day == time.Tuesday):
		return "trade with caution"
	default:
		return "stay flat and observe"
	}
}
