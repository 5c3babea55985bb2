// Package sentiment computes the deterministic 0-100 narrative sentiment
// score from price momentum and news polarity.
//
// The score starts from a neutral 50 and adds four bounded contributions:
//
//	24h momentum: linear, saturating at ±10%  -> ±25 points
//	7d momentum:  linear, saturating at ±20%  -> ±15 points
//	30d momentum: linear, saturating at ±40%  -> ±10 points
//	news:         (bullish-bearish)/(bullish+bearish) -> ±25 points
//
// Shorter windows carry more weight because they best reflect the current
// narrative. Missing inputs contribute zero, so the score degrades to
// price-only (or even neutral) rather than failing. The same inputs always
// produce the same score.
package sentiment

import (
	"math"

	"github.com/Widiskel/skel-crypto-agent/internal/market"
)

// Contribution weights and saturation points. Fixed so scores are
// reproducible across turns.
const (
	weight24h  = 25.0
	weight7d   = 15.0
	weight30d  = 10.0
	weightNews = 25.0

	saturation24h = 10.0
	saturation7d  = 20.0
	saturation30d = 40.0
)

// Label bands derived from the score. The label is never computed
// independently of the score.
const (
	bearishBelow = 40
	bullishAbove = 60
)

// Score computes the sentiment score in [0,100]. news may be nil when no
// news data is available.
func Score(momentum market.Momentum, news *market.NewsCounts) int {
	score := 50.0
	score += contribution(momentum.Change24h, saturation24h, weight24h)
	score += contribution(momentum.Change7d, saturation7d, weight7d)
	score += contribution(momentum.Change30d, saturation30d, weight30d)

	if news != nil {
		if total := news.Bullish + news.Bearish; total > 0 {
			diff := float64(news.Bullish-news.Bearish) / float64(total)
			score += diff * weightNews
		}
	}

	rounded := int(math.Round(score))
	if rounded < 0 {
		return 0
	}
	if rounded > 100 {
		return 100
	}
	return rounded
}

// contribution maps a percent change to its bounded point contribution.
func contribution(pct *float64, saturation, weight float64) float64 {
	if pct == nil {
		return 0
	}
	v := *pct
	if v > saturation {
		v = saturation
	}
	if v < -saturation {
		v = -saturation
	}
	return v / saturation * weight
}

// Label maps a score to its band: below 40 Bearish, above 60 Bullish,
// Neutral in between.
func Label(score int) string {
	switch {
	case score < bearishBelow:
		return "Bearish"
	case score > bullishAbove:
		return "Bullish"
	default:
		return "Neutral"
	}
}
