// Package analytics derives read-side summaries from session history. Every
// function is pure and returns a documented default on empty input.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/ent0n29/switchboard/internal/session"
)

const (
	// NoCategory is the dominant category of an empty intent window.
	NoCategory = "none"
	// NeutralFacet is the dominant value of an empty facet window.
	NeutralFacet = "neutral"

	DefaultTrendEpsilon  = 0.1
	DefaultAverageWindow = 7
)

type Direction string

const (
	Improving        Direction = "improving"
	Declining        Direction = "declining"
	Stable           Direction = "stable"
	InsufficientData Direction = "insufficient_data"
)

// Trend compares the last point of a series with the first.
type Trend struct {
	Direction Direction `json:"direction"`
	Delta     float64   `json:"delta"`
	Points    int       `json:"points"`
}

// Dominant returns the most frequent value, or def when values is empty.
// Ties go to the value seen first.
func Dominant(values []string, def string) string {
	if len(values) == 0 {
		return def
	}
	counts := make(map[string]int, len(values))
	best, bestCount := def, 0
	for _, v := range values {
		counts[v]++
	}
	for _, v := range values {
		if c := counts[v]; c > bestCount {
			best, bestCount = v, c
		}
	}
	return best
}

// Distribution counts occurrences of each value.
func Distribution(values []string) map[string]int {
	out := make(map[string]int, len(values))
	for _, v := range values {
		out[v]++
	}
	return out
}

// ComputeTrend reports last-first over series. Deltas within epsilon are stable.
func ComputeTrend(series []float64, epsilon float64) Trend {
	if len(series) < 2 {
		return Trend{Direction: InsufficientData, Points: len(series)}
	}
	if epsilon < 0 {
		epsilon = -epsilon
	}
	delta := series[len(series)-1] - series[0]
	t := Trend{Delta: round2(delta), Points: len(series)}
	switch {
	case delta > epsilon:
		t.Direction = Improving
	case delta < -epsilon:
		t.Direction = Declining
	default:
		t.Direction = Stable
	}
	return t
}

// MovingAverage is the mean of the last window points; 0 for an empty series.
func MovingAverage(series []float64, window int) float64 {
	if len(series) == 0 {
		return 0
	}
	if window <= 0 || window > len(series) {
		window = len(series)
	}
	sum := 0.0
	for _, v := range series[len(series)-window:] {
		sum += v
	}
	return round2(sum / float64(window))
}

// SameDay keeps records stamped on now's calendar day in now's location.
func SameDay(records []session.Record, now time.Time) []session.Record {
	y, m, d := now.Date()
	loc := now.Location()
	out := make([]session.Record, 0, len(records))
	for _, r := range records {
		ry, rm, rd := r.Timestamp.In(loc).Date()
		if ry == y && rm == m && rd == d {
			out = append(out, r)
		}
	}
	return out
}

func Intents(records []session.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Intent)
	}
	return out
}

// FacetValues collects the named facet, skipping records without it.
func FacetValues(records []session.Record, facet string) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		if v, ok := r.Facets[facet]; ok && v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Ratings returns the numeric series in record order.
func Ratings(records []session.Record) []float64 {
	out := make([]float64, 0, len(records))
	for _, r := range records {
		if r.Rating != nil {
			out = append(out, *r.Rating)
		}
	}
	return out
}

// Summary is the aggregate view of one session.
type Summary struct {
	TotalInteractions  int                       `json:"total_interactions"`
	DominantIntent     string                    `json:"dominant_intent"`
	DominantIntentDay  string                    `json:"dominant_intent_today"`
	IntentDistribution map[string]int            `json:"intent_distribution"`
	DominantFacets     map[string]string         `json:"dominant_facets_today"`
	FacetDistribution  map[string]map[string]int `json:"facet_distribution"`
	RatingTrend        Trend                     `json:"rating_trend"`
	RatingAverage      float64                   `json:"rating_average"`
	LastInteractionAt  *time.Time                `json:"last_interaction_at,omitempty"`
}

type SummaryOptions struct {
	Facets        []string
	TrendEpsilon  float64
	AverageWindow int
}

// Summarize builds a Summary from records ordered oldest first.
func Summarize(records []session.Record, now time.Time, opts SummaryOptions) Summary {
	if opts.AverageWindow <= 0 {
		opts.AverageWindow = DefaultAverageWindow
	}
	if opts.TrendEpsilon == 0 {
		opts.TrendEpsilon = DefaultTrendEpsilon
	}

	today := SameDay(records, now)
	intents := Intents(records)
	ratings := Ratings(records)

	s := Summary{
		TotalInteractions:  len(records),
		DominantIntent:     Dominant(intents, NoCategory),
		DominantIntentDay:  Dominant(Intents(today), NoCategory),
		IntentDistribution: Distribution(intents),
		DominantFacets:     make(map[string]string, len(opts.Facets)),
		FacetDistribution:  make(map[string]map[string]int, len(opts.Facets)),
		RatingTrend:        ComputeTrend(ratings, opts.TrendEpsilon),
		RatingAverage:      MovingAverage(ratings, opts.AverageWindow),
	}

	facets := append([]string(nil), opts.Facets...)
	sort.Strings(facets)
	for _, f := range facets {
		s.DominantFacets[f] = Dominant(FacetValues(today, f), NeutralFacet)
		s.FacetDistribution[f] = Distribution(FacetValues(records, f))
	}
	if len(records) > 0 {
		last := records[len(records)-1].Timestamp
		s.LastInteractionAt = &last
	}
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
