package dialogue

import (
	"math"
	"math/rand/v2"
)

// MetricsSource supplies simulated cosmetic numbers. Nothing it returns may
// influence classification or control flow.
type MetricsSource interface {
	ProcessingTime() float64
	Confidence() float64
	Score(min, max float64) float64
}

// RandomMetrics draws uniformly distributed values.
type RandomMetrics struct{}

func (RandomMetrics) ProcessingTime() float64 { return round2(0.8 + rand.Float64()*1.7) }

func (RandomMetrics) Confidence() float64 { return round2(0.85 + rand.Float64()*0.14) }

func (RandomMetrics) Score(min, max float64) float64 {
	if max <= min {
		return round2(min)
	}
	return round2(min + rand.Float64()*(max-min))
}

// FixedMetrics returns constant values; scores take the midpoint of the range.
type FixedMetrics struct {
	Processing float64
	Confident  float64
}

func (f FixedMetrics) ProcessingTime() float64 { return f.Processing }

func (f FixedMetrics) Confidence() float64 { return f.Confident }

func (FixedMetrics) Score(min, max float64) float64 { return round2((min + max) / 2) }

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
