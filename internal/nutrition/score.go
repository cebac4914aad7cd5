// Package nutrition computes the nutrition score and the per-nutrient
// breakdown shown on the product detail view.
package nutrition

import (
	"math"

	"nutriscan/internal/model"
)

const (
	MinScore = 0
	MaxScore = 100
)

// Score sums the seven scored nutrients (missing ones count as 0), divides
// by 100, rounds half up and clamps to [MinScore, MaxScore].
func Score(n *model.Nutriments) int {
	if n == nil {
		return MinScore
	}

	sum := value(n.Energy) +
		value(n.Fat) +
		value(n.Carbohydrates) +
		value(n.Sugars) +
		value(n.Fiber) +
		value(n.Proteins) +
		value(n.Salt)

	score := math.Round(sum / 100)
	if math.IsNaN(score) {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	if score < MinScore {
		return MinScore
	}
	return int(score)
}

// Grade maps a score to a display letter
func Grade(score int) string {
	switch {
	case score >= 80:
		return "A"
	case score >= 60:
		return "B"
	case score >= 40:
		return "C"
	case score >= 20:
		return "D"
	default:
		return "E"
	}
}

// Verdict is the colour rule of the detail view
func Verdict(score int) string {
	if score >= 50 {
		return "good"
	}
	return "bad"
}

func value(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
