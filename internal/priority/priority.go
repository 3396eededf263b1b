// Package priority derives a 0-100 triage score from urgency and importance.
package priority

import "math"

const (
	// MinLevel and MaxLevel bound urgency and importance.
	MinLevel = 0
	MaxLevel = 5

	// MaxScore is the highest priority a message can receive.
	MaxScore = 100
)

// Score returns round(((2*importance + urgency) / 3) * 20). Inputs are
// clamped to [0,5] and the result to [0,100]. Importance counts twice.
func Score(urgency, importance int) int {
	u := ClampLevel(urgency)
	i := ClampLevel(importance)

	p := int(math.Round(float64(2*i+u) / 3 * 20))
	return min(max(p, 0), MaxScore)
}

// ClampLevel clamps an urgency or importance value into [0,5].
func ClampLevel(v int) int {
	return min(max(v, MinLevel), MaxLevel)
}
