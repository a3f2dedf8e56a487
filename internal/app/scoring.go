package app

import (
	"math"
	"time"

	"trivia-session-service/internal/domain"
)

const (
	baseScore  = 600
	speedScore = 400
	streakStep = 100

	// frozenElapsed is the elapsed time credited to a player holding TIME_FREEZE.
	frozenElapsed = 500 * time.Millisecond
	// powerPlayBonus is added to every player's multiplier while a power play window is open.
	powerPlayBonus = 0.5
)

// ScoreInput carries everything the scoring formula depends on.
type ScoreInput struct {
	Elapsed   time.Duration
	Limit     time.Duration
	Weight    float64
	Streak    int // before this answer's increment
	Active    []domain.PowerUp
	PowerPlay bool
	Correct   bool
}

// ComputeScore returns the points awarded for an answer. It is pure: identical inputs always
// yield the same integer. Late answers score zero and are routed as timeouts by the caller.
func ComputeScore(in ScoreInput) int {
	if in.Elapsed > in.Limit {
		return 0
	}

	ratio := 1.0
	if in.Limit > 0 {
		ratio = float64(in.Elapsed) / float64(in.Limit)
	}
	raw := float64(baseScore) + math.Floor(speedScore*math.Max(0, 1-ratio))

	mult := 1.0
	doubled := false
	for _, pu := range in.Active {
		if pu.Effect == domain.EffectFlatBonus {
			raw += pu.Value
		}
		if pu.Effect == domain.EffectMultiplier {
			mult += pu.Value - 1.0
		}
		if pu.Effect == domain.EffectDoubleJeopardy {
			doubled = true
		}
	}
	if in.PowerPlay {
		mult += powerPlayBonus
	}

	points := int(math.Floor(raw*mult)) + in.Streak*streakStep
	points = int(math.Floor(float64(points) * in.Weight))
	if doubled && in.Correct {
		points *= 2
	}
	if points < 0 {
		return 0
	}
	return points
}
