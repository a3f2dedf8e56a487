package app

import (
	"fmt"
	"math/rand"
	"slices"
	"strings"

	"trivia-session-service/internal/domain"
)

var glitchGlyphs = []rune{'#', '$', '%', '&', '@', '?', '!', '0', '1'}

// activationPlan lists the side effects an activation has beyond moving the item into the active set.
type activationPlan struct {
	disable   []int
	powerPlay bool
	glitch    bool
}

// checkEligible reports whether pu may be activated on q given the options already disabled.
func checkEligible(pu domain.PowerUp, q domain.Question, disabled []int) error {
	available := availableWrong(q, disabled)

	switch pu.Effect {
	case domain.EffectFiftyFifty:
		if len(available) < 2 || len(q.Options)%2 != 0 {
			return domain.ErrIneligiblePowerUp
		}
		return nil
	case domain.EffectEraser:
		if len(q.Options) <= 2 || len(available) == 0 {
			return domain.ErrIneligiblePowerUp
		}
		return nil
	case domain.EffectMultiplier,
		domain.EffectFlatBonus,
		domain.EffectStreakAdd,
		domain.EffectGift,
		domain.EffectImmunity,
		domain.EffectTimeFreeze,
		domain.EffectStreakSaver,
		domain.EffectPowerPlay,
		domain.EffectDoubleJeopardy,
		domain.EffectGlitch:
		return nil
	default:
		return fmt.Errorf("%w: %s", domain.ErrUnknownEffect, pu.Effect)
	}
}

// planActivation picks the side effects of an eligible activation.
// Disabled options are chosen here exactly once so later renders stay stable.
func planActivation(pu domain.PowerUp, q domain.Question, disabled []int, rnd *rand.Rand) (activationPlan, error) {
	if err := checkEligible(pu, q, disabled); err != nil {
		return activationPlan{}, err
	}

	switch pu.Effect {
	case domain.EffectFiftyFifty:
		return activationPlan{disable: pick(rnd, availableWrong(q, disabled), 2)}, nil
	case domain.EffectEraser:
		return activationPlan{disable: pick(rnd, availableWrong(q, disabled), 1)}, nil
	case domain.EffectPowerPlay:
		return activationPlan{powerPlay: true}, nil
	case domain.EffectGlitch:
		return activationPlan{glitch: true}, nil
	case domain.EffectMultiplier,
		domain.EffectFlatBonus,
		domain.EffectStreakAdd,
		domain.EffectGift,
		domain.EffectImmunity,
		domain.EffectTimeFreeze,
		domain.EffectStreakSaver,
		domain.EffectDoubleJeopardy:
		return activationPlan{}, nil
	default:
		return activationPlan{}, fmt.Errorf("%w: %s", domain.ErrUnknownEffect, pu.Effect)
	}
}

// retainedOnCorrect reports whether an active effect survives a correct answer.
func retainedOnCorrect(kind domain.EffectKind) (bool, error) {
	switch kind {
	case domain.EffectStreakSaver, domain.EffectImmunity:
		return true, nil
	case domain.EffectMultiplier,
		domain.EffectFlatBonus,
		domain.EffectStreakAdd,
		domain.EffectGift,
		domain.EffectFiftyFifty,
		domain.EffectEraser,
		domain.EffectTimeFreeze,
		domain.EffectPowerPlay,
		domain.EffectDoubleJeopardy,
		domain.EffectGlitch:
		return false, nil
	default:
		return false, fmt.Errorf("%w: %s", domain.ErrUnknownEffect, kind)
	}
}

// consumeActive applies resolution-time consumption. Incorrect answers and timeouts clear everything.
func consumeActive(active []domain.PowerUp, correct bool) []domain.PowerUp {
	if !correct {
		return nil
	}
	kept := make([]domain.PowerUp, 0, len(active))
	for _, pu := range active {
		if keep, err := retainedOnCorrect(pu.Effect); err == nil && keep {
			kept = append(kept, pu)
		}
	}
	return kept
}

func availableWrong(q domain.Question, disabled []int) []int {
	wrong := q.WrongIndices()
	return slices.DeleteFunc(wrong, func(i int) bool { return slices.Contains(disabled, i) })
}

func pick(rnd *rand.Rand, from []int, n int) []int {
	if n > len(from) {
		n = len(from)
	}
	out := make([]int, 0, n)
	for _, i := range rnd.Perm(len(from))[:n] {
		out = append(out, from[i])
	}
	slices.Sort(out)
	return out
}

// starterInventory draws up to n catalog items with distinct names.
func starterInventory(catalog []domain.PowerUp, n int, rnd *rand.Rand) []domain.PowerUp {
	pool := distinctByName(catalog)
	if n <= 0 || len(pool) == 0 {
		return nil
	}
	if n > len(pool) {
		n = len(pool)
	}
	out := make([]domain.PowerUp, 0, n)
	for _, i := range rnd.Perm(len(pool))[:n] {
		out = append(out, pool[i])
	}
	return out
}

// rollLoot returns a catalog item the player does not already hold, or false when nothing drops.
func rollLoot(p *domain.Player, catalog []domain.PowerUp, limit int, chance float64, rnd *rand.Rand) (domain.PowerUp, bool) {
	if len(p.Inventory) >= limit || rnd.Float64() >= chance {
		return domain.PowerUp{}, false
	}
	pool := slices.DeleteFunc(distinctByName(catalog), func(pu domain.PowerUp) bool { return p.Holds(pu.Name) })
	if len(pool) == 0 {
		return domain.PowerUp{}, false
	}
	return pool[rnd.Intn(len(pool))], true
}

func distinctByName(catalog []domain.PowerUp) []domain.PowerUp {
	seen := make(map[string]struct{}, len(catalog))
	out := make([]domain.PowerUp, 0, len(catalog))
	for _, pu := range catalog {
		if _, ok := seen[pu.Name]; ok {
			continue
		}
		seen[pu.Name] = struct{}{}
		out = append(out, pu)
	}
	return out
}

// GlitchText scrambles roughly a third of the non-space characters of text.
func GlitchText(text string, rnd *rand.Rand) string {
	runes := []rune(text)
	for i, r := range runes {
		if r != ' ' && rnd.Float64() < 0.3 {
			runes[i] = glitchGlyphs[rnd.Intn(len(glitchGlyphs))]
		}
	}
	return string(runes)
}

// correctAnswerText renders the expected answer for intermission feedback.
func correctAnswerText(q domain.Question) string {
	parts := make([]string, 0, len(q.CorrectIndices))
	for _, i := range q.CorrectIndices {
		if i >= 0 && i < len(q.Options) {
			parts = append(parts, q.Options[i])
		}
	}
	if q.IsReorder() {
		return strings.Join(parts, " -> ")
	}
	return strings.Join(parts, ", ")
}

func chosenText(q domain.Question, chosen []int) string {
	parts := make([]string, 0, len(chosen))
	for _, i := range chosen {
		if i >= 0 && i < len(q.Options) {
			parts = append(parts, q.Options[i])
		}
	}
	return strings.Join(parts, ", ")
}
