package memory

import (
	"context"
	"slices"

	"trivia-session-service/internal/domain"
)

// DefaultPowerUps is the stock catalog used when no catalog source is configured.
var DefaultPowerUps = []domain.PowerUp{
	{Name: "Streak Saver", Description: "Protects streak on wrong answer", Effect: domain.EffectStreakSaver, Icon: "🛡️"},
	{Name: "50/50", Description: "Removes half of incorrect answers", Effect: domain.EffectFiftyFifty, Icon: "✂️"},
	{Name: "2x Multiplier", Description: "Double points for next question", Effect: domain.EffectMultiplier, Value: 2.0, Icon: "✖️"},
	{Name: "Supersonic", Description: "High multiplier if answered fast", Effect: domain.EffectMultiplier, Value: 2.5, Icon: "🚀"},
	{Name: "Time Freeze", Description: "Freezes timer for max points", Effect: domain.EffectTimeFreeze, Icon: "❄️"},
	{Name: "Eraser", Description: "Removes one wrong option", Effect: domain.EffectEraser, Icon: "✏️"},
	{Name: "Immunity", Description: "Second chance if wrong", Effect: domain.EffectImmunity, Icon: "💉"},
	{Name: "Gift", Description: "Give 800pts to another player", Effect: domain.EffectGift, Value: 800, Icon: "🎁"},
	{Name: "Double Jeopardy", Description: "2x points if correct, lose all if wrong", Effect: domain.EffectDoubleJeopardy, Icon: "⚖️"},
	{Name: "Power Play", Description: "+50% score for everyone (20s)", Effect: domain.EffectPowerPlay, Icon: "📢"},
	{Name: "Glitch", Description: "Glitch everyone's screen (10s)", Effect: domain.EffectGlitch, Icon: "👾"},
}

// Catalog is a fixed power-up catalog.
type Catalog struct {
	items []domain.PowerUp
}

func NewCatalog(items []domain.PowerUp) *Catalog {
	return &Catalog{items: slices.Clone(items)}
}

// NewDefaultCatalog returns the stock catalog.
func NewDefaultCatalog() *Catalog {
	return NewCatalog(DefaultPowerUps)
}

func (c *Catalog) PowerUps(context.Context) ([]domain.PowerUp, error) {
	return slices.Clone(c.items), nil
}
