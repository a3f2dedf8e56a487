package domain

import "fmt"

// EffectKind is the closed set of power-up effects the engine resolves.
type EffectKind int

const (
	EffectMultiplier EffectKind = iota + 1
	EffectFlatBonus
	EffectStreakAdd
	EffectGift
	EffectFiftyFifty
	EffectEraser
	EffectImmunity
	EffectTimeFreeze
	EffectStreakSaver
	EffectPowerPlay
	EffectDoubleJeopardy
	EffectGlitch
)

// AllEffectKinds lists every effect kind in declaration order.
var AllEffectKinds = []EffectKind{
	EffectMultiplier,
	EffectFlatBonus,
	EffectStreakAdd,
	EffectGift,
	EffectFiftyFifty,
	EffectEraser,
	EffectImmunity,
	EffectTimeFreeze,
	EffectStreakSaver,
	EffectPowerPlay,
	EffectDoubleJeopardy,
	EffectGlitch,
}

var effectTags = map[EffectKind]string{
	EffectMultiplier:     "multiplier",
	EffectFlatBonus:      "flat_bonus",
	EffectStreakAdd:      "streak_add",
	EffectGift:           "gift",
	EffectFiftyFifty:     "50-50",
	EffectEraser:         "eraser",
	EffectImmunity:       "immunity",
	EffectTimeFreeze:     "time_freeze",
	EffectStreakSaver:    "streak_saver",
	EffectPowerPlay:      "power_play",
	EffectDoubleJeopardy: "double_jeopardy",
	EffectGlitch:         "glitch",
}

// String returns the catalog tag of the effect.
func (k EffectKind) String() string {
	if tag, ok := effectTags[k]; ok {
		return tag
	}
	return fmt.Sprintf("effect(%d)", int(k))
}

// ParseEffectKind maps a catalog tag to its effect kind.
func ParseEffectKind(tag string) (EffectKind, error) {
	for kind, t := range effectTags {
		if t == tag {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownEffect, tag)
}

func (k EffectKind) MarshalText() ([]byte, error) {
	tag, ok := effectTags[k]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownEffect, int(k))
	}
	return []byte(tag), nil
}

func (k *EffectKind) UnmarshalText(text []byte) error {
	kind, err := ParseEffectKind(string(text))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}
