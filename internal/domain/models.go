package domain

import (
	"slices"
	"time"
)

// QuestionKind selects how answers to a question are accumulated.
type QuestionKind string

const (
	QuestionStandard QuestionKind = "standard"
	QuestionReorder  QuestionKind = "reorder"
)

const (
	// DefaultTimeLimit applies to questions authored without a time limit.
	DefaultTimeLimit = 30
	// TimeoutChoice is the chosen-text sentinel logged for timed out questions.
	TimeoutChoice = "TIMEOUT"
)

// Question is one quiz item. For reorder questions CorrectIndices is the exact required sequence.
type Question struct {
	Text           string       `json:"text" yaml:"text"`
	Options        []string     `json:"options" yaml:"options"`
	CorrectIndices []int        `json:"correct_indices" yaml:"correct_indices"`
	Kind           QuestionKind `json:"type,omitempty" yaml:"type,omitempty"`
	TimeLimit      int          `json:"time_limit,omitempty" yaml:"time_limit,omitempty"` // seconds
	Weight         float64      `json:"weight,omitempty" yaml:"weight,omitempty"`
	Explanation    string       `json:"explanation,omitempty" yaml:"explanation,omitempty"`
	ImageURL       string       `json:"image_url,omitempty" yaml:"image_url,omitempty"`
	MultiSelect    bool         `json:"allow_multi_select,omitempty" yaml:"allow_multi_select,omitempty"`
}

// Limit returns the answer window as a duration.
func (q Question) Limit() time.Duration {
	return time.Duration(q.TimeLimit) * time.Second
}

// IsReorder reports whether the question expects an ordered sequence.
func (q Question) IsReorder() bool {
	return q.Kind == QuestionReorder
}

// NeedsExplicitSubmit reports whether selections accumulate until an explicit submit.
func (q Question) NeedsExplicitSubmit() bool {
	return q.IsReorder() || q.MultiSelect
}

// WrongIndices returns the original indices of options that are not correct.
func (q Question) WrongIndices() []int {
	wrong := make([]int, 0, len(q.Options))
	for i := range q.Options {
		if !slices.Contains(q.CorrectIndices, i) {
			wrong = append(wrong, i)
		}
	}
	return wrong
}

// Grade reports whether the chosen original indices answer the question.
func (q Question) Grade(chosen []int) bool {
	if q.IsReorder() {
		return slices.Equal(chosen, q.CorrectIndices)
	}
	return sameSet(chosen, q.CorrectIndices)
}

func sameSet(a, b []int) bool {
	as := dedupeSorted(a)
	bs := dedupeSorted(b)
	return slices.Equal(as, bs)
}

func dedupeSorted(in []int) []int {
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}

// Quiz is an ordered, read-only list of questions shared by every player of a session.
type Quiz struct {
	Name      string     `json:"name" yaml:"name"`
	CreatorID string     `json:"creator_id" yaml:"creator_id"`
	Questions []Question `json:"questions" yaml:"questions"`
}

// Normalize fills authoring defaults (kind, time limit, weight).
func (q Quiz) Normalize() Quiz {
	out := q
	out.Questions = make([]Question, len(q.Questions))
	for i, question := range q.Questions {
		if question.Kind == "" {
			question.Kind = QuestionStandard
		}
		if question.TimeLimit <= 0 {
			question.TimeLimit = DefaultTimeLimit
		}
		if question.Weight == 0 {
			question.Weight = 1.0
		}
		out.Questions[i] = question
	}
	return out
}

// PowerUp is an immutable catalog entry; players hold copies in inventory.
type PowerUp struct {
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description" yaml:"description"`
	Effect      EffectKind `json:"effect" yaml:"effect"`
	Value       float64    `json:"value" yaml:"value"`
	Icon        string     `json:"icon,omitempty" yaml:"icon,omitempty"`
}

// PowerUpUsage is one entry of a session's power-up audit trail.
type PowerUpUsage struct {
	PlayerID string     `json:"user_id"`
	Name     string     `json:"name"`
	Effect   EffectKind `json:"effect,omitempty"`
	UsedAt   time.Time  `json:"used_at"`
}

// AnswerRecord is one resolved (or voided) attempt in a player's answer log.
type AnswerRecord struct {
	QuestionIndex int           `json:"q_index"`
	QuestionText  string        `json:"q_text"`
	Chosen        []int         `json:"chosen"`
	ChosenText    string        `json:"chosen_text"`
	Correct       bool          `json:"is_correct"`
	Elapsed       time.Duration `json:"elapsed"`
	Points        int           `json:"points"`
}

// ViewState is the per-question presentation state that must survive a re-render or restart.
type ViewState struct {
	// DisplayMap maps display position to original option index.
	DisplayMap []int `json:"map,omitempty"`
	// Selections holds selected display positions for multi-select questions.
	Selections []int `json:"selections,omitempty"`
	// Reorder holds original option indices in the order the player placed them.
	Reorder []int `json:"reorder,omitempty"`
	// Disabled holds original option indices removed by 50/50 or eraser.
	Disabled []int `json:"disabled,omitempty"`
}

// Player is a participant's progression through a session.
type Player struct {
	ID            string    `json:"userId"`
	DisplayName   string    `json:"displayName"`
	AvatarURL     string    `json:"avatarUrl,omitempty"`
	Score         int       `json:"score"`
	Streak        int       `json:"streak"`
	QuestionOrder []int     `json:"questionOrder"`
	Position      int       `json:"position"`
	Completed     bool      `json:"completed"`
	Correct       int       `json:"correct"`
	Incorrect     int       `json:"incorrect"`
	Inventory     []PowerUp `json:"inventory"`
	Active        []PowerUp `json:"active"`

	QuestionStartedAt time.Time      `json:"questionStartedAt"`
	JoinedAt          time.Time      `json:"joinedAt"`
	CompletedAt       time.Time      `json:"completedAt"`
	AnswerLog         []AnswerRecord `json:"answerLog"`
	View              ViewState      `json:"view"`
	Notifications     []string       `json:"notifications,omitempty"`

	// Stale marks a player restored from a snapshot whose old board must be refused.
	Stale bool `json:"stale"`
	// Board is the token of the player's current presentation handle; never persisted.
	Board string `json:"-"`
}

// CurrentQuestion returns the original question index at the player's position.
func (p *Player) CurrentQuestion() (int, bool) {
	if p.Position < 0 || p.Position >= len(p.QuestionOrder) {
		return 0, false
	}
	return p.QuestionOrder[p.Position], true
}

// HasActive reports whether an effect of the given kind is currently active.
func (p *Player) HasActive(kind EffectKind) bool {
	return slices.ContainsFunc(p.Active, func(pu PowerUp) bool { return pu.Effect == kind })
}

// Holds reports whether the inventory contains a power-up with the given name.
func (p *Player) Holds(name string) bool {
	return slices.ContainsFunc(p.Inventory, func(pu PowerUp) bool { return pu.Name == name })
}

// Clone returns a deep copy safe to hand outside the session lock.
func (p *Player) Clone() Player {
	out := *p
	out.QuestionOrder = slices.Clone(p.QuestionOrder)
	out.Inventory = slices.Clone(p.Inventory)
	out.Active = slices.Clone(p.Active)
	out.Notifications = slices.Clone(p.Notifications)
	out.AnswerLog = make([]AnswerRecord, len(p.AnswerLog))
	for i, rec := range p.AnswerLog {
		rec.Chosen = slices.Clone(rec.Chosen)
		out.AnswerLog[i] = rec
	}
	out.View = ViewState{
		DisplayMap: slices.Clone(p.View.DisplayMap),
		Selections: slices.Clone(p.View.Selections),
		Reorder:    slices.Clone(p.View.Reorder),
		Disabled:   slices.Clone(p.View.Disabled),
	}
	return out
}

// LeaderboardEntry is a snapshot-friendly view of a participant.
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
	Streak      int    `json:"streak"`
	Progress    int    `json:"progress"`
	Total       int    `json:"total"`
	Completed   bool   `json:"completed"`
}

// Leaderboard captures the ordered scoreboard for a session.
type Leaderboard struct {
	ContextID string             `json:"contextId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}
