package app

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"slices"
	"time"

	"trivia-session-service/internal/domain"
)

// OptionView is one answer button as the player sees it.
type OptionView struct {
	Display  int    `json:"display"`
	Text     string `json:"text"`
	Selected bool   `json:"selected,omitempty"`
	Placed   bool   `json:"placed,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
}

// SlotView is one inventory slot.
type SlotView struct {
	Slot        int               `json:"slot"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Icon        string            `json:"icon,omitempty"`
	Effect      domain.EffectKind `json:"effect"`
	Usable      bool              `json:"usable"`
}

// QuestionView is the presentation-neutral state of a player's board.
type QuestionView struct {
	ContextID     string              `json:"contextId"`
	PlayerID      string              `json:"userId"`
	Board         string              `json:"board,omitempty"`
	Number        int                 `json:"number"`
	Total         int                 `json:"total"`
	Text          string              `json:"text,omitempty"`
	Kind          domain.QuestionKind `json:"type,omitempty"`
	MultiSelect   bool                `json:"multiSelect,omitempty"`
	ImageURL      string              `json:"imageUrl,omitempty"`
	TimeLimit     int                 `json:"timeLimit,omitempty"`
	Deadline      time.Time           `json:"deadline,omitempty"`
	Options       []OptionView        `json:"options,omitempty"`
	Sequence      []string            `json:"sequence,omitempty"`
	Inventory     []SlotView          `json:"inventory"`
	Active        []string            `json:"active,omitempty"`
	PowerPlay     bool                `json:"powerPlay,omitempty"`
	Glitched      bool                `json:"glitched,omitempty"`
	Score         int                 `json:"score"`
	Streak        int                 `json:"streak"`
	Rank          int                 `json:"rank"`
	Notifications []string            `json:"notifications,omitempty"`
	Completed     bool                `json:"completed"`
}

// Resolution is the intermission outcome of a submission or timeout.
type Resolution struct {
	ContextID      string          `json:"contextId"`
	PlayerID       string          `json:"userId"`
	Correct        bool            `json:"correct"`
	TimedOut       bool            `json:"timedOut"`
	Voided         bool            `json:"voided"`
	Points         int             `json:"points"`
	Score          int             `json:"score"`
	Streak         int             `json:"streak"`
	AwardedPowerUp *domain.PowerUp `json:"awardedPowerUp,omitempty"`
	GiftFeedback   string          `json:"giftFeedback,omitempty"`
	Explanation    string          `json:"explanation,omitempty"`
	CorrectAnswer  string          `json:"correctAnswer,omitempty"`
	Finished       bool            `json:"finished"`
}

// Activation describes a power-up that was just moved into the active set.
type Activation struct {
	PowerUp        domain.PowerUp `json:"powerUp"`
	Disabled       []int          `json:"disabled,omitempty"`
	PowerPlayUntil time.Time      `json:"powerPlayUntil,omitempty"`
	Glitch         bool           `json:"glitch,omitempty"`
	View           QuestionView   `json:"view"`
}

// Outcome is the result of a board click: an updated view or, for single-answer questions, a resolution.
type Outcome struct {
	View       *QuestionView `json:"view,omitempty"`
	Resolution *Resolution   `json:"resolution,omitempty"`
}

// DisplayOrder returns the display permutation of n options for one player's question.
// It depends only on its arguments and never touches shared random state.
func DisplayOrder(start time.Time, playerID string, question, n int) []int {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d_%s_%d", start.UnixNano(), playerID, question)
	return rand.New(rand.NewSource(int64(h.Sum64()))).Perm(n)
}

// OpenBoard binds a fresh board token to the player, clears the stale overlay and begins the current question.
func (s *Session) OpenBoard(playerID, board string) (QuestionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[playerID]
	if !ok {
		return QuestionView{}, domain.ErrParticipantNotFound
	}
	if !s.running {
		return QuestionView{}, domain.ErrInvalidTransition
	}
	p.Stale = false
	p.Board = board
	now := s.now()
	s.beginLocked(p, now)
	return s.viewLocked(p, now, false, true), nil
}

// CurrentQuestion begins the player's current question if needed and renders it.
func (s *Session) CurrentQuestion(playerID string) (QuestionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[playerID]
	if !ok {
		return QuestionView{}, domain.ErrParticipantNotFound
	}
	if !s.running {
		return QuestionView{}, domain.ErrInvalidTransition
	}
	now := s.now()
	s.beginLocked(p, now)
	return s.viewLocked(p, now, false, true), nil
}

// NextQuestion leaves the intermission and begins the next question on the player's board.
func (s *Session) NextQuestion(playerID, board string) (QuestionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.boardLocked(playerID, board)
	if err != nil {
		return QuestionView{}, err
	}
	if !s.running {
		return QuestionView{}, domain.ErrInvalidTransition
	}
	now := s.now()
	s.beginLocked(p, now)
	return s.viewLocked(p, now, false, true), nil
}

// RenderView renders a player's board without starting the clock, used for pushes.
func (s *Session) RenderView(playerID string, glitched bool) (QuestionView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[playerID]
	if !ok || p.Board == "" || p.Stale {
		return QuestionView{}, false
	}
	return s.viewLocked(p, s.now(), glitched, false), true
}

// Select handles a click on a displayed option: single-answer questions submit immediately,
// multi-select questions toggle and reorder questions append.
func (s *Session) Select(playerID, board string, display int) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.boardLocked(playerID, board)
	if err != nil {
		return Outcome{}, err
	}
	qIdx, q, err := s.activeQuestionLocked(p)
	if err != nil {
		return Outcome{}, err
	}
	now := s.now()

	switch {
	case q.IsReorder():
		if err := s.appendLocked(p, q, display); err != nil {
			return Outcome{}, err
		}
	case q.MultiSelect:
		if err := s.toggleLocked(p, q, display); err != nil {
			return Outcome{}, err
		}
	default:
		orig, err := s.originalLocked(p, q, display)
		if err != nil {
			return Outcome{}, err
		}
		res := s.submitLocked(p, qIdx, q, []int{orig}, now)
		if res.Voided {
			view := s.viewLocked(p, now, false, false)
			return Outcome{View: &view, Resolution: &res}, nil
		}
		return Outcome{Resolution: &res}, nil
	}
	view := s.viewLocked(p, now, false, false)
	return Outcome{View: &view}, nil
}

// ToggleOption adds or removes a display position from a multi-select answer.
func (s *Session) ToggleOption(playerID, board string, display int) (QuestionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.boardLocked(playerID, board)
	if err != nil {
		return QuestionView{}, err
	}
	_, q, err := s.activeQuestionLocked(p)
	if err != nil {
		return QuestionView{}, err
	}
	if !q.MultiSelect || q.IsReorder() {
		return QuestionView{}, domain.ErrInvalidTransition
	}
	if err := s.toggleLocked(p, q, display); err != nil {
		return QuestionView{}, err
	}
	return s.viewLocked(p, s.now(), false, false), nil
}

// AppendReorderStep places the option at a display position next in the player's sequence.
func (s *Session) AppendReorderStep(playerID, board string, display int) (QuestionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.boardLocked(playerID, board)
	if err != nil {
		return QuestionView{}, err
	}
	_, q, err := s.activeQuestionLocked(p)
	if err != nil {
		return QuestionView{}, err
	}
	if !q.IsReorder() {
		return QuestionView{}, domain.ErrInvalidTransition
	}
	if err := s.appendLocked(p, q, display); err != nil {
		return QuestionView{}, err
	}
	return s.viewLocked(p, s.now(), false, false), nil
}

// ResetReorder clears the placed sequence without penalty.
func (s *Session) ResetReorder(playerID, board string) (QuestionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.boardLocked(playerID, board)
	if err != nil {
		return QuestionView{}, err
	}
	_, q, err := s.activeQuestionLocked(p)
	if err != nil {
		return QuestionView{}, err
	}
	if !q.IsReorder() {
		return QuestionView{}, domain.ErrInvalidTransition
	}
	p.View.Reorder = nil
	return s.viewLocked(p, s.now(), false, false), nil
}

// Submit resolves the accumulated multi-select or reorder answer.
func (s *Session) Submit(playerID, board string) (Resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.boardLocked(playerID, board)
	if err != nil {
		return Resolution{}, err
	}
	qIdx, q, err := s.activeQuestionLocked(p)
	if err != nil {
		return Resolution{}, err
	}

	var chosen []int
	if q.IsReorder() {
		chosen = slices.Clone(p.View.Reorder)
	} else {
		if len(p.View.Selections) == 0 {
			return Resolution{}, domain.ErrEmptySelection
		}
		for _, d := range p.View.Selections {
			if d < 0 || d >= len(p.View.DisplayMap) {
				return Resolution{}, domain.ErrOptionNotFound
			}
			chosen = append(chosen, p.View.DisplayMap[d])
		}
	}
	return s.submitLocked(p, qIdx, q, chosen, s.now()), nil
}

// ActivatePowerUp moves an inventory slot into the active set. Rejections leave state untouched.
func (s *Session) ActivatePowerUp(playerID, board string, slot int) (Activation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.boardLocked(playerID, board)
	if err != nil {
		return Activation{}, err
	}
	_, q, err := s.activeQuestionLocked(p)
	if err != nil {
		return Activation{}, err
	}
	if len(p.Active) > 0 {
		return Activation{}, domain.ErrDuplicatePowerUp
	}
	if slot < 0 || slot >= len(p.Inventory) {
		return Activation{}, domain.ErrPowerUpNotFound
	}

	pu := p.Inventory[slot]
	plan, err := planActivation(pu, q, p.View.Disabled, s.rnd)
	if err != nil {
		return Activation{}, err
	}

	now := s.now()
	p.Inventory = slices.Delete(slices.Clone(p.Inventory), slot, slot+1)
	p.Active = append(p.Active, pu)
	p.View.Disabled = append(p.View.Disabled, plan.disable...)
	p.View.Selections = slices.DeleteFunc(p.View.Selections, func(d int) bool {
		return slices.Contains(plan.disable, p.View.DisplayMap[d])
	})
	s.usage = append(s.usage, domain.PowerUpUsage{
		PlayerID: p.ID,
		Name:     pu.Name,
		Effect:   pu.Effect,
		UsedAt:   now,
	})

	act := Activation{PowerUp: pu, Disabled: plan.disable, Glitch: plan.glitch}
	if plan.powerPlay {
		s.powerPlayActive = true
		s.powerPlayUntil = now.Add(s.rules.PowerPlay)
		act.PowerPlayUntil = s.powerPlayUntil
	}
	act.View = s.viewLocked(p, now, false, false)
	return act, nil
}

func (s *Session) boardLocked(playerID, board string) (*domain.Player, error) {
	p, ok := s.players[playerID]
	if !ok {
		return nil, domain.ErrParticipantNotFound
	}
	if p.Stale || p.Board == "" || board != p.Board {
		return nil, domain.ErrBoardExpired
	}
	return p, nil
}

func (s *Session) activeQuestionLocked(p *domain.Player) (int, domain.Question, error) {
	if !s.running || p.Completed || p.QuestionStartedAt.IsZero() {
		return 0, domain.Question{}, domain.ErrInvalidTransition
	}
	qIdx, ok := p.CurrentQuestion()
	if !ok || qIdx < 0 || qIdx >= len(s.quiz.Questions) {
		return 0, domain.Question{}, domain.ErrInvalidTransition
	}
	return qIdx, s.quiz.Questions[qIdx], nil
}

// beginLocked starts the answer window. A window already open is never restarted.
func (s *Session) beginLocked(p *domain.Player, now time.Time) {
	if p.Completed || !p.QuestionStartedAt.IsZero() {
		return
	}
	qIdx, ok := p.CurrentQuestion()
	if !ok {
		return
	}
	p.QuestionStartedAt = now
	if n := len(s.quiz.Questions[qIdx].Options); len(p.View.DisplayMap) != n {
		p.View.DisplayMap = DisplayOrder(s.startedAt, p.ID, qIdx, n)
	}
}

func (s *Session) originalLocked(p *domain.Player, q domain.Question, display int) (int, error) {
	if display < 0 || display >= len(p.View.DisplayMap) {
		return 0, domain.ErrOptionNotFound
	}
	orig := p.View.DisplayMap[display]
	if orig < 0 || orig >= len(q.Options) || slices.Contains(p.View.Disabled, orig) {
		return 0, domain.ErrOptionNotFound
	}
	return orig, nil
}

func (s *Session) toggleLocked(p *domain.Player, q domain.Question, display int) error {
	if _, err := s.originalLocked(p, q, display); err != nil {
		return err
	}
	if i := slices.Index(p.View.Selections, display); i >= 0 {
		p.View.Selections = slices.Delete(p.View.Selections, i, i+1)
		return nil
	}
	p.View.Selections = append(p.View.Selections, display)
	slices.Sort(p.View.Selections)
	return nil
}

func (s *Session) appendLocked(p *domain.Player, q domain.Question, display int) error {
	orig, err := s.originalLocked(p, q, display)
	if err != nil {
		return err
	}
	if slices.Contains(p.View.Reorder, orig) {
		return domain.ErrOptionNotFound
	}
	p.View.Reorder = append(p.View.Reorder, orig)
	return nil
}

// submitLocked grades chosen (original indices) and resolves the question, or voids the attempt under IMMUNITY.
func (s *Session) submitLocked(p *domain.Player, qIdx int, q domain.Question, chosen []int, now time.Time) Resolution {
	elapsed := now.Sub(p.QuestionStartedAt)
	if p.HasActive(domain.EffectTimeFreeze) {
		elapsed = frozenElapsed
	}
	timedOut := elapsed > q.Limit()
	correct := q.Grade(chosen)
	success := correct && !timedOut

	p.AnswerLog = append(p.AnswerLog, domain.AnswerRecord{
		QuestionIndex: qIdx,
		QuestionText:  q.Text,
		Chosen:        slices.Clone(chosen),
		ChosenText:    chosenText(q, chosen),
		Correct:       success,
		Elapsed:       elapsed,
	})

	res := Resolution{
		ContextID: s.contextID,
		PlayerID:  p.ID,
		TimedOut:  timedOut,
	}

	if !correct {
		if i := slices.IndexFunc(p.Active, func(pu domain.PowerUp) bool { return pu.Effect == domain.EffectImmunity }); i >= 0 {
			// The attempt stays in the answer log as incorrect; nothing else changes.
			p.Active = slices.Delete(slices.Clone(p.Active), i, i+1)
			p.View.Selections = nil
			p.View.Reorder = nil
			res.Voided = true
			res.Score = p.Score
			res.Streak = p.Streak
			return res
		}
	}

	if success {
		points := ComputeScore(ScoreInput{
			Elapsed:   elapsed,
			Limit:     q.Limit(),
			Weight:    q.Weight,
			Streak:    p.Streak,
			Active:    p.Active,
			PowerPlay: s.powerPlayOpenLocked(now),
			Correct:   true,
		})
		p.Score += points
		p.Streak++
		p.Correct++
		p.AnswerLog[len(p.AnswerLog)-1].Points = points
		res.Correct = true
		res.Points = points

		if loot, ok := rollLoot(p, s.catalog, s.rules.InventoryCap, s.rules.LootChance, s.rnd); ok {
			p.Inventory = append(p.Inventory, loot)
			res.AwardedPowerUp = &loot
		}
		res.GiftFeedback = s.giftLocked(p)
	} else {
		s.failLocked(p, qIdx)
		res.Explanation = q.Explanation
	}

	p.Active = consumeActive(p.Active, success)
	s.advanceLocked(p, now)

	res.Score = p.Score
	res.Streak = p.Streak
	res.CorrectAnswer = correctAnswerText(q)
	res.Finished = p.Completed
	return res
}

// timeoutLocked resolves an overdue question exactly like an incorrect answer.
func (s *Session) timeoutLocked(p *domain.Player, qIdx int, q domain.Question, now time.Time) Resolution {
	s.failLocked(p, qIdx)
	p.AnswerLog = append(p.AnswerLog, domain.AnswerRecord{
		QuestionIndex: qIdx,
		QuestionText:  q.Text,
		Chosen:        []int{},
		ChosenText:    domain.TimeoutChoice,
		Elapsed:       q.Limit(),
	})
	p.Active = consumeActive(p.Active, false)
	s.advanceLocked(p, now)

	return Resolution{
		ContextID:     s.contextID,
		PlayerID:      p.ID,
		TimedOut:      true,
		Score:         p.Score,
		Streak:        p.Streak,
		Explanation:   q.Explanation,
		CorrectAnswer: correctAnswerText(q),
		Finished:      p.Completed,
	}
}

func (s *Session) failLocked(p *domain.Player, qIdx int) {
	p.Incorrect++
	s.wrongCounts[qIdx]++
	if p.HasActive(domain.EffectDoubleJeopardy) {
		p.Score = 0
	}
	if !p.HasActive(domain.EffectStreakSaver) {
		p.Streak = 0
	}
}

func (s *Session) advanceLocked(p *domain.Player, now time.Time) {
	p.View = domain.ViewState{}
	p.Position++
	p.QuestionStartedAt = time.Time{}
	if p.Position >= len(p.QuestionOrder) {
		p.Position = len(p.QuestionOrder)
		p.Completed = true
		p.CompletedAt = now
	}
}

// giftLocked pays out active GIFT effects to a random other player.
func (s *Session) giftLocked(p *domain.Player) string {
	feedback := ""
	for _, pu := range p.Active {
		if pu.Effect != domain.EffectGift {
			continue
		}
		others := make([]*domain.Player, 0, len(s.joinOrder))
		for _, id := range s.joinOrder {
			if other, ok := s.players[id]; ok && id != p.ID {
				others = append(others, other)
			}
		}
		if len(others) == 0 {
			feedback = "Gift failed (no players)"
			continue
		}
		amount := int(pu.Value)
		rec := others[s.rnd.Intn(len(others))]
		rec.Score += amount
		rec.Notifications = append(rec.Notifications, fmt.Sprintf("%s gifted you %d pts!", p.DisplayName, amount))
		feedback = fmt.Sprintf("Gifted %d pts to %s!", amount, rec.DisplayName)
	}
	return feedback
}

// viewLocked renders p's board. drain hands pending notifications over to the view.
func (s *Session) viewLocked(p *domain.Player, now time.Time, glitched, drain bool) QuestionView {
	view := QuestionView{
		ContextID: s.contextID,
		PlayerID:  p.ID,
		Board:     p.Board,
		Number:    p.Position + 1,
		Total:     len(p.QuestionOrder),
		PowerPlay: s.powerPlayOpenLocked(now),
		Glitched:  glitched,
		Score:     p.Score,
		Streak:    p.Streak,
		Rank:      s.rankOfLocked(p.ID),
		Completed: p.Completed,
		Inventory: make([]SlotView, 0, len(p.Inventory)),
	}
	for _, pu := range p.Active {
		view.Active = append(view.Active, pu.Name)
	}
	if drain && len(p.Notifications) > 0 {
		view.Notifications = p.Notifications
		p.Notifications = nil
	}

	qIdx, ok := p.CurrentQuestion()
	if p.Completed || !ok {
		view.Number = view.Total
		for i, pu := range p.Inventory {
			view.Inventory = append(view.Inventory, slotView(i, pu, false))
		}
		return view
	}

	q := s.quiz.Questions[qIdx]
	scramble := func(text string) string {
		if glitched {
			return GlitchText(text, s.rnd)
		}
		return text
	}

	view.Text = scramble(q.Text)
	view.Kind = q.Kind
	view.MultiSelect = q.MultiSelect
	view.ImageURL = q.ImageURL
	view.TimeLimit = q.TimeLimit
	if !p.QuestionStartedAt.IsZero() {
		view.Deadline = p.QuestionStartedAt.Add(q.Limit())
	}
	for display, orig := range p.View.DisplayMap {
		if orig < 0 || orig >= len(q.Options) {
			continue
		}
		view.Options = append(view.Options, OptionView{
			Display:  display,
			Text:     scramble(q.Options[orig]),
			Selected: slices.Contains(p.View.Selections, display),
			Placed:   slices.Contains(p.View.Reorder, orig),
			Disabled: slices.Contains(p.View.Disabled, orig) || (q.IsReorder() && slices.Contains(p.View.Reorder, orig)),
		})
	}
	for _, orig := range p.View.Reorder {
		if orig >= 0 && orig < len(q.Options) {
			view.Sequence = append(view.Sequence, scramble(q.Options[orig]))
		}
	}

	blocked := len(p.Active) > 0
	for i, pu := range p.Inventory {
		usable := !blocked && checkEligible(pu, q, p.View.Disabled) == nil
		slot := slotView(i, pu, usable)
		slot.Name = scramble(slot.Name)
		slot.Description = scramble(slot.Description)
		view.Inventory = append(view.Inventory, slot)
	}
	return view
}

func slotView(i int, pu domain.PowerUp, usable bool) SlotView {
	return SlotView{
		Slot:        i,
		Name:        pu.Name,
		Description: pu.Description,
		Icon:        pu.Icon,
		Effect:      pu.Effect,
		Usable:      usable,
	}
}
