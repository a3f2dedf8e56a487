package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"time"

	"trivia-session-service/internal/domain"
)

// SchemaVersion is the snapshot layout written by this build.
const SchemaVersion = 2

// SessionRecord is the durable form of a session. Board tokens and connections are never stored.
type SessionRecord struct {
	SchemaVersion int                     `json:"schema_version"`
	ContextID     string                  `json:"context_id"`
	QuizName      string                  `json:"quiz_name"`
	Running       bool                    `json:"is_running"`
	StartedAt     time.Time               `json:"start_time"`
	EndedAt       time.Time               `json:"end_time"`
	PowerPlay     PowerPlayRecord         `json:"global_powerplay"`
	WrongCounts   map[int]int             `json:"question_wrong_counts"`
	Usage         []domain.PowerUpUsage   `json:"powerup_usage_log"`
	JoinOrder     []string                `json:"join_order"`
	Players       map[string]PlayerRecord `json:"players"`
}

type PowerPlayRecord struct {
	Active bool      `json:"active"`
	Expiry time.Time `json:"expiry"`
}

type PlayerRecord struct {
	ID                string                `json:"user_id"`
	DisplayName       string                `json:"name"`
	AvatarURL         string                `json:"avatar_url,omitempty"`
	Score             int                   `json:"score"`
	Streak            int                   `json:"streak"`
	Position          int                   `json:"current_q_index"`
	QuestionOrder     []int                 `json:"question_order"`
	Inventory         []domain.PowerUp      `json:"inventory"`
	Active            []domain.PowerUp      `json:"active_powerups"`
	Completed         bool                  `json:"completed"`
	Correct           int                   `json:"correct_answers"`
	Incorrect         int                   `json:"incorrect_answers"`
	QuestionStartedAt time.Time             `json:"current_q_timestamp"`
	JoinedAt          time.Time             `json:"join_time"`
	CompletedAt       time.Time             `json:"completion_timestamp"`
	AnswerLog         []domain.AnswerRecord `json:"answers_log"`
	Notifications     []string              `json:"notifications,omitempty"`
	View              domain.ViewState      `json:"view_state"`
}

// Ended reports whether the session was finalized before the snapshot was taken.
func (r SessionRecord) Ended() bool {
	return !r.EndedAt.IsZero()
}

// Snapshot captures the session under its lock.
func (s *Session) Snapshot() SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := SessionRecord{
		SchemaVersion: SchemaVersion,
		ContextID:     s.contextID,
		QuizName:      s.quiz.Name,
		Running:       s.running,
		StartedAt:     s.startedAt,
		EndedAt:       s.endedAt,
		PowerPlay:     PowerPlayRecord{Active: s.powerPlayActive, Expiry: s.powerPlayUntil},
		WrongCounts:   make(map[int]int, len(s.wrongCounts)),
		Usage:         slices.Clone(s.usage),
		JoinOrder:     slices.Clone(s.joinOrder),
		Players:       make(map[string]PlayerRecord, len(s.players)),
	}
	for k, v := range s.wrongCounts {
		rec.WrongCounts[k] = v
	}
	for id, p := range s.players {
		c := p.Clone()
		rec.Players[id] = PlayerRecord{
			ID:                c.ID,
			DisplayName:       c.DisplayName,
			AvatarURL:         c.AvatarURL,
			Score:             c.Score,
			Streak:            c.Streak,
			Position:          c.Position,
			QuestionOrder:     c.QuestionOrder,
			Inventory:         c.Inventory,
			Active:            c.Active,
			Completed:         c.Completed,
			Correct:           c.Correct,
			Incorrect:         c.Incorrect,
			QuestionStartedAt: c.QuestionStartedAt,
			JoinedAt:          c.JoinedAt,
			CompletedAt:       c.CompletedAt,
			AnswerLog:         c.AnswerLog,
			Notifications:     c.Notifications,
			View:              c.View,
		}
	}
	return rec
}

// Restore rebuilds a session from a record. Every restored player is marked stale so the first
// action on a pre-restart board is refused.
func Restore(ctx context.Context, rec SessionRecord, quizzes QuizRepository, opts ...SessionOption) (*Session, error) {
	if rec.ContextID == "" {
		return nil, errors.New("snapshot record has no context id")
	}
	quiz, err := quizzes.GetQuiz(ctx, rec.QuizName)
	if err != nil {
		return nil, fmt.Errorf("load quiz %q: %w", rec.QuizName, err)
	}

	s := NewSession(rec.ContextID, quiz, opts...)
	n := len(s.quiz.Questions)

	for id, pr := range rec.Players {
		if !isPermutation(pr.QuestionOrder, n) {
			return nil, fmt.Errorf("player %s: question order does not match quiz %q", id, rec.QuizName)
		}
		if pr.Position < 0 || pr.Position > n {
			return nil, fmt.Errorf("player %s: position %d out of range", id, pr.Position)
		}
		if pr.ID == "" {
			pr.ID = id
		}
		completed := pr.Position == n
		view := domain.ViewState{}
		if !completed {
			qIdx := pr.QuestionOrder[pr.Position]
			view = restoreView(pr.View, len(quiz.Questions[qIdx].Options))
			if len(view.DisplayMap) == 0 && !pr.QuestionStartedAt.IsZero() {
				view.DisplayMap = DisplayOrder(rec.StartedAt, pr.ID, qIdx, len(quiz.Questions[qIdx].Options))
			}
		}
		p := &domain.Player{
			ID:                pr.ID,
			DisplayName:       pr.DisplayName,
			AvatarURL:         pr.AvatarURL,
			Score:             pr.Score,
			Streak:            pr.Streak,
			QuestionOrder:     pr.QuestionOrder,
			Position:          pr.Position,
			Completed:         completed,
			Correct:           pr.Correct,
			Incorrect:         pr.Incorrect,
			Inventory:         pr.Inventory,
			Active:            pr.Active,
			QuestionStartedAt: pr.QuestionStartedAt,
			JoinedAt:          pr.JoinedAt,
			CompletedAt:       pr.CompletedAt,
			AnswerLog:         pr.AnswerLog,
			Notifications:     pr.Notifications,
			View:              view,
			Stale:             true,
		}
		s.players[id] = p
	}

	for _, id := range rec.JoinOrder {
		if _, ok := s.players[id]; ok && !slices.Contains(s.joinOrder, id) {
			s.joinOrder = append(s.joinOrder, id)
		}
	}
	var missing []string
	for id := range s.players {
		if !slices.Contains(s.joinOrder, id) {
			missing = append(missing, id)
		}
	}
	sort.Slice(missing, func(i, j int) bool {
		return s.players[missing[i]].JoinedAt.Before(s.players[missing[j]].JoinedAt)
	})
	s.joinOrder = append(s.joinOrder, missing...)

	s.running = rec.Running
	s.startedAt = rec.StartedAt
	s.endedAt = rec.EndedAt
	s.powerPlayActive = rec.PowerPlay.Active
	s.powerPlayUntil = rec.PowerPlay.Expiry
	for k, v := range rec.WrongCounts {
		s.wrongCounts[k] = v
	}
	s.usage = slices.Clone(rec.Usage)
	return s, nil
}

// restoreView keeps a stored view only when every index in it fits a question with n options.
// Anything else is dropped; the view is transient and is rebuilt on the next render.
func restoreView(v domain.ViewState, n int) domain.ViewState {
	if len(v.DisplayMap) > 0 && !isPermutation(v.DisplayMap, n) {
		return domain.ViewState{}
	}
	for _, d := range v.Selections {
		if d < 0 || d >= len(v.DisplayMap) {
			return domain.ViewState{}
		}
	}
	if !inRange(v.Reorder, n) || len(compactSorted(v.Reorder)) != len(v.Reorder) || !inRange(v.Disabled, n) {
		return domain.ViewState{}
	}
	return v
}

func inRange(idx []int, n int) bool {
	for _, i := range idx {
		if i < 0 || i >= n {
			return false
		}
	}
	return true
}

func compactSorted(in []int) []int {
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}

func isPermutation(order []int, n int) bool {
	if len(order) != n {
		return false
	}
	seen := make([]bool, n)
	for _, i := range order {
		if i < 0 || i >= n || seen[i] {
			return false
		}
		seen[i] = true
	}
	return true
}

// EncodeRecord serializes a record at the current schema version.
func EncodeRecord(rec SessionRecord) ([]byte, error) {
	rec.SchemaVersion = SchemaVersion
	return json.Marshal(rec)
}

// DecodeRecord parses a stored record, migrating older layouts to the current schema.
func DecodeRecord(data []byte) (SessionRecord, error) {
	var probe struct {
		SchemaVersion *int `json:"schema_version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return SessionRecord{}, fmt.Errorf("decode snapshot: %w", err)
	}

	version := 1
	if probe.SchemaVersion != nil {
		version = *probe.SchemaVersion
	}

	switch version {
	case SchemaVersion:
		var rec SessionRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return SessionRecord{}, fmt.Errorf("decode snapshot v%d: %w", version, err)
		}
		return rec, nil
	case 1:
		return migrateV1(data)
	default:
		return SessionRecord{}, fmt.Errorf("%w: %d", domain.ErrUnsupportedSchema, version)
	}
}

// v1 is the unversioned layout: epoch seconds as floats, numeric ids, string-keyed counters.
type v1Session struct {
	ChannelID       json.RawMessage     `json:"channel_id"`
	QuizName        string              `json:"quiz_name"`
	IsRunning       bool                `json:"is_running"`
	StartTime       float64             `json:"start_time"`
	EndTime         float64             `json:"end_time"`
	PowerPlayActive bool                `json:"global_powerplay_active"`
	PowerPlayEnd    float64             `json:"global_powerplay_end"`
	QuestionStats   map[string]int      `json:"question_stats"`
	UsageLog        []v1Usage           `json:"powerup_usage_log"`
	Players         map[string]v1Player `json:"players"`
}

type v1Usage struct {
	UserID json.RawMessage `json:"user_id"`
	Name   string          `json:"name"`
}

type v1Player struct {
	UserID              json.RawMessage  `json:"user_id"`
	Name                string           `json:"name"`
	AvatarURL           string           `json:"avatar_url"`
	Score               int              `json:"score"`
	Streak              int              `json:"streak"`
	CurrentQIndex       int              `json:"current_q_index"`
	QuestionOrder       []int            `json:"question_order"`
	Inventory           []domain.PowerUp `json:"inventory"`
	ActivePowerUps      []domain.PowerUp `json:"active_powerups"`
	Completed           bool             `json:"completed"`
	Notifications       []string         `json:"notifications"`
	CorrectAnswers      int              `json:"correct_answers"`
	IncorrectAnswers    int              `json:"incorrect_answers"`
	CurrentQTimestamp   float64          `json:"current_q_timestamp"`
	JoinTime            float64          `json:"join_time"`
	CompletionTimestamp float64          `json:"completion_timestamp"`
	AnswersLog          []v1Answer       `json:"answers_log"`
	ViewState           v1View           `json:"view_state"`
}

type v1Answer struct {
	QIndex     int     `json:"q_index"`
	QText      string  `json:"q_text"`
	Chosen     []int   `json:"chosen"`
	ChosenText string  `json:"chosen_text"`
	IsCorrect  bool    `json:"is_correct"`
	Time       float64 `json:"time"`
	Points     int     `json:"points"`
}

type v1View struct {
	Map        map[string]int `json:"map"`
	Selections []int          `json:"selections"`
	Reorder    []int          `json:"reorder"`
}

func migrateV1(data []byte) (SessionRecord, error) {
	var old v1Session
	if err := json.Unmarshal(data, &old); err != nil {
		return SessionRecord{}, fmt.Errorf("decode snapshot v1: %w", err)
	}

	rec := SessionRecord{
		SchemaVersion: SchemaVersion,
		ContextID:     rawID(old.ChannelID),
		QuizName:      old.QuizName,
		Running:       old.IsRunning,
		StartedAt:     fromEpoch(old.StartTime),
		EndedAt:       fromEpoch(old.EndTime),
		PowerPlay:     PowerPlayRecord{Active: old.PowerPlayActive, Expiry: fromEpoch(old.PowerPlayEnd)},
		WrongCounts:   make(map[int]int, len(old.QuestionStats)),
		Players:       make(map[string]PlayerRecord, len(old.Players)),
	}
	for k, v := range old.QuestionStats {
		idx, err := strconv.Atoi(k)
		if err != nil {
			return SessionRecord{}, fmt.Errorf("decode snapshot v1: question stat key %q: %w", k, err)
		}
		rec.WrongCounts[idx] = v
	}
	for _, u := range old.UsageLog {
		rec.Usage = append(rec.Usage, domain.PowerUpUsage{PlayerID: rawID(u.UserID), Name: u.Name})
	}

	type joined struct {
		id string
		at time.Time
	}
	var order []joined
	for key, op := range old.Players {
		id := rawID(op.UserID)
		if id == "" {
			id = key
		}
		pr := PlayerRecord{
			ID:                id,
			DisplayName:       op.Name,
			AvatarURL:         op.AvatarURL,
			Score:             op.Score,
			Streak:            op.Streak,
			Position:          op.CurrentQIndex,
			QuestionOrder:     op.QuestionOrder,
			Inventory:         op.Inventory,
			Active:            op.ActivePowerUps,
			Completed:         op.Completed,
			Correct:           op.CorrectAnswers,
			Incorrect:         op.IncorrectAnswers,
			QuestionStartedAt: fromEpoch(op.CurrentQTimestamp),
			JoinedAt:          fromEpoch(op.JoinTime),
			CompletedAt:       fromEpoch(op.CompletionTimestamp),
			Notifications:     op.Notifications,
			View: domain.ViewState{
				DisplayMap: displayMapFromV1(op.ViewState.Map),
				Selections: op.ViewState.Selections,
				Reorder:    op.ViewState.Reorder,
			},
		}
		for _, a := range op.AnswersLog {
			pr.AnswerLog = append(pr.AnswerLog, domain.AnswerRecord{
				QuestionIndex: a.QIndex,
				QuestionText:  a.QText,
				Chosen:        a.Chosen,
				ChosenText:    a.ChosenText,
				Correct:       a.IsCorrect,
				Elapsed:       time.Duration(a.Time * float64(time.Second)),
				Points:        a.Points,
			})
		}
		rec.Players[id] = pr
		order = append(order, joined{id: id, at: pr.JoinedAt})
	}
	sort.Slice(order, func(i, j int) bool {
		if !order[i].at.Equal(order[j].at) {
			return order[i].at.Before(order[j].at)
		}
		return order[i].id < order[j].id
	})
	for _, j := range order {
		rec.JoinOrder = append(rec.JoinOrder, j.id)
	}
	return rec, nil
}

func displayMapFromV1(m map[string]int) []int {
	if len(m) == 0 {
		return nil
	}
	out := make([]int, len(m))
	for k, v := range m {
		i, err := strconv.Atoi(k)
		if err != nil || i < 0 || i >= len(out) {
			return nil
		}
		out[i] = v
	}
	return out
}

func fromEpoch(sec float64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC()
}

func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
