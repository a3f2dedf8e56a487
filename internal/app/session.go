package app

import (
	"math/rand"
	"slices"
	"sort"
	"sync"
	"time"

	"trivia-session-service/internal/domain"
)

// Rules tunes engine timing and loot. Zero fields fall back to DefaultRules.
type Rules struct {
	TimeoutGrace     time.Duration
	PowerPlay        time.Duration
	Glitch           time.Duration
	StarterInventory int
	InventoryCap     int
	LootChance       float64
}

// DefaultRules returns the stock engine tuning.
func DefaultRules() Rules {
	return Rules{
		TimeoutGrace:     time.Second,
		PowerPlay:        20 * time.Second,
		Glitch:           10 * time.Second,
		StarterInventory: 3,
		InventoryCap:     3,
		LootChance:       0.4,
	}
}

func (r Rules) withDefaults() Rules {
	def := DefaultRules()
	if r.TimeoutGrace <= 0 {
		r.TimeoutGrace = def.TimeoutGrace
	}
	if r.PowerPlay <= 0 {
		r.PowerPlay = def.PowerPlay
	}
	if r.Glitch <= 0 {
		r.Glitch = def.Glitch
	}
	if r.StarterInventory == 0 {
		r.StarterInventory = def.StarterInventory
	}
	if r.InventoryCap == 0 {
		r.InventoryCap = def.InventoryCap
	}
	if r.LootChance == 0 {
		r.LootChance = def.LootChance
	}
	return r
}

// SessionOption customizes a Session at construction.
type SessionOption func(*Session)

// WithClock injects the time source, mostly for deterministic tests.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// WithRand injects the random source used for orders, loot and option removal.
func WithRand(rnd *rand.Rand) SessionOption {
	return func(s *Session) { s.rnd = rnd }
}

// WithRules overrides engine tuning.
func WithRules(r Rules) SessionOption {
	return func(s *Session) { s.rules = r.withDefaults() }
}

// WithCatalog sets the power-ups players can start with or loot.
func WithCatalog(catalog []domain.PowerUp) SessionOption {
	return func(s *Session) { s.catalog = slices.Clone(catalog) }
}

// Session is one running instance of a quiz for a group of players.
// All mutations happen under mu; presentation pushes happen after it is released.
type Session struct {
	mu      sync.Mutex
	now     func() time.Time
	rnd     *rand.Rand
	rules   Rules
	catalog []domain.PowerUp

	contextID string
	quiz      domain.Quiz
	players   map[string]*domain.Player
	joinOrder []string

	running   bool
	startedAt time.Time
	endedAt   time.Time

	powerPlayActive bool
	powerPlayUntil  time.Time

	wrongCounts map[int]int
	usage       []domain.PowerUpUsage
}

// SessionInfo is a lock-free description of a session.
type SessionInfo struct {
	ContextID string    `json:"contextId"`
	QuizName  string    `json:"quizName"`
	Questions int       `json:"questions"`
	Players   int       `json:"players"`
	Running   bool      `json:"running"`
	StartedAt time.Time `json:"startedAt"`
}

// NewSession builds an idle session for quiz bound to contextID.
func NewSession(contextID string, quiz domain.Quiz, opts ...SessionOption) *Session {
	s := &Session{
		now:         time.Now,
		rules:       DefaultRules(),
		contextID:   contextID,
		quiz:        quiz.Normalize(),
		players:     make(map[string]*domain.Player),
		wrongCounts: make(map[int]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rnd == nil {
		s.rnd = rand.New(rand.NewSource(s.now().UnixNano()))
	}
	return s
}

// ContextID returns the key the session is registered under.
func (s *Session) ContextID() string {
	return s.contextID
}

// Info describes the session.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		ContextID: s.contextID,
		QuizName:  s.quiz.Name,
		Questions: len(s.quiz.Questions),
		Players:   len(s.players),
		Running:   s.running,
		StartedAt: s.startedAt,
	}
}

// Ended reports whether the session has been finalized.
func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.endedAt.IsZero()
}

// Player returns a copy of one participant's state.
func (s *Session) Player(playerID string) (domain.Player, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[playerID]
	if !ok {
		return domain.Player{}, false
	}
	return p.Clone(), true
}

// PlayerIDs lists participants in join order.
func (s *Session) PlayerIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.joinOrder)
}

// WrongCounts returns per-question incorrect tallies keyed by original question index.
func (s *Session) WrongCounts() map[int]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]int, len(s.wrongCounts))
	for k, v := range s.wrongCounts {
		out[k] = v
	}
	return out
}

// Usage returns the power-up audit trail.
func (s *Session) Usage() []domain.PowerUpUsage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.usage)
}

// PowerPlayActive reports whether a power play window is open at now.
func (s *Session) PowerPlayActive(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.powerPlayOpenLocked(now)
}

func (s *Session) powerPlayOpenLocked(now time.Time) bool {
	return s.powerPlayActive && now.Before(s.powerPlayUntil)
}

// Join registers a player. Joining twice returns the existing state unchanged.
func (s *Session) Join(playerID, displayName, avatarURL string) (domain.Player, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.players[playerID]; ok {
		return p.Clone(), false
	}

	p := &domain.Player{
		ID:            playerID,
		DisplayName:   displayName,
		AvatarURL:     avatarURL,
		QuestionOrder: s.rnd.Perm(len(s.quiz.Questions)),
		Inventory:     starterInventory(s.catalog, s.rules.StarterInventory, s.rnd),
		JoinedAt:      s.now(),
	}
	if len(p.QuestionOrder) == 0 {
		p.Completed = true
		p.CompletedAt = p.JoinedAt
	}
	s.players[playerID] = p
	s.joinOrder = append(s.joinOrder, playerID)
	return p.Clone(), true
}

// Start opens the session for play.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return domain.ErrSessionRunning
	}
	if !s.endedAt.IsZero() {
		return domain.ErrSessionNotFound
	}
	if len(s.players) == 0 {
		return domain.ErrNoPlayers
	}
	s.running = true
	s.startedAt = s.now()
	return nil
}

// Remove deletes a participant, used by moderation.
func (s *Session) Remove(playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.players[playerID]; !ok {
		return domain.ErrParticipantNotFound
	}
	delete(s.players, playerID)
	s.joinOrder = slices.DeleteFunc(s.joinOrder, func(id string) bool { return id == playerID })
	return nil
}

// Grant appends a power-up to a participant's inventory regardless of the loot cap.
func (s *Session) Grant(playerID string, pu domain.PowerUp) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[playerID]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	p.Inventory = append(p.Inventory, pu)
	return nil
}

// Leaderboard returns players ranked by score, ties broken by join order.
func (s *Session) Leaderboard() domain.Leaderboard {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leaderboardLocked()
}

func (s *Session) leaderboardLocked() domain.Leaderboard {
	ranked := s.rankedLocked()
	entries := make([]domain.LeaderboardEntry, 0, len(ranked))
	for i, p := range ranked {
		entries = append(entries, domain.LeaderboardEntry{
			Rank:        i + 1,
			UserID:      p.ID,
			DisplayName: p.DisplayName,
			Score:       p.Score,
			Streak:      p.Streak,
			Progress:    p.Position,
			Total:       len(p.QuestionOrder),
			Completed:   p.Completed,
		})
	}
	return domain.Leaderboard{
		ContextID: s.contextID,
		Entries:   entries,
		UpdatedAt: s.now(),
	}
}

func (s *Session) rankedLocked() []*domain.Player {
	ranked := make([]*domain.Player, 0, len(s.joinOrder))
	for _, id := range s.joinOrder {
		if p, ok := s.players[id]; ok {
			ranked = append(ranked, p)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

func (s *Session) rankOfLocked(playerID string) int {
	for i, p := range s.rankedLocked() {
		if p.ID == playerID {
			return i + 1
		}
	}
	return 0
}
