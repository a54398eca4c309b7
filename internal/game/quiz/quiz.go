// Package quiz implements the speed-charades game: each team plays one
// timed round against a shuffled word list while the host marks words
// correct or passed.
package quiz

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"suljari/internal/apperr"
	"suljari/internal/catalog"
	"suljari/internal/event"
	"suljari/internal/game"
	"suljari/internal/store"
)

// DefaultRoundSeconds is the round length used when the host does not
// pick one.
const DefaultRoundSeconds = 120

// roundWords is how many words a round draws from the category.
const roundWords = 50

// Phases.
const (
	PhaseWaiting  = "waiting"
	PhasePlaying  = "playing"
	PhaseRoundEnd = "roundEnd"
	PhaseFinished = "finished"
)

// State is the JSON document at room:{id}:quiz:state.
type State struct {
	Phase             string         `json:"phase"`
	Teams             []string       `json:"teams"`
	CurrentTeamIndex  int            `json:"currentTeamIndex"`
	RoundTimeSeconds  int            `json:"roundTimeSeconds"`
	RemainingTime     int            `json:"remainingTime"`
	TeamScores        map[string]int `json:"teamScores"`
	CompletedTeams    []string       `json:"completedTeams"`
	CurrentWord       string         `json:"currentWord,omitempty"`
	RemainingWords    []string       `json:"remainingWords,omitempty"`
	CurrentRoundScore int            `json:"currentRoundScore"`
}

func (st *State) currentTeam() string {
	if len(st.Teams) == 0 {
		return ""
	}
	return st.Teams[st.CurrentTeamIndex]
}

func (st *State) completed(team string) bool {
	for _, done := range st.CompletedTeams {
		if done == team {
			return true
		}
	}
	return false
}

// Machine drives the quiz game.
type Machine struct {
	deps game.Deps
	log  *zap.SugaredLogger
}

// New builds the quiz machine.
func New(deps game.Deps) *Machine {
	return &Machine{deps: deps, log: deps.Log.Named("quiz")}
}

// State returns the current machine state.
func (m *Machine) State(ctx context.Context, roomID string) (*State, error) {
	var st State
	if err := game.LoadState(ctx, m.deps.Store, store.QuizStateKey(roomID), &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Start opens the game for the room's pre-assigned teams. A non-positive
// roundSeconds falls back to the default round length.
func (m *Machine) Start(ctx context.Context, roomID string, roundSeconds int) error {
	info, err := m.deps.Rooms.Get(ctx, roomID)
	if err != nil {
		return err
	}
	teams := info.Teams()
	if len(teams) < 2 {
		return apperr.InvalidState("quiz needs at least 2 teams, room has %d", len(teams))
	}
	if roundSeconds <= 0 {
		roundSeconds = DefaultRoundSeconds
	}

	tags := make([]string, 0, len(teams))
	for tag := range teams {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	st := &State{
		Phase:            PhaseWaiting,
		Teams:            tags,
		RoundTimeSeconds: roundSeconds,
		TeamScores:       map[string]int{},
		CompletedTeams:   []string{},
	}
	if err := m.save(ctx, roomID, st); err != nil {
		return err
	}

	m.log.Infow("game opened", "roomId", roomID, "teams", len(tags), "roundSeconds", roundSeconds)
	m.deps.Bus.BroadcastAll(roomID, event.New(event.QuizTeamChange, map[string]any{
		"team":             st.currentTeam(),
		"currentTeamIndex": st.CurrentTeamIndex,
	}))
	return nil
}

// RoundStart draws the word list for the team on turn and starts the
// round timer.
func (m *Machine) RoundStart(ctx context.Context, roomID string, categoryID int) error {
	st, err := m.State(ctx, roomID)
	if err != nil {
		return err
	}
	if st.Phase != PhaseWaiting {
		return apperr.InvalidState("a round cannot start from phase %q", st.Phase)
	}

	cat, err := m.deps.Catalog.Lookup(categoryID)
	if err != nil {
		return err
	}
	if cat.Kind != catalog.KindKeyword {
		return apperr.InvalidArgument("category %q has no keywords", cat.Name)
	}
	words, err := m.deps.Catalog.RandomWords(categoryID, roundWords)
	if err != nil {
		return err
	}
	if len(words) == 0 {
		return apperr.InvalidState("category %q is empty", cat.Name)
	}

	st.Phase = PhasePlaying
	st.CurrentWord = words[0]
	st.RemainingWords = words[1:]
	st.CurrentRoundScore = 0
	st.RemainingTime = st.RoundTimeSeconds
	if err := m.save(ctx, roomID, st); err != nil {
		return err
	}

	team := st.currentTeam()
	m.log.Infow("round started", "roomId", roomID, "team", team, "category", cat.Name, "words", len(words))
	m.deps.Bus.BroadcastAll(roomID, event.New(event.QuizRoundStart, map[string]any{
		"team":         team,
		"categoryName": cat.Name,
		"duration":     st.RoundTimeSeconds,
		"wordCount":    len(words),
	}))
	m.showWord(roomID, st)

	m.deps.Scheduler.StartCountdown(roomID, st.RoundTimeSeconds,
		func(remaining int) {
			m.deps.Bus.BroadcastAll(roomID, event.New(event.QuizTimer, map[string]any{
				"team":      team,
				"remaining": remaining,
			}))
		},
		func() {
			m.onRoundComplete(roomID)
		},
	)
	return nil
}

// Correct scores the current word and moves to the next. Running out of
// words ends the round early.
func (m *Machine) Correct(ctx context.Context, roomID string) error {
	st, err := m.State(ctx, roomID)
	if err != nil {
		return err
	}
	if st.Phase != PhasePlaying {
		return apperr.InvalidState("no round is playing")
	}

	st.CurrentRoundScore++
	if len(st.RemainingWords) == 0 {
		st.CurrentWord = ""
		m.deps.Scheduler.Cancel(roomID)
		m.broadcastScore(roomID, st)
		m.endRound(ctx, roomID, st)
		return nil
	}
	st.CurrentWord = st.RemainingWords[0]
	st.RemainingWords = st.RemainingWords[1:]
	if err := m.save(ctx, roomID, st); err != nil {
		return err
	}
	m.broadcastScore(roomID, st)
	m.showWord(roomID, st)
	return nil
}

func (m *Machine) broadcastScore(roomID string, st *State) {
	m.deps.Bus.BroadcastAll(roomID, event.New(event.QuizScore, map[string]any{
		"team":  st.currentTeam(),
		"score": st.CurrentRoundScore,
	}))
}

// Pass rotates the current word to the back of the list. The last word
// has nowhere to rotate and stays.
func (m *Machine) Pass(ctx context.Context, roomID string) error {
	st, err := m.State(ctx, roomID)
	if err != nil {
		return err
	}
	if st.Phase != PhasePlaying {
		return apperr.InvalidState("no round is playing")
	}

	if len(st.RemainingWords) > 0 {
		st.RemainingWords = append(st.RemainingWords, st.CurrentWord)
		st.CurrentWord = st.RemainingWords[0]
		st.RemainingWords = st.RemainingWords[1:]
	}
	if err := m.save(ctx, roomID, st); err != nil {
		return err
	}
	m.showWord(roomID, st)
	return nil
}

// EndRound is the host cutting a round short.
func (m *Machine) EndRound(ctx context.Context, roomID string) error {
	st, err := m.State(ctx, roomID)
	if err != nil {
		return err
	}
	if st.Phase != PhasePlaying {
		return apperr.InvalidState("no round is playing")
	}
	m.deps.Scheduler.Cancel(roomID)
	m.endRound(ctx, roomID, st)
	return nil
}

// NextTeam hands the turn to the next team that has not played yet.
func (m *Machine) NextTeam(ctx context.Context, roomID string) error {
	st, err := m.State(ctx, roomID)
	if err != nil {
		return err
	}
	if st.Phase != PhaseRoundEnd {
		return apperr.InvalidState("the turn cannot move from phase %q", st.Phase)
	}

	for i := 0; i < len(st.Teams); i++ {
		st.CurrentTeamIndex = (st.CurrentTeamIndex + 1) % len(st.Teams)
		if !st.completed(st.currentTeam()) {
			break
		}
	}
	st.Phase = PhaseWaiting
	if err := m.save(ctx, roomID, st); err != nil {
		return err
	}

	m.deps.Bus.BroadcastAll(roomID, event.New(event.QuizTeamChange, map[string]any{
		"team":             st.currentTeam(),
		"currentTeamIndex": st.CurrentTeamIndex,
	}))
	return nil
}

// RankingRow is one line of the final standings.
type RankingRow struct {
	Team  string `json:"team"`
	Score int    `json:"score"`
}

// Ranking returns the standings sorted by score. Teams with equal scores
// keep their play order.
func (m *Machine) Ranking(ctx context.Context, roomID string) ([]RankingRow, bool, error) {
	st, err := m.State(ctx, roomID)
	if err != nil {
		return nil, false, err
	}
	return st.ranking(), len(st.CompletedTeams) == len(st.Teams), nil
}

func (st *State) ranking() []RankingRow {
	rows := make([]RankingRow, 0, len(st.Teams))
	for _, team := range st.Teams {
		rows = append(rows, RankingRow{Team: team, Score: st.TeamScores[team]})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Score > rows[j].Score })
	return rows
}

// showWord pushes the word in play to the host screen only. Player phones
// never see it.
func (m *Machine) showWord(roomID string, st *State) {
	m.deps.Bus.BroadcastHost(roomID, event.New(event.QuizWord, map[string]any{
		"word":           st.CurrentWord,
		"remainingCount": len(st.RemainingWords),
	}))
}

// onRoundComplete is the scheduler's completion callback. The phase guard
// drops a completion that lost the race against correct-exhaustion or a
// host end.
func (m *Machine) onRoundComplete(roomID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st, err := m.State(ctx, roomID)
	if err != nil {
		m.log.Warnw("round completion on missing state", "roomId", roomID, "error", err)
		return
	}
	if st.Phase != PhasePlaying {
		return
	}
	m.endRound(ctx, roomID, st)
}

// endRound books the round score, marks the team as played and either
// hands control back to the host or finishes the game.
func (m *Machine) endRound(ctx context.Context, roomID string, st *State) {
	team := st.currentTeam()
	st.TeamScores[team] = st.CurrentRoundScore
	if !st.completed(team) {
		st.CompletedTeams = append(st.CompletedTeams, team)
	}
	st.CurrentWord = ""
	st.RemainingWords = nil
	st.RemainingTime = 0

	done := len(st.CompletedTeams) == len(st.Teams)
	if done {
		st.Phase = PhaseFinished
	} else {
		st.Phase = PhaseRoundEnd
	}
	if err := m.save(ctx, roomID, st); err != nil {
		m.log.Warnw("failed to persist round end", "roomId", roomID, "error", err)
		return
	}

	m.log.Infow("round ended", "roomId", roomID, "team", team, "score", st.TeamScores[team], "done", done)
	m.deps.Bus.BroadcastAll(roomID, event.New(event.QuizRoundEnd, map[string]any{
		"team":           team,
		"score":          st.TeamScores[team],
		"teamScores":     st.TeamScores,
		"completedTeams": st.CompletedTeams,
	}))
	if done {
		m.deps.Bus.BroadcastAll(roomID, event.New(event.QuizFinalResult, map[string]any{
			"ranking":    st.ranking(),
			"isComplete": true,
		}))
	}
}

func (m *Machine) save(ctx context.Context, roomID string, st *State) error {
	return game.SaveState(ctx, m.deps.Store, store.QuizStateKey(roomID), st)
}
