// Package liar implements the keyword-hiding game: everyone but the liar
// knows the secret keyword, explanations go around the table, and the
// group votes on who was bluffing.
package liar

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"suljari/internal/apperr"
	"suljari/internal/catalog"
	"suljari/internal/event"
	"suljari/internal/game"
	"suljari/internal/store"
)

// MinPlayers is the smallest round-robin that still hides the liar.
const MinPlayers = 3

// Phases.
const (
	PhaseRoleReveal     = "roleReveal"
	PhaseExplanation    = "explanation"
	PhaseVoteMoreRound  = "voteMoreRound"
	PhasePointing       = "pointing"
	PhasePointingVote   = "pointingVote"
	PhasePointingResult = "pointingResult"
	PhaseLiarGuess      = "liarGuess"
	PhaseGameEnd        = "gameEnd"
)

// phaseDurations carries the deadline of every phase in seconds. The
// explanation entry is per speaker, and zero-duration phases are not
// timed: pointing waits for the host and gameEnd is terminal.
var phaseDurations = map[string]int{
	PhaseRoleReveal:     30,
	PhaseExplanation:    20,
	PhaseVoteMoreRound:  15,
	PhasePointing:       0,
	PhasePointingVote:   30,
	PhasePointingResult: 5,
	PhaseLiarGuess:      30,
	PhaseGameEnd:        0,
}

// Winners.
const (
	WinnerLiar    = "liar"
	WinnerCitizen = "citizen"
)

// State is the JSON document at room:{id}:liar:state.
type State struct {
	Phase                 string            `json:"phase"`
	Keyword               string            `json:"keyword"`
	CategoryName          string            `json:"categoryName"`
	LiarDeviceID          string            `json:"liarDeviceId"`
	ExplanationOrder      []string          `json:"explanationOrder"`
	CurrentExplainerIndex int               `json:"currentExplainerIndex"`
	RoundCount            int               `json:"roundCount"`
	MoreRoundVotes        map[string]bool   `json:"moreRoundVotes,omitempty"`
	PointingVotes         map[string]string `json:"pointingVotes,omitempty"`
	PointedDeviceID       string            `json:"pointedDeviceId,omitempty"`
	LiarGuess             string            `json:"liarGuess,omitempty"`
	Winner                string            `json:"winner,omitempty"`
}

// Machine drives the liar game.
type Machine struct {
	deps game.Deps
	log  *zap.SugaredLogger
}

// New builds the liar machine.
func New(deps game.Deps) *Machine {
	return &Machine{deps: deps, log: deps.Log.Named("liar")}
}

// State returns the current machine state.
func (m *Machine) State(ctx context.Context, roomID string) (*State, error) {
	var st State
	if err := game.LoadState(ctx, m.deps.Store, store.LiarStateKey(roomID), &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Start draws a keyword from the category, hides it from one random
// player and opens the role-reveal window.
func (m *Machine) Start(ctx context.Context, roomID string, categoryID int) error {
	info, err := m.deps.Rooms.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if len(info.Players) < MinPlayers {
		return apperr.InvalidState("liar needs at least %d players, room has %d", MinPlayers, len(info.Players))
	}

	keyword, cat, err := m.deps.Catalog.RandomWord(categoryID)
	if err != nil {
		return err
	}
	if cat.Kind != catalog.KindKeyword {
		return apperr.InvalidArgument("category %q has no keywords", cat.Name)
	}

	order := make([]string, 0, len(info.Players))
	for _, i := range rand.Perm(len(info.Players)) {
		order = append(order, info.Players[i].DeviceID)
	}
	st := &State{
		Phase:            PhaseRoleReveal,
		Keyword:          keyword,
		CategoryName:     cat.Name,
		LiarDeviceID:     order[rand.Intn(len(order))],
		ExplanationOrder: order,
		RoundCount:       1,
	}
	if err := m.save(ctx, roomID, st); err != nil {
		return err
	}

	// The host display never learns the keyword or the liar.
	turns := make([]map[string]string, 0, len(order))
	for _, id := range order {
		entry := map[string]string{"deviceId": id}
		if p := info.Player(id); p != nil {
			entry["nickname"] = p.Nickname
		}
		turns = append(turns, entry)
	}
	m.log.Infow("game dealt", "roomId", roomID, "category", cat.Name, "players", len(order))
	m.deps.Bus.BroadcastHost(roomID, event.New(event.LiarInit, map[string]any{
		"categoryName":     cat.Name,
		"explanationOrder": turns,
		"playerCount":      len(order),
	}))
	m.announcePhase(roomID, st)
	m.armPhase(roomID, PhaseRoleReveal)
	return nil
}

// Role returns the caller's private card. The liar sees a null keyword.
func (m *Machine) Role(ctx context.Context, roomID, deviceID string) (map[string]any, error) {
	info, err := m.deps.Rooms.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if info.Player(deviceID) == nil {
		return nil, apperr.NotFound("device %s is not in room %s", deviceID, roomID)
	}
	st, err := m.State(ctx, roomID)
	if err != nil {
		return nil, err
	}

	card := map[string]any{
		"isLiar":       deviceID == st.LiarDeviceID,
		"categoryName": st.CategoryName,
	}
	if deviceID == st.LiarDeviceID {
		card["keyword"] = nil
	} else {
		card["keyword"] = st.Keyword
	}
	return card, nil
}

// VoteMoreRound records one ballot on extending the explanations. Re-voting
// replaces the earlier ballot and the count settles when the timer runs out.
func (m *Machine) VoteMoreRound(ctx context.Context, roomID, deviceID string, wantMore bool) error {
	info, err := m.deps.Rooms.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if info.Player(deviceID) == nil {
		return apperr.NotFound("device %s is not in room %s", deviceID, roomID)
	}
	st, err := m.State(ctx, roomID)
	if err != nil {
		return err
	}
	if st.Phase != PhaseVoteMoreRound {
		return apperr.InvalidState("the more-round vote is not open")
	}

	if st.MoreRoundVotes == nil {
		st.MoreRoundVotes = map[string]bool{}
	}
	st.MoreRoundVotes[deviceID] = wantMore
	return m.save(ctx, roomID, st)
}

// StartPointingVote is the host command that ends the open discussion and
// opens the pointing vote.
func (m *Machine) StartPointingVote(ctx context.Context, roomID string) error {
	st, err := m.State(ctx, roomID)
	if err != nil {
		return err
	}
	if st.Phase != PhasePointing {
		return apperr.InvalidState("pointing has not begun")
	}

	st.PointingVotes = map[string]string{}
	m.enterPhase(ctx, roomID, st, PhasePointingVote)
	return nil
}

// PointingVote records one ballot naming the suspected liar.
func (m *Machine) PointingVote(ctx context.Context, roomID, deviceID, targetID string) error {
	info, err := m.deps.Rooms.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if info.Player(deviceID) == nil {
		return apperr.NotFound("device %s is not in room %s", deviceID, roomID)
	}
	if info.Player(targetID) == nil {
		return apperr.InvalidArgument("target %s is not in room %s", targetID, roomID)
	}
	st, err := m.State(ctx, roomID)
	if err != nil {
		return err
	}
	if st.Phase != PhasePointingVote {
		return apperr.InvalidState("the pointing vote is not open")
	}

	if st.PointingVotes == nil {
		st.PointingVotes = map[string]string{}
	}
	st.PointingVotes[deviceID] = targetID
	return m.save(ctx, roomID, st)
}

// Guess is the caught liar's last chance: name the keyword and steal the
// win. Pass concedes. The game ends immediately either way.
func (m *Machine) Guess(ctx context.Context, roomID, deviceID, guess string, pass bool) error {
	st, err := m.State(ctx, roomID)
	if err != nil {
		return err
	}
	if st.Phase != PhaseLiarGuess {
		return apperr.InvalidState("the liar is not guessing now")
	}
	if deviceID != st.LiarDeviceID {
		return apperr.Unauthorized("only the liar may guess the keyword")
	}

	m.deps.Scheduler.Cancel(roomID)
	winner := WinnerCitizen
	if !pass {
		st.LiarGuess = strings.TrimSpace(guess)
		if matchesKeyword(st.LiarGuess, st.Keyword) {
			winner = WinnerLiar
		}
	}
	m.finishGame(ctx, roomID, st, winner)
	return nil
}

// matchesKeyword compares a guess against the keyword ignoring case and
// surrounding whitespace.
func matchesKeyword(guess, keyword string) bool {
	normalize := func(s string) string {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return normalize(guess) != "" && normalize(guess) == normalize(keyword)
}

// enterPhase moves the state into phase, announces it and arms its timer.
// Callers have already dealt with any phase-specific bookkeeping.
func (m *Machine) enterPhase(ctx context.Context, roomID string, st *State, phase string) {
	st.Phase = phase
	if err := m.save(ctx, roomID, st); err != nil {
		m.log.Warnw("failed to persist phase change", "roomId", roomID, "phase", phase, "error", err)
		return
	}
	m.announcePhase(roomID, st)
	m.armPhase(roomID, phase)
}

func (m *Machine) announcePhase(roomID string, st *State) {
	m.deps.Bus.BroadcastAll(roomID, event.New(event.LiarPhaseChanged, map[string]any{
		"phase":    st.Phase,
		"duration": phaseDurations[st.Phase],
		"round":    st.RoundCount,
	}))
}

// announceTurn names the speaker the explanation timer is counting for.
func (m *Machine) announceTurn(ctx context.Context, roomID string, st *State) {
	speaker := st.ExplanationOrder[st.CurrentExplainerIndex]
	payload := map[string]any{
		"deviceId": speaker,
		"index":    st.CurrentExplainerIndex,
		"total":    len(st.ExplanationOrder),
		"round":    st.RoundCount,
	}
	if info, err := m.deps.Rooms.Get(ctx, roomID); err == nil {
		if p := info.Player(speaker); p != nil {
			payload["nickname"] = p.Nickname
		}
	}
	m.deps.Bus.BroadcastAll(roomID, event.New(event.LiarExplanationTurn, payload))
}

// armPhase starts the phase countdown. Zero-duration phases never arm.
func (m *Machine) armPhase(roomID, phase string) {
	duration := phaseDurations[phase]
	if duration <= 0 {
		return
	}
	m.deps.Scheduler.StartCountdown(roomID, duration,
		func(remaining int) {
			m.deps.Bus.BroadcastAll(roomID, event.New(event.LiarTimer, map[string]any{
				"phase":     phase,
				"remaining": remaining,
			}))
		},
		func() {
			m.onPhaseComplete(roomID, phase)
		},
	)
}

// onPhaseComplete is the scheduler's completion dispatcher. A phase guard
// drops stale completions that lost a race against an action-driven
// transition.
func (m *Machine) onPhaseComplete(roomID, phase string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st, err := m.State(ctx, roomID)
	if err != nil {
		m.log.Warnw("phase completion on missing state", "roomId", roomID, "phase", phase, "error", err)
		return
	}
	if st.Phase != phase {
		return
	}

	switch phase {
	case PhaseRoleReveal:
		m.enterPhase(ctx, roomID, st, PhaseExplanation)
		m.announceTurn(ctx, roomID, st)
	case PhaseExplanation:
		m.advanceSpeaker(ctx, roomID, st)
	case PhaseVoteMoreRound:
		m.resolveMoreRound(ctx, roomID, st)
	case PhasePointingVote:
		m.resolvePointing(ctx, roomID, st)
	case PhasePointingResult:
		if st.PointedDeviceID != "" && st.PointedDeviceID == st.LiarDeviceID {
			m.enterPhase(ctx, roomID, st, PhaseLiarGuess)
		} else {
			// The table pointed at the wrong player.
			m.finishGame(ctx, roomID, st, WinnerLiar)
		}
	case PhaseLiarGuess:
		m.finishGame(ctx, roomID, st, WinnerCitizen)
	}
}

// advanceSpeaker moves the explanation to the next player, or leaves the
// phase once everyone has spoken.
func (m *Machine) advanceSpeaker(ctx context.Context, roomID string, st *State) {
	next := st.CurrentExplainerIndex + 1
	if next < len(st.ExplanationOrder) {
		st.CurrentExplainerIndex = next
		m.enterPhase(ctx, roomID, st, PhaseExplanation)
		m.announceTurn(ctx, roomID, st)
		return
	}

	st.CurrentExplainerIndex = 0
	if st.RoundCount < 2 {
		st.MoreRoundVotes = map[string]bool{}
		m.enterPhase(ctx, roomID, st, PhaseVoteMoreRound)
		return
	}
	m.enterPhase(ctx, roomID, st, PhasePointing)
}

// resolveMoreRound settles the extension vote. A strict majority for more
// schedules a second explanation round after a short beat.
func (m *Machine) resolveMoreRound(ctx context.Context, roomID string, st *State) {
	more, stop := 0, 0
	for _, wantMore := range st.MoreRoundVotes {
		if wantMore {
			more++
		} else {
			stop++
		}
	}
	extending := more > stop
	m.deps.Bus.BroadcastAll(roomID, event.New(event.LiarMoreRoundResult, map[string]any{
		"moreVotes": more,
		"stopVotes": stop,
		"extending": extending,
	}))

	if !extending {
		m.enterPhase(ctx, roomID, st, PhasePointing)
		return
	}

	st.RoundCount = 2
	st.CurrentExplainerIndex = 0
	st.Phase = PhaseExplanation
	if err := m.save(ctx, roomID, st); err != nil {
		m.log.Warnw("failed to persist round extension", "roomId", roomID, "error", err)
		return
	}
	m.deps.Scheduler.ScheduleDelayed(roomID, 2*time.Second, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		st, err := m.State(ctx, roomID)
		if err != nil || st.Phase != PhaseExplanation {
			return
		}
		m.announcePhase(roomID, st)
		m.announceTurn(ctx, roomID, st)
		m.armPhase(roomID, PhaseExplanation)
	})
}

// resolvePointing settles the accusation vote by plurality with a random
// tiebreak. Nobody pointed at all still counts as a miss for the table.
func (m *Machine) resolvePointing(ctx context.Context, roomID string, st *State) {
	pointed, votes, _ := game.TopRandom(game.CountBallots(st.PointingVotes))
	st.PointedDeviceID = pointed
	caught := pointed != "" && pointed == st.LiarDeviceID

	payload := map[string]any{
		"pointedDeviceId": pointed,
		"votes":           votes,
		"isLiarCaught":    caught,
	}
	if info, err := m.deps.Rooms.Get(ctx, roomID); err == nil {
		if p := info.Player(pointed); p != nil {
			payload["pointedNickname"] = p.Nickname
		}
	}
	m.deps.Bus.BroadcastAll(roomID, event.New(event.LiarPointingResult, payload))

	m.enterPhase(ctx, roomID, st, PhasePointingResult)
}

// finishGame enters gameEnd and publishes the whole hand: keyword, liar,
// accusation, guess and winner.
func (m *Machine) finishGame(ctx context.Context, roomID string, st *State, winner string) {
	st.Winner = winner
	st.Phase = PhaseGameEnd
	if err := m.save(ctx, roomID, st); err != nil {
		m.log.Warnw("failed to persist game end", "roomId", roomID, "error", err)
		return
	}

	payload := map[string]any{
		"winner":          winner,
		"keyword":         st.Keyword,
		"liarDeviceId":    st.LiarDeviceID,
		"pointedDeviceId": st.PointedDeviceID,
		"guess":           st.LiarGuess,
		"isGuessCorrect":  matchesKeyword(st.LiarGuess, st.Keyword),
	}
	if info, err := m.deps.Rooms.Get(ctx, roomID); err == nil {
		if p := info.Player(st.LiarDeviceID); p != nil {
			payload["liarNickname"] = p.Nickname
		}
	}

	m.log.Infow("game over", "roomId", roomID, "winner", winner, "caught", st.PointedDeviceID == st.LiarDeviceID)
	m.announcePhase(roomID, st)
	m.deps.Bus.BroadcastAll(roomID, event.New(event.LiarGameEnd, payload))
}

func (m *Machine) save(ctx context.Context, roomID string, st *State) error {
	return game.SaveState(ctx, m.deps.Store, store.LiarStateKey(roomID), st)
}
