// Package marble implements the 28-cell board game: players submit and
// vote on penalties, the host picks team or solo mode, and turn holders
// roll a die to move around the board.
package marble

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"suljari/internal/apperr"
	"suljari/internal/event"
	"suljari/internal/game"
	"suljari/internal/room"
	"suljari/internal/store"
)

// Phases of the marble state machine. There are no timed phases; every
// transition is action-driven.
const (
	PhaseSubmitting = "submitting"
	PhaseVoting     = "voting"
	PhaseModeSelect = "modeSelect"
	PhasePlaying    = "playing"
)

// Modes.
const (
	ModeTeam = "team"
	ModeSolo = "solo"
)

const maxPenaltiesPerDevice = 2

// State is the JSON document at room:{id}:marble:state. Positions and
// turn order are keyed by team tag in team mode and by deviceId in solo.
type State struct {
	Phase     string         `json:"phase"`
	Mode      string         `json:"mode,omitempty"`
	Board     []Cell         `json:"board,omitempty"`
	Positions map[string]int `json:"positions,omitempty"`
	TurnOrder []string       `json:"turnOrder,omitempty"`
	TurnIndex int            `json:"turnIndex"`
	LastDice  int            `json:"lastDice,omitempty"`
}

// penaltyRecord is one appended submission; its id is the 1-based list
// position assigned at read time.
type penaltyRecord struct {
	DeviceID string `json:"deviceId"`
	Text     string `json:"text"`
}

// voteRecord is one appended toggle. A (deviceId, penaltyId) pair with an
// odd number of occurrences is a live vote.
type voteRecord struct {
	DeviceID  string `json:"deviceId"`
	PenaltyID int    `json:"penaltyId"`
}

// Progress mirrors the MARBLE_PENALTY_PROGRESS payload.
type Progress struct {
	TotalCount     int  `json:"totalCount"`
	ExpectedCount  int  `json:"expectedCount"`
	IsAllSubmitted bool `json:"isAllSubmitted"`
}

// VoteEntry is one row of the sorted MARBLE_VOTE_STATUS snapshot.
type VoteEntry struct {
	PenaltyID int    `json:"penaltyId"`
	Text      string `json:"text"`
	Count     int    `json:"count"`
}

// RollResult is returned to the roller and broadcast as MARBLE_DICE_ROLLED.
type RollResult struct {
	Dice     int    `json:"dice"`
	Mover    string `json:"mover"`
	Nickname string `json:"nickname,omitempty"`
	Position int    `json:"position"`
	Cell     Cell   `json:"cell"`
	NextTurn string `json:"nextTurn"`
}

// Machine drives the marble game.
type Machine struct {
	deps game.Deps
	log  *zap.SugaredLogger
}

// New builds the marble machine.
func New(deps game.Deps) *Machine {
	return &Machine{deps: deps, log: deps.Log.Named("marble")}
}

// State returns the current machine state.
func (m *Machine) State(ctx context.Context, roomID string) (*State, error) {
	var st State
	if err := game.LoadState(ctx, m.deps.Store, store.MarbleStateKey(roomID), &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// SubmitPenalty appends one penalty phrase for the device, starting the
// game state on first use. Each device may submit at most two.
func (m *Machine) SubmitPenalty(ctx context.Context, roomID, deviceID, text string) (*Progress, error) {
	text = strings.TrimSpace(text)
	if text == "" || utf8.RuneCountInString(text) > 100 {
		return nil, apperr.InvalidArgument("penalty text must be 1-100 characters")
	}

	info, err := m.deps.Rooms.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if info.Player(deviceID) == nil {
		return nil, apperr.NotFound("device %s is not in room %s", deviceID, roomID)
	}

	st, err := m.State(ctx, roomID)
	if errors.Is(err, apperr.ErrNotFound) {
		st = &State{Phase: PhaseSubmitting}
		if err := m.save(ctx, roomID, st); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}
	if st.Phase != PhaseSubmitting {
		return nil, apperr.InvalidState("penalty submission is closed")
	}

	records, err := m.penalties(ctx, roomID)
	if err != nil {
		return nil, err
	}
	mine := 0
	for _, rec := range records {
		if rec.DeviceID == deviceID {
			mine++
		}
	}
	if mine >= maxPenaltiesPerDevice {
		return nil, apperr.Conflict("device already submitted %d penalties", maxPenaltiesPerDevice)
	}

	raw, err := json.Marshal(penaltyRecord{DeviceID: deviceID, Text: text})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if err := m.deps.Store.ListAppend(ctx, store.MarblePenaltiesKey(roomID), string(raw)); err != nil {
		return nil, apperr.Internal(err)
	}

	progress := &Progress{
		TotalCount:    len(records) + 1,
		ExpectedCount: len(info.Players) * maxPenaltiesPerDevice,
	}
	progress.IsAllSubmitted = progress.TotalCount >= progress.ExpectedCount

	if progress.IsAllSubmitted {
		st.Phase = PhaseVoting
		if err := m.save(ctx, roomID, st); err != nil {
			return nil, err
		}
	}

	m.deps.Bus.BroadcastAll(roomID, event.New(event.MarblePenaltyProgress, progress))
	return progress, nil
}

// ToggleVote flips the device's vote on one penalty and broadcasts the
// sorted snapshot.
func (m *Machine) ToggleVote(ctx context.Context, roomID, deviceID string, penaltyID int) error {
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
	if st.Phase != PhaseVoting {
		return apperr.InvalidState("penalty voting is not open")
	}

	records, err := m.penalties(ctx, roomID)
	if err != nil {
		return err
	}
	if penaltyID < 1 || penaltyID > len(records) {
		return apperr.InvalidArgument("penalty %d does not exist", penaltyID)
	}

	raw, err := json.Marshal(voteRecord{DeviceID: deviceID, PenaltyID: penaltyID})
	if err != nil {
		return apperr.Internal(err)
	}
	if err := m.deps.Store.ListAppend(ctx, store.MarbleVotesKey(roomID), string(raw)); err != nil {
		return apperr.Internal(err)
	}

	snapshot, err := m.voteSnapshot(ctx, roomID, records)
	if err != nil {
		return err
	}
	m.deps.Bus.BroadcastAll(roomID, event.New(event.MarbleVoteStatus, map[string]any{
		"votes": snapshot,
	}))
	return nil
}

// VoteDone marks the device as finished voting. Once every roster device
// is done the vote closes automatically.
func (m *Machine) VoteDone(ctx context.Context, roomID, deviceID string) error {
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
	if st.Phase != PhaseVoting {
		return apperr.InvalidState("penalty voting is not open")
	}

	if _, err := m.deps.Store.SetAdd(ctx, store.MarbleVoteDoneKey(roomID), deviceID); err != nil {
		return apperr.Internal(err)
	}
	done, err := m.deps.Store.SetSize(ctx, store.MarbleVoteDoneKey(roomID))
	if err != nil {
		return apperr.Internal(err)
	}
	if done >= int64(len(info.Players)) {
		return m.closeVoting(ctx, roomID, st)
	}
	return nil
}

// FinishVoting is the host command that closes submission and voting
// immediately, whatever their progress.
func (m *Machine) FinishVoting(ctx context.Context, roomID string) error {
	st, err := m.State(ctx, roomID)
	if err != nil {
		return err
	}
	if st.Phase != PhaseSubmitting && st.Phase != PhaseVoting {
		return apperr.InvalidState("voting already closed")
	}
	return m.closeVoting(ctx, roomID, st)
}

// closeVoting ranks penalties by vote count (ties in random order), tops
// the list up to 26 from the catalog and then the built-in pool, persists
// the selection and opens mode select.
func (m *Machine) closeVoting(ctx context.Context, roomID string, st *State) error {
	records, err := m.penalties(ctx, roomID)
	if err != nil {
		return err
	}
	counts, err := m.voteCounts(ctx, roomID)
	if err != nil {
		return err
	}

	order := rand.Perm(len(records))
	sort.SliceStable(order, func(a, b int) bool {
		return counts[order[a]+1] > counts[order[b]+1]
	})

	selected := make([]string, 0, selectedCount)
	for _, idx := range order {
		if len(selected) == selectedCount {
			break
		}
		selected = append(selected, records[idx].Text)
	}
	if len(selected) < selectedCount {
		if cat := m.deps.Catalog.FindOnePenaltyCategory(room.GameMarble); cat != nil {
			extra, err := m.deps.Catalog.RandomWords(cat.ID, selectedCount-len(selected))
			if err == nil {
				selected = append(selected, extra...)
			}
		}
	}
	if len(selected) < selectedCount {
		fill := rand.Perm(len(defaultPenalties))
		for _, idx := range fill {
			if len(selected) == selectedCount {
				break
			}
			selected = append(selected, defaultPenalties[idx])
		}
	}

	if err := m.deps.Store.Delete(ctx, store.MarbleSelectedKey(roomID)); err != nil {
		return apperr.Internal(err)
	}
	if err := m.deps.Store.ListAppend(ctx, store.MarbleSelectedKey(roomID), selected...); err != nil {
		return apperr.Internal(err)
	}

	st.Phase = PhaseModeSelect
	if err := m.save(ctx, roomID, st); err != nil {
		return err
	}

	m.log.Infow("penalty vote closed", "roomId", roomID, "submitted", len(records), "selected", len(selected))
	m.deps.Bus.BroadcastAll(roomID, event.New(event.MarblePenaltyResult, map[string]any{
		"penalties": selected,
	}))
	return nil
}

// SelectMode fixes team or solo play, generates the board and starts the
// first turn.
func (m *Machine) SelectMode(ctx context.Context, roomID, mode string) error {
	if mode != ModeTeam && mode != ModeSolo {
		return apperr.InvalidArgument("unknown mode %q", mode)
	}
	info, err := m.deps.Rooms.Get(ctx, roomID)
	if err != nil {
		return err
	}
	st, err := m.State(ctx, roomID)
	if err != nil {
		return err
	}
	if st.Phase != PhaseModeSelect {
		return apperr.InvalidState("mode select is not open")
	}

	var order []string
	switch mode {
	case ModeTeam:
		teams := info.Teams()
		if len(teams) < 2 {
			return apperr.InvalidState("teams are not assigned")
		}
		for tag := range teams {
			order = append(order, tag)
		}
		sort.Strings(order)
	case ModeSolo:
		for _, p := range info.Players {
			order = append(order, p.DeviceID)
		}
		rand.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}
	if len(order) == 0 {
		return apperr.InvalidState("no one to play")
	}

	selected, err := m.deps.Store.ListRange(ctx, store.MarbleSelectedKey(roomID), 0, -1)
	if err != nil {
		return apperr.Internal(err)
	}
	if len(selected) == 0 {
		return apperr.InvalidState("penalties are not selected yet")
	}

	st.Mode = mode
	st.Board = generateBoard(selected)
	st.TurnOrder = order
	st.TurnIndex = 0
	st.Positions = make(map[string]int, len(order))
	for _, key := range order {
		st.Positions[key] = 0
	}
	st.Phase = PhasePlaying
	if err := m.save(ctx, roomID, st); err != nil {
		return err
	}

	m.log.Infow("board ready", "roomId", roomID, "mode", mode, "movers", len(order))
	m.deps.Bus.BroadcastAll(roomID, event.New(event.MarbleGameStart, map[string]any{
		"mode":        mode,
		"board":       st.Board,
		"turnOrder":   st.TurnOrder,
		"positions":   st.Positions,
		"currentTurn": st.TurnOrder[0],
	}))
	return nil
}

// Roll draws a die for the current turn holder and advances the turn.
func (m *Machine) Roll(ctx context.Context, roomID, deviceID string) (*RollResult, error) {
	info, err := m.deps.Rooms.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	p := info.Player(deviceID)
	if p == nil {
		return nil, apperr.NotFound("device %s is not in room %s", deviceID, roomID)
	}
	st, err := m.State(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if st.Phase != PhasePlaying {
		return nil, apperr.InvalidState("the board is not in play")
	}

	mover := st.TurnOrder[st.TurnIndex]
	switch st.Mode {
	case ModeTeam:
		if p.Team != mover {
			return nil, apperr.InvalidState("it is team %s's turn", mover)
		}
	case ModeSolo:
		if deviceID != mover {
			return nil, apperr.InvalidState("it is not your turn")
		}
	}

	dice := rand.Intn(6) + 1
	pos := (st.Positions[mover] + dice) % BoardSize
	st.Positions[mover] = pos
	st.LastDice = dice
	st.TurnIndex = (st.TurnIndex + 1) % len(st.TurnOrder)
	next := st.TurnOrder[st.TurnIndex]
	if err := m.save(ctx, roomID, st); err != nil {
		return nil, err
	}

	result := &RollResult{
		Dice:     dice,
		Mover:    mover,
		Position: pos,
		Cell:     st.Board[pos],
		NextTurn: next,
	}
	if st.Mode == ModeSolo {
		result.Nickname = p.Nickname
	}

	m.deps.Bus.BroadcastAll(roomID, event.New(event.MarbleDiceRolled, result))
	m.deps.Bus.BroadcastPlayers(roomID, event.New(event.MarbleTurnChange, map[string]any{
		"currentTurn": next,
		"positions":   st.Positions,
	}))
	return result, nil
}

// End clears every marble key and returns the room to the lobby.
func (m *Machine) End(ctx context.Context, roomID string) error {
	if _, err := m.deps.Rooms.Get(ctx, roomID); err != nil {
		return err
	}
	if err := m.deps.Store.Delete(ctx, store.GameKeys(roomID, room.GameMarble)...); err != nil {
		return apperr.Internal(err)
	}
	if err := m.deps.Rooms.SetCurrentGame(ctx, roomID, ""); err != nil {
		return err
	}
	m.log.Infow("game ended", "roomId", roomID)
	m.deps.Bus.BroadcastAll(roomID, event.New(event.MarbleGameEnd, map[string]any{}))
	return nil
}

func (m *Machine) save(ctx context.Context, roomID string, st *State) error {
	return game.SaveState(ctx, m.deps.Store, store.MarbleStateKey(roomID), st)
}

func (m *Machine) penalties(ctx context.Context, roomID string) ([]penaltyRecord, error) {
	rows, err := m.deps.Store.ListRange(ctx, store.MarblePenaltiesKey(roomID), 0, -1)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	out := make([]penaltyRecord, 0, len(rows))
	for _, row := range rows {
		var rec penaltyRecord
		if err := json.Unmarshal([]byte(row), &rec); err != nil {
			return nil, apperr.Internal(err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// voteCounts folds the toggle log into live vote counts per penalty id.
func (m *Machine) voteCounts(ctx context.Context, roomID string) (map[int]int, error) {
	rows, err := m.deps.Store.ListRange(ctx, store.MarbleVotesKey(roomID), 0, -1)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	live := make(map[voteRecord]bool)
	for _, row := range rows {
		var rec voteRecord
		if err := json.Unmarshal([]byte(row), &rec); err != nil {
			return nil, apperr.Internal(err)
		}
		live[rec] = !live[rec]
	}
	counts := make(map[int]int)
	for rec, on := range live {
		if on {
			counts[rec.PenaltyID]++
		}
	}
	return counts, nil
}

func (m *Machine) voteSnapshot(ctx context.Context, roomID string, records []penaltyRecord) ([]VoteEntry, error) {
	counts, err := m.voteCounts(ctx, roomID)
	if err != nil {
		return nil, err
	}
	entries := make([]VoteEntry, 0, len(records))
	for i, rec := range records {
		entries = append(entries, VoteEntry{
			PenaltyID: i + 1,
			Text:      rec.Text,
			Count:     counts[i+1],
		})
	}
	sort.SliceStable(entries, func(a, b int) bool {
		if entries[a].Count != entries[b].Count {
			return entries[a].Count > entries[b].Count
		}
		return entries[a].PenaltyID < entries[b].PenaltyID
	})
	return entries, nil
}
