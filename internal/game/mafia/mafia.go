// Package mafia implements the social-deduction game: timed night and day
// phases, hidden roles, mafia-only chat and server-resolved votes.
package mafia

import (
	"context"
	"time"

	"go.uber.org/zap"

	"suljari/internal/apperr"
	"suljari/internal/event"
	"suljari/internal/game"
	"suljari/internal/room"
	"suljari/internal/store"
)

// Phases.
const (
	PhaseNight           = "night"
	PhaseDayAnnouncement = "dayAnnouncement"
	PhaseDayDiscussion   = "dayDiscussion"
	PhaseVote            = "vote"
	PhaseVoteResult      = "voteResult"
	PhaseFinalDefense    = "finalDefense"
	PhaseFinalVote       = "finalVote"
	PhaseFinalVoteResult = "finalVoteResult"
	PhaseGameEnd         = "gameEnd"
)

// phaseDurations carries the deadline of every phase in seconds. A zero
// duration means the phase is not timed.
var phaseDurations = map[string]int{
	PhaseNight:           30,
	PhaseDayAnnouncement: 10,
	PhaseDayDiscussion:   240,
	PhaseVote:            60,
	PhaseVoteResult:      5,
	PhaseFinalDefense:    30,
	PhaseFinalVote:       30,
	PhaseFinalVoteResult: 5,
	PhaseGameEnd:         0,
}

// Winners.
const (
	WinnerMafia   = "mafia"
	WinnerCitizen = "citizen"
)

// Final-vote choices.
const (
	FinalVoteKill = "kill"
	FinalVoteSave = "save"
)

// ChatMessage is one mafia chat line.
type ChatMessage struct {
	DeviceID  string `json:"deviceId"`
	Nickname  string `json:"nickname"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// State is the JSON document at room:{id}:state.
type State struct {
	Phase           string            `json:"phase"`
	TimerSec        int               `json:"timerSec"`
	DayCount        int               `json:"dayCount"`
	MafiaTarget     string            `json:"mafiaTarget,omitempty"`
	DoctorTarget    string            `json:"doctorTarget,omitempty"`
	PoliceTarget    string            `json:"policeTarget,omitempty"`
	Votes           map[string]string `json:"votes,omitempty"`
	FinalVotes      map[string]string `json:"finalVotes,omitempty"`
	ExecutionTarget string            `json:"executionTarget,omitempty"`
	LastNightKilled string            `json:"lastNightKilled,omitempty"`
	WasSaved        bool              `json:"wasSaved"`
	MafiaChat       []ChatMessage     `json:"mafiaChat,omitempty"`
	DeadPlayers     []string          `json:"deadPlayers,omitempty"`
	Winner          string            `json:"winner,omitempty"`
}

// Machine drives the mafia game.
type Machine struct {
	deps game.Deps
	log  *zap.SugaredLogger
}

// New builds the mafia machine.
func New(deps game.Deps) *Machine {
	return &Machine{deps: deps, log: deps.Log.Named("mafia")}
}

// State returns the current machine state.
func (m *Machine) State(ctx context.Context, roomID string) (*State, error) {
	var st State
	if err := game.LoadState(ctx, m.deps.Store, store.MafiaStateKey(roomID), &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Start deals roles to at least four players and opens the first night.
func (m *Machine) Start(ctx context.Context, roomID string) error {
	info, err := m.deps.Rooms.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if len(info.Players) < MinPlayers {
		return apperr.InvalidState("mafia needs at least %d players, room has %d", MinPlayers, len(info.Players))
	}

	roles := rolledRoles(len(info.Players))
	for i := range info.Players {
		info.Players[i].Role = roles[i]
		info.Players[i].Alive = true
	}
	if err := m.deps.Rooms.Save(ctx, info); err != nil {
		return err
	}

	st := &State{
		Phase:    PhaseNight,
		TimerSec: phaseDurations[PhaseNight],
		DayCount: 1,
	}
	if err := m.save(ctx, roomID, st); err != nil {
		return err
	}

	n := len(info.Players)
	m.log.Infow("game dealt", "roomId", roomID, "players", n, "mafia", mafiaCount(n))
	m.deps.Bus.BroadcastAll(roomID, event.New(event.MafiaGameStarted, map[string]any{
		"playerCount": n,
		"mafiaCount":  mafiaCount(n),
		"hasDoctor":   n >= 6,
		"hasPolice":   n >= 7,
		"dayCount":    st.DayCount,
	}))
	m.announcePhase(roomID, st)
	m.armPhase(roomID, PhaseNight)
	return nil
}

// Role returns the caller's private role card. Mafia also see their
// accomplices.
func (m *Machine) Role(ctx context.Context, roomID, deviceID string) (map[string]any, error) {
	info, err := m.deps.Rooms.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	p := info.Player(deviceID)
	if p == nil {
		return nil, apperr.NotFound("device %s is not in room %s", deviceID, roomID)
	}
	if p.Role == "" {
		return nil, apperr.InvalidState("roles are not dealt yet")
	}

	out := map[string]any{
		"role":  p.Role,
		"alive": p.Alive,
	}
	if p.Role == RoleMafia {
		accomplices := make([]map[string]string, 0)
		for _, other := range info.Players {
			if other.Role == RoleMafia && other.DeviceID != deviceID {
				accomplices = append(accomplices, map[string]string{
					"deviceId": other.DeviceID,
					"nickname": other.Nickname,
				})
			}
		}
		out["accomplices"] = accomplices
	}
	return out, nil
}

// ForcePhase jumps the machine to an arbitrary phase. Exposed only on
// debug-enabled servers.
func (m *Machine) ForcePhase(ctx context.Context, roomID, phase string) error {
	if _, known := phaseDurations[phase]; !known {
		return apperr.InvalidArgument("unknown phase %q", phase)
	}
	st, err := m.State(ctx, roomID)
	if err != nil {
		return err
	}

	m.deps.Scheduler.Cancel(roomID)
	m.enterPhase(ctx, roomID, st, phase)
	return nil
}

// enterPhase moves the state into phase, announces it and arms its timer.
// Callers have already dealt with any phase-specific bookkeeping.
func (m *Machine) enterPhase(ctx context.Context, roomID string, st *State, phase string) {
	st.Phase = phase
	st.TimerSec = phaseDurations[phase]
	if err := m.save(ctx, roomID, st); err != nil {
		m.log.Warnw("failed to persist phase change", "roomId", roomID, "phase", phase, "error", err)
		return
	}
	m.announcePhase(roomID, st)
	m.armPhase(roomID, phase)
}

func (m *Machine) announcePhase(roomID string, st *State) {
	m.deps.Bus.BroadcastAll(roomID, event.New(event.MafiaPhaseChanged, map[string]any{
		"phase":    st.Phase,
		"duration": st.TimerSec,
		"dayCount": st.DayCount,
	}))
}

// armPhase starts the phase countdown. Zero-duration phases never arm.
func (m *Machine) armPhase(roomID, phase string) {
	duration := phaseDurations[phase]
	if duration <= 0 {
		return
	}
	m.deps.Scheduler.StartCountdown(roomID, duration,
		func(remaining int) {
			m.deps.Bus.BroadcastAll(roomID, event.New(event.MafiaTimer, map[string]any{
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
	case PhaseNight:
		m.resolveNight(ctx, roomID, st)
	case PhaseDayAnnouncement:
		m.enterPhase(ctx, roomID, st, PhaseDayDiscussion)
	case PhaseDayDiscussion:
		st.Votes = map[string]string{}
		m.enterPhase(ctx, roomID, st, PhaseVote)
	case PhaseVote:
		m.resolveVote(ctx, roomID, st)
	case PhaseVoteResult:
		if st.ExecutionTarget != "" {
			m.enterPhase(ctx, roomID, st, PhaseFinalDefense)
		} else {
			m.nextNight(ctx, roomID, st)
		}
	case PhaseFinalDefense:
		st.FinalVotes = map[string]string{}
		m.enterPhase(ctx, roomID, st, PhaseFinalVote)
	case PhaseFinalVote:
		m.resolveFinalVote(ctx, roomID, st)
	case PhaseFinalVoteResult:
		m.afterExecution(ctx, roomID, st)
	}
}

// nextNight opens the following night cycle.
func (m *Machine) nextNight(ctx context.Context, roomID string, st *State) {
	st.DayCount++
	st.MafiaTarget = ""
	st.DoctorTarget = ""
	st.PoliceTarget = ""
	st.ExecutionTarget = ""
	st.Votes = nil
	st.FinalVotes = nil
	m.enterPhase(ctx, roomID, st, PhaseNight)
}

// finishGame enters gameEnd and publishes every role.
func (m *Machine) finishGame(ctx context.Context, roomID string, st *State, winner string) {
	st.Winner = winner
	st.Phase = PhaseGameEnd
	st.TimerSec = 0
	if err := m.save(ctx, roomID, st); err != nil {
		m.log.Warnw("failed to persist game end", "roomId", roomID, "error", err)
		return
	}

	info, err := m.deps.Rooms.Get(ctx, roomID)
	if err != nil {
		m.log.Warnw("game end without room record", "roomId", roomID, "error", err)
		return
	}
	reveal := make([]map[string]any, 0, len(info.Players))
	for _, p := range info.Players {
		reveal = append(reveal, map[string]any{
			"deviceId": p.DeviceID,
			"nickname": p.Nickname,
			"role":     p.Role,
			"alive":    p.Alive,
		})
	}

	m.log.Infow("game over", "roomId", roomID, "winner", winner, "days", st.DayCount)
	m.announcePhase(roomID, st)
	m.deps.Bus.BroadcastAll(roomID, event.New(event.MafiaGameEnd, map[string]any{
		"winner":  winner,
		"players": reveal,
	}))
}

// checkWinner inspects living roles. An empty string means play on.
func checkWinner(info *room.Info) string {
	mafiaAlive, othersAlive := 0, 0
	for _, p := range info.Players {
		if !p.Alive {
			continue
		}
		if p.Role == RoleMafia {
			mafiaAlive++
		} else {
			othersAlive++
		}
	}
	if mafiaAlive == 0 {
		return WinnerCitizen
	}
	if mafiaAlive >= othersAlive {
		return WinnerMafia
	}
	return ""
}

// markDead flips the player to dead in both the roster and the state's
// dead list.
func (m *Machine) markDead(ctx context.Context, roomID string, st *State, deviceID string) (*room.Info, error) {
	info, err := m.deps.Rooms.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if p := info.Player(deviceID); p != nil {
		p.Alive = false
	}
	if err := m.deps.Rooms.Save(ctx, info); err != nil {
		return nil, err
	}
	st.DeadPlayers = append(st.DeadPlayers, deviceID)
	return info, nil
}

func (m *Machine) save(ctx context.Context, roomID string, st *State) error {
	return game.SaveState(ctx, m.deps.Store, store.MafiaStateKey(roomID), st)
}
