package mafia

import (
	"context"
	"sort"

	"suljari/internal/apperr"
	"suljari/internal/event"
	"suljari/internal/game"
)

// Vote records one execution ballot during the vote phase. Re-voting
// replaces the earlier ballot.
func (m *Machine) Vote(ctx context.Context, roomID, deviceID, targetID string) error {
	info, err := m.deps.Rooms.Get(ctx, roomID)
	if err != nil {
		return err
	}
	st, err := m.State(ctx, roomID)
	if err != nil {
		return err
	}
	if st.Phase != PhaseVote {
		return apperr.InvalidState("voting is not open")
	}

	voter := info.Player(deviceID)
	if voter == nil {
		return apperr.NotFound("device %s is not in room %s", deviceID, roomID)
	}
	if !voter.Alive {
		return apperr.InvalidState("dead players cannot vote")
	}
	target := info.Player(targetID)
	if target == nil {
		return apperr.InvalidArgument("target %s is not in room %s", targetID, roomID)
	}
	if !target.Alive {
		return apperr.InvalidState("target is already dead")
	}

	if st.Votes == nil {
		st.Votes = map[string]string{}
	}
	st.Votes[deviceID] = targetID
	return m.save(ctx, roomID, st)
}

// resolveVote runs at vote-phase completion: a unique plurality winner
// becomes the execution target, a shared lead is a tie and nobody faces
// the final vote.
func (m *Machine) resolveVote(ctx context.Context, roomID string, st *State) {
	info, err := m.deps.Rooms.Get(ctx, roomID)
	if err != nil {
		m.log.Warnw("vote resolution without room record", "roomId", roomID, "error", err)
		return
	}

	counts := game.CountBallots(st.Votes)
	target, _, unique := game.TopUnique(counts)
	if unique {
		st.ExecutionTarget = target
	} else {
		st.ExecutionTarget = ""
	}

	type row struct {
		DeviceID string `json:"deviceId"`
		Nickname string `json:"nickname"`
		Count    int    `json:"count"`
	}
	results := make([]row, 0, len(counts))
	for id, n := range counts {
		nickname := id
		if p := info.Player(id); p != nil {
			nickname = p.Nickname
		}
		results = append(results, row{DeviceID: id, Nickname: nickname, Count: n})
	}
	sort.Slice(results, func(a, b int) bool {
		if results[a].Count != results[b].Count {
			return results[a].Count > results[b].Count
		}
		return results[a].DeviceID < results[b].DeviceID
	})

	payload := map[string]any{
		"results": results,
		"isTie":   !unique && len(counts) > 0,
	}
	if st.ExecutionTarget != "" {
		payload["executionTarget"] = st.ExecutionTarget
		if p := info.Player(st.ExecutionTarget); p != nil {
			payload["executionNickname"] = p.Nickname
		}
	}
	m.deps.Bus.BroadcastAll(roomID, event.New(event.MafiaVoteResult, payload))

	m.enterPhase(ctx, roomID, st, PhaseVoteResult)
}

// FinalVote records a kill-or-save ballot on the execution target. The
// accused cannot vote.
func (m *Machine) FinalVote(ctx context.Context, roomID, deviceID, choice string) error {
	if choice != FinalVoteKill && choice != FinalVoteSave {
		return apperr.InvalidArgument("final vote must be %q or %q", FinalVoteKill, FinalVoteSave)
	}
	info, err := m.deps.Rooms.Get(ctx, roomID)
	if err != nil {
		return err
	}
	st, err := m.State(ctx, roomID)
	if err != nil {
		return err
	}
	if st.Phase != PhaseFinalVote {
		return apperr.InvalidState("the final vote is not open")
	}

	voter := info.Player(deviceID)
	if voter == nil {
		return apperr.NotFound("device %s is not in room %s", deviceID, roomID)
	}
	if !voter.Alive {
		return apperr.InvalidState("dead players cannot vote")
	}
	if deviceID == st.ExecutionTarget {
		return apperr.InvalidState("the accused cannot vote on their own execution")
	}

	if st.FinalVotes == nil {
		st.FinalVotes = map[string]string{}
	}
	st.FinalVotes[deviceID] = choice
	return m.save(ctx, roomID, st)
}

// resolveFinalVote runs at final-vote completion. The execution passes
// only when kill votes strictly outnumber save votes.
func (m *Machine) resolveFinalVote(ctx context.Context, roomID string, st *State) {
	killVotes, saveVotes := 0, 0
	for _, choice := range st.FinalVotes {
		switch choice {
		case FinalVoteKill:
			killVotes++
		case FinalVoteSave:
			saveVotes++
		}
	}
	passed := killVotes > saveVotes

	payload := map[string]any{
		"killVotes": killVotes,
		"saveVotes": saveVotes,
		"passed":    passed,
	}

	if passed && st.ExecutionTarget != "" {
		executed := st.ExecutionTarget
		info, err := m.markDead(ctx, roomID, st, executed)
		if err != nil {
			m.log.Warnw("execution failed", "roomId", roomID, "error", err)
			return
		}
		payload["executedDeviceId"] = executed
		if p := info.Player(executed); p != nil {
			payload["executedNickname"] = p.Nickname
		}
	}
	m.deps.Bus.BroadcastAll(roomID, event.New(event.MafiaFinalVoteResult, payload))

	m.enterPhase(ctx, roomID, st, PhaseFinalVoteResult)
}

// afterExecution runs once the final-vote result has been displayed: the
// game ends if a side has won, otherwise the next night begins.
func (m *Machine) afterExecution(ctx context.Context, roomID string, st *State) {
	info, err := m.deps.Rooms.Get(ctx, roomID)
	if err != nil {
		m.log.Warnw("post-execution check without room record", "roomId", roomID, "error", err)
		return
	}
	if winner := checkWinner(info); winner != "" {
		m.finishGame(ctx, roomID, st, winner)
		return
	}
	m.nextNight(ctx, roomID, st)
}
