package mafia

import (
	"context"

	"suljari/internal/apperr"
	"suljari/internal/event"
	"suljari/internal/room"
)

// NightResult is returned synchronously to the police. Other roles get nil.
type NightResult struct {
	IsMafia bool `json:"isMafia"`
}

// NightAction records the caller's night choice, inferred from their role:
// mafia pick the kill, the doctor the save, the police the investigation.
// The police response is never broadcast.
func (m *Machine) NightAction(ctx context.Context, roomID, deviceID, targetID string) (*NightResult, error) {
	info, err := m.deps.Rooms.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	st, err := m.State(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if st.Phase != PhaseNight {
		return nil, apperr.InvalidState("night actions are only valid at night")
	}

	actor := info.Player(deviceID)
	if actor == nil {
		return nil, apperr.NotFound("device %s is not in room %s", deviceID, roomID)
	}
	if !actor.Alive {
		return nil, apperr.InvalidState("dead players cannot act")
	}
	target := info.Player(targetID)
	if target == nil {
		return nil, apperr.InvalidArgument("target %s is not in room %s", targetID, roomID)
	}
	if !target.Alive {
		return nil, apperr.InvalidState("target is already dead")
	}

	var result *NightResult
	switch actor.Role {
	case RoleMafia:
		st.MafiaTarget = targetID
	case RoleDoctor:
		st.DoctorTarget = targetID
	case RolePolice:
		st.PoliceTarget = targetID
		result = &NightResult{IsMafia: target.Role == RoleMafia}
	default:
		return nil, apperr.Unauthorized("role %q has no night action", actor.Role)
	}
	if err := m.save(ctx, roomID, st); err != nil {
		return nil, err
	}

	if nightComplete(info, st) {
		m.deps.Scheduler.Cancel(roomID)
		m.resolveNight(ctx, roomID, st)
	}
	return result, nil
}

// nightComplete reports whether every role with a living representative
// has chosen its target.
func nightComplete(info *room.Info, st *State) bool {
	var needMafia, needDoctor, needPolice bool
	for _, p := range info.Players {
		if !p.Alive {
			continue
		}
		switch p.Role {
		case RoleMafia:
			needMafia = true
		case RoleDoctor:
			needDoctor = true
		case RolePolice:
			needPolice = true
		}
	}
	if needMafia && st.MafiaTarget == "" {
		return false
	}
	if needDoctor && st.DoctorTarget == "" {
		return false
	}
	if needPolice && st.PoliceTarget == "" {
		return false
	}
	return true
}

// resolveNight applies the night choices, announces the morning and either
// ends the game or opens the day announcement.
func (m *Machine) resolveNight(ctx context.Context, roomID string, st *State) {
	st.WasSaved = false
	st.LastNightKilled = ""

	killed := st.MafiaTarget
	if killed != "" && killed == st.DoctorTarget {
		st.WasSaved = true
		killed = ""
	}

	var info *room.Info
	var err error
	if killed != "" {
		st.LastNightKilled = killed
		info, err = m.markDead(ctx, roomID, st, killed)
	} else {
		info, err = m.deps.Rooms.Get(ctx, roomID)
	}
	if err != nil {
		m.log.Warnw("night resolution failed", "roomId", roomID, "error", err)
		return
	}
	st.MafiaTarget = ""
	st.DoctorTarget = ""
	st.PoliceTarget = ""

	payload := map[string]any{
		"dayCount": st.DayCount,
		"wasSaved": st.WasSaved,
	}
	message := "아무 일도 일어나지 않은 평화로운 밤이었습니다"
	if st.WasSaved {
		message = "의사의 활약으로 아무도 희생되지 않았습니다"
	}
	if killed != "" {
		nickname := killed
		if p := info.Player(killed); p != nil {
			nickname = p.Nickname
		}
		payload["killedDeviceId"] = killed
		payload["killedNickname"] = nickname
		message = nickname + "님이 밤 사이 희생되었습니다"
	}
	payload["message"] = message
	m.deps.Bus.BroadcastAll(roomID, event.New(event.MafiaDayAnnouncement, payload))

	if winner := checkWinner(info); winner != "" {
		m.finishGame(ctx, roomID, st, winner)
		return
	}
	m.enterPhase(ctx, roomID, st, PhaseDayAnnouncement)
}
