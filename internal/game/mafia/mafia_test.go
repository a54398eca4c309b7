package mafia

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"suljari"
	"suljari/internal/apperr"
	"suljari/internal/bus"
	"suljari/internal/catalog"
	"suljari/internal/game"
	"suljari/internal/room"
	"suljari/internal/scheduler"
	"suljari/internal/store"
)

func newTestDeps(t *testing.T) game.Deps {
	t.Helper()
	log := zap.NewNop().Sugar()
	st := store.NewMemoryStore(time.Hour, log)
	t.Cleanup(st.Close)
	b := bus.New(log)
	sched := scheduler.New(log)
	t.Cleanup(sched.Shutdown)
	cat, err := catalog.New(suljari.CatalogSeedJSON)
	if err != nil {
		t.Fatalf("failed to load catalog seed: %v", err)
	}
	return game.Deps{
		Store:     st,
		Bus:       b,
		Scheduler: sched,
		Rooms:     room.NewRegistry(st, b, 4, 8, log),
		Catalog:   cat,
		Log:       log,
	}
}

func startGame(t *testing.T, deps game.Deps, players int) (*Machine, string, *room.Info) {
	t.Helper()
	ctx := context.Background()
	m := New(deps)
	info, err := deps.Rooms.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i := 0; i < players; i++ {
		if _, err := deps.Rooms.Join(ctx, info.RoomID, fmt.Sprintf("선수%d", i)); err != nil {
			t.Fatalf("Join %d: %v", i, err)
		}
	}
	if err := m.Start(ctx, info.RoomID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	full, err := deps.Rooms.Get(ctx, info.RoomID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return m, info.RoomID, full
}

func withRole(info *room.Info, role string) []string {
	var out []string
	for _, p := range info.Players {
		if p.Role == role {
			out = append(out, p.DeviceID)
		}
	}
	return out
}

// waitFor reads the stream until the named event arrives, skipping timer
// and phase frames in between.
func waitFor(t *testing.T, ch <-chan bus.Message, name string) bus.Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-ch:
			if msg.Name == name {
				return msg
			}
		case <-deadline:
			t.Fatalf("event %s never arrived", name)
			return bus.Message{}
		}
	}
}

func decode(t *testing.T, msg bus.Message) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal([]byte(msg.Data), &payload); err != nil {
		t.Fatalf("bad payload in %s: %v", msg.Name, err)
	}
	return payload
}

func neverReceives(t *testing.T, ch <-chan bus.Message, name string) {
	t.Helper()
	timeout := time.After(150 * time.Millisecond)
	for {
		select {
		case msg := <-ch:
			if msg.Name == name {
				t.Fatalf("event %s must not reach this stream", name)
			}
		case <-timeout:
			return
		}
	}
}

func TestRoleDistribution(t *testing.T) {
	cases := []struct {
		players, mafia int
		doctor, police bool
	}{
		{4, 1, false, false},
		{5, 1, false, false},
		{6, 2, true, false},
		{7, 2, true, true},
		{8, 2, true, true},
		{9, 3, true, true},
		{12, 3, true, true},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d players", tc.players), func(t *testing.T) {
			roles := rolledRoles(tc.players)
			if len(roles) != tc.players {
				t.Fatalf("%d roles for %d players", len(roles), tc.players)
			}
			counts := map[string]int{}
			for _, r := range roles {
				counts[r]++
			}
			if counts[RoleMafia] != tc.mafia {
				t.Errorf("mafia = %d, want %d", counts[RoleMafia], tc.mafia)
			}
			if (counts[RoleDoctor] == 1) != tc.doctor {
				t.Errorf("doctor = %d, want present=%v", counts[RoleDoctor], tc.doctor)
			}
			if (counts[RolePolice] == 1) != tc.police {
				t.Errorf("police = %d, want present=%v", counts[RolePolice], tc.police)
			}
		})
	}
}

func TestStart(t *testing.T) {
	deps := newTestDeps(t)
	m, roomID, info := startGame(t, deps, 4)
	ctx := context.Background()

	st, err := m.State(ctx, roomID)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if st.Phase != PhaseNight || st.DayCount != 1 {
		t.Errorf("opening state = %s day %d, want night day 1", st.Phase, st.DayCount)
	}
	for _, p := range info.Players {
		if p.Role == "" || !p.Alive {
			t.Errorf("player %s dealt %q alive=%v", p.Nickname, p.Role, p.Alive)
		}
	}

	t.Run("too few players", func(t *testing.T) {
		small, _ := deps.Rooms.Create(ctx)
		for i := 0; i < 3; i++ {
			if _, err := deps.Rooms.Join(ctx, small.RoomID, fmt.Sprintf("선수%d", i)); err != nil {
				t.Fatalf("Join: %v", err)
			}
		}
		if err := m.Start(ctx, small.RoomID); !errors.Is(err, apperr.ErrInvalidState) {
			t.Errorf("error = %v, want invalidState", err)
		}
	})
}

func TestNightResolution(t *testing.T) {
	deps := newTestDeps(t)
	m, roomID, info := startGame(t, deps, 6) // 2 mafia, 1 doctor, 3 civilians
	ctx := context.Background()

	mafias := withRole(info, RoleMafia)
	doctor := withRole(info, RoleDoctor)[0]
	civilians := withRole(info, RoleCivilian)

	host := deps.Bus.AttachHost(roomID)

	// The doctor protects someone else, so the mafia target dies.
	victim := civilians[0]
	if _, err := m.NightAction(ctx, roomID, mafias[0], victim); err != nil {
		t.Fatalf("mafia action: %v", err)
	}

	st, _ := m.State(ctx, roomID)
	if st.Phase != PhaseNight {
		t.Fatal("night ended before the doctor acted")
	}

	if _, err := m.NightAction(ctx, roomID, doctor, civilians[1]); err != nil {
		t.Fatalf("doctor action: %v", err)
	}

	morning := decode(t, waitFor(t, host.C, "MAFIA_DAY_ANNOUNCEMENT"))
	if morning["wasSaved"] != false || morning["killedDeviceId"] != victim {
		t.Errorf("announcement = %v", morning)
	}

	st, _ = m.State(ctx, roomID)
	if st.Phase != PhaseDayAnnouncement {
		t.Errorf("phase = %s, want dayAnnouncement once every role acted", st.Phase)
	}
	if st.LastNightKilled != victim || st.WasSaved {
		t.Errorf("resolution = killed %q saved %v, want %q killed", st.LastNightKilled, st.WasSaved, victim)
	}

	after, _ := deps.Rooms.Get(ctx, roomID)
	if after.Player(victim).Alive {
		t.Error("victim still alive in the roster")
	}
}

func TestDoctorSavesTarget(t *testing.T) {
	deps := newTestDeps(t)
	m, roomID, info := startGame(t, deps, 6)
	ctx := context.Background()

	mafias := withRole(info, RoleMafia)
	doctor := withRole(info, RoleDoctor)[0]
	target := withRole(info, RoleCivilian)[0]

	if _, err := m.NightAction(ctx, roomID, mafias[0], target); err != nil {
		t.Fatalf("mafia action: %v", err)
	}
	if _, err := m.NightAction(ctx, roomID, doctor, target); err != nil {
		t.Fatalf("doctor action: %v", err)
	}

	st, _ := m.State(ctx, roomID)
	if !st.WasSaved || st.LastNightKilled != "" {
		t.Errorf("resolution = saved %v killed %q, want a save", st.WasSaved, st.LastNightKilled)
	}
	after, _ := deps.Rooms.Get(ctx, roomID)
	if !after.Player(target).Alive {
		t.Error("saved target died anyway")
	}
}

func TestPoliceInvestigation(t *testing.T) {
	deps := newTestDeps(t)
	m, roomID, info := startGame(t, deps, 7)
	ctx := context.Background()

	police := withRole(info, RolePolice)[0]
	mafia := withRole(info, RoleMafia)[0]
	civilian := withRole(info, RoleCivilian)[0]

	host := deps.Bus.AttachHost(roomID)

	result, err := m.NightAction(ctx, roomID, police, mafia)
	if err != nil {
		t.Fatalf("investigate mafia: %v", err)
	}
	if result == nil || !result.IsMafia {
		t.Errorf("investigating a mafia returned %+v", result)
	}

	result, err = m.NightAction(ctx, roomID, police, civilian)
	if err != nil {
		t.Fatalf("investigate civilian: %v", err)
	}
	if result == nil || result.IsMafia {
		t.Errorf("investigating a civilian returned %+v", result)
	}

	// The investigation result exists only in the police response.
	neverReceives(t, host.C, "MAFIA_DAY_ANNOUNCEMENT")

	t.Run("mafia action returns nothing", func(t *testing.T) {
		res, err := m.NightAction(ctx, roomID, mafia, civilian)
		if err != nil {
			t.Fatalf("mafia action: %v", err)
		}
		if res != nil {
			t.Errorf("mafia action leaked a result: %+v", res)
		}
	})
}

func TestNightActionValidation(t *testing.T) {
	deps := newTestDeps(t)
	m, roomID, info := startGame(t, deps, 6)
	ctx := context.Background()

	civilian := withRole(info, RoleCivilian)[0]
	mafia := withRole(info, RoleMafia)[0]

	if _, err := m.NightAction(ctx, roomID, civilian, mafia); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Errorf("civilian action error = %v, want unauthorized", err)
	}
	if _, err := m.NightAction(ctx, roomID, mafia, "ghost"); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("unknown target error = %v, want invalidArgument", err)
	}

	if err := m.ForcePhase(ctx, roomID, PhaseDayDiscussion); err != nil {
		t.Fatalf("ForcePhase: %v", err)
	}
	if _, err := m.NightAction(ctx, roomID, mafia, civilian); !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("day action error = %v, want invalidState", err)
	}
}

func TestVotePlurality(t *testing.T) {
	deps := newTestDeps(t)
	m, roomID, info := startGame(t, deps, 4) // 1 mafia, 3 civilians
	ctx := context.Background()

	if err := m.ForcePhase(ctx, roomID, PhaseVote); err != nil {
		t.Fatalf("ForcePhase: %v", err)
	}

	all := info.Players
	target := all[0].DeviceID
	for _, p := range all[1:] {
		if err := m.Vote(ctx, roomID, p.DeviceID, target); err != nil {
			t.Fatalf("Vote: %v", err)
		}
	}
	if err := m.Vote(ctx, roomID, all[0].DeviceID, all[1].DeviceID); err != nil {
		t.Fatalf("Vote: %v", err)
	}

	m.onPhaseComplete(roomID, PhaseVote)

	st, _ := m.State(ctx, roomID)
	if st.Phase != PhaseVoteResult {
		t.Fatalf("phase = %s, want voteResult", st.Phase)
	}
	if st.ExecutionTarget != target {
		t.Errorf("execution target = %q, want %q", st.ExecutionTarget, target)
	}

	m.onPhaseComplete(roomID, PhaseVoteResult)
	st, _ = m.State(ctx, roomID)
	if st.Phase != PhaseFinalDefense {
		t.Errorf("phase = %s, want finalDefense when a target stands", st.Phase)
	}
}

func TestVoteTieMeansNoExecution(t *testing.T) {
	deps := newTestDeps(t)
	m, roomID, info := startGame(t, deps, 4)
	ctx := context.Background()

	if err := m.ForcePhase(ctx, roomID, PhaseVote); err != nil {
		t.Fatalf("ForcePhase: %v", err)
	}

	all := info.Players
	// Two votes each for two targets.
	votes := map[string]string{
		all[0].DeviceID: all[2].DeviceID,
		all[1].DeviceID: all[2].DeviceID,
		all[2].DeviceID: all[0].DeviceID,
		all[3].DeviceID: all[0].DeviceID,
	}
	for voter, tgt := range votes {
		if err := m.Vote(ctx, roomID, voter, tgt); err != nil {
			t.Fatalf("Vote: %v", err)
		}
	}

	m.onPhaseComplete(roomID, PhaseVote)
	st, _ := m.State(ctx, roomID)
	if st.ExecutionTarget != "" {
		t.Errorf("tie produced execution target %q", st.ExecutionTarget)
	}

	m.onPhaseComplete(roomID, PhaseVoteResult)
	st, _ = m.State(ctx, roomID)
	if st.Phase != PhaseNight || st.DayCount != 2 {
		t.Errorf("after tie phase = %s day %d, want night day 2", st.Phase, st.DayCount)
	}
}

func TestFinalVoteExecution(t *testing.T) {
	deps := newTestDeps(t)
	m, roomID, info := startGame(t, deps, 4)
	ctx := context.Background()

	mafia := withRole(info, RoleMafia)[0]
	civilians := withRole(info, RoleCivilian)

	st, _ := m.State(ctx, roomID)
	st.ExecutionTarget = mafia
	if err := m.save(ctx, roomID, st); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := m.ForcePhase(ctx, roomID, PhaseFinalVote); err != nil {
		t.Fatalf("ForcePhase: %v", err)
	}

	t.Run("accused cannot vote", func(t *testing.T) {
		if err := m.FinalVote(ctx, roomID, mafia, FinalVoteKill); !errors.Is(err, apperr.ErrInvalidState) {
			t.Errorf("error = %v, want invalidState", err)
		}
	})

	if err := m.FinalVote(ctx, roomID, civilians[0], FinalVoteKill); err != nil {
		t.Fatalf("FinalVote: %v", err)
	}
	if err := m.FinalVote(ctx, roomID, civilians[1], FinalVoteKill); err != nil {
		t.Fatalf("FinalVote: %v", err)
	}
	if err := m.FinalVote(ctx, roomID, civilians[2], FinalVoteSave); err != nil {
		t.Fatalf("FinalVote: %v", err)
	}

	host := deps.Bus.AttachHost(roomID)
	m.onPhaseComplete(roomID, PhaseFinalVote)

	after, _ := deps.Rooms.Get(ctx, roomID)
	if after.Player(mafia).Alive {
		t.Error("executed player still alive")
	}

	// Executing the only mafia ends the game for the citizens.
	m.onPhaseComplete(roomID, PhaseFinalVoteResult)
	st, _ = m.State(ctx, roomID)
	if st.Phase != PhaseGameEnd || st.Winner != WinnerCitizen {
		t.Errorf("end state = %s winner %q, want gameEnd citizen", st.Phase, st.Winner)
	}

	end := decode(t, waitFor(t, host.C, "MAFIA_GAME_END"))
	if end["winner"] != WinnerCitizen {
		t.Errorf("broadcast winner = %v", end["winner"])
	}
	if revealed := end["players"].([]any); len(revealed) != 4 {
		t.Errorf("revealed %d players, want 4", len(revealed))
	}
}

func TestFinalVoteFailsClosely(t *testing.T) {
	deps := newTestDeps(t)
	m, roomID, info := startGame(t, deps, 4)
	ctx := context.Background()

	accused := info.Players[0].DeviceID
	others := info.Players[1:]

	st, _ := m.State(ctx, roomID)
	st.ExecutionTarget = accused
	if err := m.save(ctx, roomID, st); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := m.ForcePhase(ctx, roomID, PhaseFinalVote); err != nil {
		t.Fatalf("ForcePhase: %v", err)
	}

	// kill == save is not a pass.
	if err := m.FinalVote(ctx, roomID, others[0].DeviceID, FinalVoteKill); err != nil {
		t.Fatalf("FinalVote: %v", err)
	}
	if err := m.FinalVote(ctx, roomID, others[1].DeviceID, FinalVoteSave); err != nil {
		t.Fatalf("FinalVote: %v", err)
	}

	m.onPhaseComplete(roomID, PhaseFinalVote)

	after, _ := deps.Rooms.Get(ctx, roomID)
	if !after.Player(accused).Alive {
		t.Error("tied final vote executed the accused")
	}

	m.onPhaseComplete(roomID, PhaseFinalVoteResult)
	st, _ = m.State(ctx, roomID)
	if st.Phase != PhaseNight || st.DayCount != 2 {
		t.Errorf("after failed execution phase = %s day %d, want night day 2", st.Phase, st.DayCount)
	}
	if st.ExecutionTarget != "" {
		t.Error("execution target survived into the next night")
	}
}

func TestChatPartition(t *testing.T) {
	deps := newTestDeps(t)
	m, roomID, info := startGame(t, deps, 6)
	ctx := context.Background()

	mafias := withRole(info, RoleMafia)
	civilian := withRole(info, RoleCivilian)[0]

	mafiaStream := deps.Bus.AttachPlayer(roomID, mafias[1])
	civilianStream := deps.Bus.AttachPlayer(roomID, civilian)

	if err := m.Chat(ctx, roomID, mafias[0], "이번엔 누구로 할까"); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	line := decode(t, waitFor(t, mafiaStream.C, "MAFIA_CHAT"))
	if line["message"] != "이번엔 누구로 할까" {
		t.Errorf("chat line = %v", line)
	}
	neverReceives(t, civilianStream.C, "MAFIA_CHAT")

	t.Run("civilian cannot post", func(t *testing.T) {
		err := m.Chat(ctx, roomID, civilian, "나도 끼워줘")
		if !errors.Is(err, apperr.ErrUnauthorized) {
			t.Errorf("error = %v, want unauthorized", err)
		}
	})

	t.Run("civilian cannot read", func(t *testing.T) {
		_, err := m.ChatHistory(ctx, roomID, civilian)
		if !errors.Is(err, apperr.ErrUnauthorized) {
			t.Errorf("error = %v, want unauthorized", err)
		}
	})

	t.Run("mafia reads history", func(t *testing.T) {
		history, err := m.ChatHistory(ctx, roomID, mafias[1])
		if err != nil {
			t.Fatalf("ChatHistory: %v", err)
		}
		if len(history) != 1 || history[0].Message != "이번엔 누구로 할까" {
			t.Errorf("history = %+v", history)
		}
	})
}

func TestRoleCard(t *testing.T) {
	deps := newTestDeps(t)
	m, roomID, info := startGame(t, deps, 6)
	ctx := context.Background()

	mafias := withRole(info, RoleMafia)
	civilian := withRole(info, RoleCivilian)[0]

	card, err := m.Role(ctx, roomID, mafias[0])
	if err != nil {
		t.Fatalf("Role: %v", err)
	}
	if card["role"] != RoleMafia {
		t.Errorf("role = %v", card["role"])
	}
	accomplices := card["accomplices"].([]map[string]string)
	if len(accomplices) != 1 || accomplices[0]["deviceId"] != mafias[1] {
		t.Errorf("accomplices = %v, want the other mafia", accomplices)
	}

	card, err = m.Role(ctx, roomID, civilian)
	if err != nil {
		t.Fatalf("Role: %v", err)
	}
	if _, leaked := card["accomplices"]; leaked {
		t.Error("civilian card leaked accomplices")
	}
}

func TestCheckWinner(t *testing.T) {
	build := func(roles []string, alive []bool) *room.Info {
		info := &room.Info{}
		for i := range roles {
			info.Players = append(info.Players, room.Player{
				DeviceID: fmt.Sprintf("d%d", i),
				Role:     roles[i],
				Alive:    alive[i],
			})
		}
		return info
	}

	t.Run("citizens win without mafia", func(t *testing.T) {
		info := build(
			[]string{RoleMafia, RoleCivilian, RoleCivilian},
			[]bool{false, true, true},
		)
		if w := checkWinner(info); w != WinnerCitizen {
			t.Errorf("winner = %q", w)
		}
	})

	t.Run("mafia win on parity", func(t *testing.T) {
		info := build(
			[]string{RoleMafia, RoleCivilian, RoleCivilian},
			[]bool{true, true, false},
		)
		if w := checkWinner(info); w != WinnerMafia {
			t.Errorf("winner = %q", w)
		}
	})

	t.Run("play on", func(t *testing.T) {
		info := build(
			[]string{RoleMafia, RoleCivilian, RoleCivilian},
			[]bool{true, true, true},
		)
		if w := checkWinner(info); w != "" {
			t.Errorf("winner = %q, want none", w)
		}
	})
}
