package marble

import (
	"context"
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

func makeRoom(t *testing.T, deps game.Deps, players int) (string, []string) {
	t.Helper()
	ctx := context.Background()
	info, err := deps.Rooms.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	devices := make([]string, 0, players)
	for i := 0; i < players; i++ {
		p, err := deps.Rooms.Join(ctx, info.RoomID, fmt.Sprintf("선수%d", i))
		if err != nil {
			t.Fatalf("Join %d: %v", i, err)
		}
		devices = append(devices, p.DeviceID)
	}
	return info.RoomID, devices
}

func TestGenerateBoardShape(t *testing.T) {
	selected := make([]string, selectedCount)
	members := make(map[string]bool, selectedCount)
	for i := range selected {
		selected[i] = fmt.Sprintf("벌칙 %d", i)
		members[selected[i]] = true
	}

	board := generateBoard(selected)
	if len(board) != BoardSize {
		t.Fatalf("board has %d cells, want %d", len(board), BoardSize)
	}
	if board[0].Type != CellStart || board[7].Type != CellUirijuFill || board[21].Type != CellUirijuDrink {
		t.Fatalf("fixed cells wrong: %s/%s/%s", board[0].Type, board[7].Type, board[21].Type)
	}
	penalties := 0
	for i, cell := range board {
		if cell.Index != i {
			t.Errorf("cell %d carries index %d", i, cell.Index)
		}
		if i == 0 || i == 7 || i == 21 {
			continue
		}
		if cell.Type != CellPenalty {
			t.Errorf("cell %d type = %s, want penalty", i, cell.Type)
		}
		if !members[cell.Text] {
			t.Errorf("cell %d text %q is not from the selected pool", i, cell.Text)
		}
		penalties++
	}
	if penalties != 25 {
		t.Errorf("%d penalty cells, want 25", penalties)
	}
}

func TestSubmissionFlow(t *testing.T) {
	deps := newTestDeps(t)
	m := New(deps)
	ctx := context.Background()
	roomID, devices := makeRoom(t, deps, 2)

	progress, err := m.SubmitPenalty(ctx, roomID, devices[0], "물 한 잔 마시기")
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if progress.TotalCount != 1 || progress.ExpectedCount != 4 || progress.IsAllSubmitted {
		t.Errorf("progress = %+v", progress)
	}

	if _, err := m.SubmitPenalty(ctx, roomID, devices[0], "애교 부리기"); err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if _, err := m.SubmitPenalty(ctx, roomID, devices[0], "세 번째는 안 된다"); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("third submit error = %v, want conflict", err)
	}

	if _, err := m.SubmitPenalty(ctx, roomID, devices[1], "노래 부르기"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	progress, err = m.SubmitPenalty(ctx, roomID, devices[1], "막춤 추기")
	if err != nil {
		t.Fatalf("final submit: %v", err)
	}
	if !progress.IsAllSubmitted {
		t.Errorf("final progress = %+v, want all submitted", progress)
	}

	st, err := m.State(ctx, roomID)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if st.Phase != PhaseVoting {
		t.Errorf("phase = %s, want voting once everyone submitted", st.Phase)
	}

	t.Run("submission closed", func(t *testing.T) {
		_, err := m.SubmitPenalty(ctx, roomID, devices[0], "뒤늦은 제출")
		if !errors.Is(err, apperr.ErrInvalidState) {
			t.Errorf("error = %v, want invalidState", err)
		}
	})

	t.Run("empty text", func(t *testing.T) {
		_, err := m.SubmitPenalty(ctx, roomID, devices[0], "   ")
		if !errors.Is(err, apperr.ErrInvalidArgument) {
			t.Errorf("error = %v, want invalidArgument", err)
		}
	})
}

func TestVoteToggle(t *testing.T) {
	deps := newTestDeps(t)
	m := New(deps)
	ctx := context.Background()
	roomID, devices := makeRoom(t, deps, 2)

	submitAll(t, m, roomID, devices)

	if err := m.ToggleVote(ctx, roomID, devices[0], 1); err != nil {
		t.Fatalf("ToggleVote: %v", err)
	}
	counts := liveCounts(t, m, roomID)
	if counts[1] != 1 {
		t.Errorf("penalty 1 count = %d, want 1", counts[1])
	}

	// Same pair again removes the vote.
	if err := m.ToggleVote(ctx, roomID, devices[0], 1); err != nil {
		t.Fatalf("repeat ToggleVote: %v", err)
	}
	counts = liveCounts(t, m, roomID)
	if counts[1] != 0 {
		t.Errorf("penalty 1 count after toggle-off = %d, want 0", counts[1])
	}

	if err := m.ToggleVote(ctx, roomID, devices[0], 99); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("out-of-range vote error = %v, want invalidArgument", err)
	}
}

func TestVoteDoneClosesWhenEveryoneFinished(t *testing.T) {
	deps := newTestDeps(t)
	m := New(deps)
	ctx := context.Background()
	roomID, devices := makeRoom(t, deps, 2)

	submitAll(t, m, roomID, devices)

	if err := m.ToggleVote(ctx, roomID, devices[0], 2); err != nil {
		t.Fatalf("ToggleVote: %v", err)
	}
	if err := m.VoteDone(ctx, roomID, devices[0]); err != nil {
		t.Fatalf("first VoteDone: %v", err)
	}
	st, _ := m.State(ctx, roomID)
	if st.Phase != PhaseVoting {
		t.Fatalf("phase = %s, want voting until everyone is done", st.Phase)
	}

	if err := m.VoteDone(ctx, roomID, devices[1]); err != nil {
		t.Fatalf("second VoteDone: %v", err)
	}
	st, _ = m.State(ctx, roomID)
	if st.Phase != PhaseModeSelect {
		t.Fatalf("phase = %s, want modeSelect after the last device", st.Phase)
	}

	selected, err := deps.Store.ListRange(ctx, store.MarbleSelectedKey(roomID), 0, -1)
	if err != nil {
		t.Fatalf("ListRange: %v", err)
	}
	if len(selected) != selectedCount {
		t.Errorf("selected %d penalties, want %d (catalog tops up)", len(selected), selectedCount)
	}
	// The most-voted submission must survive the cut.
	found := false
	for _, text := range selected {
		if text == "선수0의 벌칙 2" {
			found = true
		}
	}
	if !found {
		t.Error("the voted penalty was dropped from the selection")
	}
}

func TestFinishVotingFallsBackToDefaults(t *testing.T) {
	deps := newTestDeps(t)
	// A catalog without any marble penalty category forces the built-in pool.
	bare, err := catalog.New([]byte(`{"version":1,"categories":[{"id":1,"game":"quiz","name":"동물","kind":"keyword","words":["사자"]}]}`))
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	deps.Catalog = bare
	m := New(deps)
	ctx := context.Background()
	roomID, devices := makeRoom(t, deps, 2)

	if _, err := m.SubmitPenalty(ctx, roomID, devices[0], "유일한 벌칙"); err != nil {
		t.Fatalf("SubmitPenalty: %v", err)
	}
	if err := m.FinishVoting(ctx, roomID); err != nil {
		t.Fatalf("FinishVoting: %v", err)
	}

	selected, err := deps.Store.ListRange(ctx, store.MarbleSelectedKey(roomID), 0, -1)
	if err != nil {
		t.Fatalf("ListRange: %v", err)
	}
	if len(selected) != selectedCount {
		t.Errorf("selected %d penalties, want %d from the built-in pool", len(selected), selectedCount)
	}
	if selected[0] != "유일한 벌칙" {
		t.Errorf("player submission %q must rank first, got %q", "유일한 벌칙", selected[0])
	}

	if err := m.FinishVoting(ctx, roomID); !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("double close error = %v, want invalidState", err)
	}
}

func TestSoloPlay(t *testing.T) {
	deps := newTestDeps(t)
	m := New(deps)
	ctx := context.Background()
	roomID, devices := makeRoom(t, deps, 3)

	submitAll(t, m, roomID, devices)
	if err := m.FinishVoting(ctx, roomID); err != nil {
		t.Fatalf("FinishVoting: %v", err)
	}
	if err := m.SelectMode(ctx, roomID, ModeSolo); err != nil {
		t.Fatalf("SelectMode: %v", err)
	}

	st, err := m.State(ctx, roomID)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if len(st.Board) != BoardSize {
		t.Fatalf("board has %d cells, want %d", len(st.Board), BoardSize)
	}
	if len(st.TurnOrder) != 3 || len(st.Positions) != 3 {
		t.Fatalf("turn order %v positions %v", st.TurnOrder, st.Positions)
	}
	for _, pos := range st.Positions {
		if pos != 0 {
			t.Errorf("starting position = %d, want 0", pos)
		}
	}

	// Out-of-turn rolls are refused without side effects.
	current := st.TurnOrder[0]
	var wrong string
	for _, d := range devices {
		if d != current {
			wrong = d
			break
		}
	}
	if _, err := m.Roll(ctx, roomID, wrong); !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("out-of-turn roll error = %v, want invalidState", err)
	}
	after, _ := m.State(ctx, roomID)
	if after.TurnIndex != 0 || after.LastDice != 0 {
		t.Errorf("refused roll mutated state: %+v", after)
	}

	result, err := m.Roll(ctx, roomID, current)
	if err != nil {
		t.Fatalf("Roll: %v", err)
	}
	if result.Dice < 1 || result.Dice > 6 {
		t.Errorf("dice = %d, want 1..6", result.Dice)
	}
	if result.Position != result.Dice%BoardSize {
		t.Errorf("position = %d after rolling %d from 0", result.Position, result.Dice)
	}
	if result.Cell.Index != result.Position {
		t.Errorf("cell index %d does not match position %d", result.Cell.Index, result.Position)
	}
	if result.NextTurn == current {
		t.Error("turn did not advance")
	}

	st, _ = m.State(ctx, roomID)
	if st.TurnIndex != 1 {
		t.Errorf("turn index = %d, want 1", st.TurnIndex)
	}
	if st.Positions[current] != result.Position {
		t.Errorf("position map %v not updated", st.Positions)
	}
}

func TestTeamPlay(t *testing.T) {
	deps := newTestDeps(t)
	m := New(deps)
	ctx := context.Background()
	roomID, devices := makeRoom(t, deps, 4)

	submitAll(t, m, roomID, devices)
	if err := m.FinishVoting(ctx, roomID); err != nil {
		t.Fatalf("FinishVoting: %v", err)
	}

	t.Run("team mode requires teams", func(t *testing.T) {
		if err := m.SelectMode(ctx, roomID, ModeTeam); !errors.Is(err, apperr.ErrInvalidState) {
			t.Errorf("error = %v, want invalidState", err)
		}
	})

	if err := deps.Rooms.AssignRandomTeams(ctx, roomID, 2); err != nil {
		t.Fatalf("AssignRandomTeams: %v", err)
	}
	if err := m.SelectMode(ctx, roomID, ModeTeam); err != nil {
		t.Fatalf("SelectMode: %v", err)
	}

	st, _ := m.State(ctx, roomID)
	if len(st.TurnOrder) != 2 || st.TurnOrder[0] != "A" || st.TurnOrder[1] != "B" {
		t.Fatalf("turn order = %v, want [A B]", st.TurnOrder)
	}

	info, _ := deps.Rooms.Get(ctx, roomID)
	var teamA, teamB string
	for _, p := range info.Players {
		if p.Team == "A" {
			teamA = p.DeviceID
		} else {
			teamB = p.DeviceID
		}
	}

	if _, err := m.Roll(ctx, roomID, teamB); !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("wrong-team roll error = %v, want invalidState", err)
	}
	result, err := m.Roll(ctx, roomID, teamA)
	if err != nil {
		t.Fatalf("Roll: %v", err)
	}
	if result.Mover != "A" || result.NextTurn != "B" {
		t.Errorf("mover/next = %s/%s, want A/B", result.Mover, result.NextTurn)
	}
}

func TestEndClearsState(t *testing.T) {
	deps := newTestDeps(t)
	m := New(deps)
	ctx := context.Background()
	roomID, devices := makeRoom(t, deps, 2)

	if err := deps.Rooms.StartGame(ctx, roomID, room.GameMarble); err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	submitAll(t, m, roomID, devices)

	if err := m.End(ctx, roomID); err != nil {
		t.Fatalf("End: %v", err)
	}
	if _, err := m.State(ctx, roomID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("state after end = %v, want notFound", err)
	}
	rows, err := deps.Store.ListRange(ctx, store.MarblePenaltiesKey(roomID), 0, -1)
	if err != nil || len(rows) != 0 {
		t.Errorf("penalties survived the end: %v (%v)", rows, err)
	}
	info, err := deps.Rooms.Get(ctx, roomID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if info.CurrentGame != "" || info.Status != room.StatusWaiting {
		t.Errorf("room after end = %s/%s, want waiting lobby", info.Status, info.CurrentGame)
	}
}

// submitAll pushes two penalties per device so the vote phase opens.
func submitAll(t *testing.T, m *Machine, roomID string, devices []string) {
	t.Helper()
	ctx := context.Background()
	for i, d := range devices {
		for j := 1; j <= 2; j++ {
			text := fmt.Sprintf("선수%d의 벌칙 %d", i, j)
			if _, err := m.SubmitPenalty(ctx, roomID, d, text); err != nil {
				t.Fatalf("SubmitPenalty %s: %v", text, err)
			}
		}
	}
}

func liveCounts(t *testing.T, m *Machine, roomID string) map[int]int {
	t.Helper()
	counts, err := m.voteCounts(context.Background(), roomID)
	if err != nil {
		t.Fatalf("voteCounts: %v", err)
	}
	return counts
}
