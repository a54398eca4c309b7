package truth

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

func makeRoom(t *testing.T, deps game.Deps, players int) *room.Info {
	t.Helper()
	ctx := context.Background()
	info, err := deps.Rooms.Create(ctx)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i := 0; i < players; i++ {
		if _, err := deps.Rooms.Join(ctx, info.RoomID, fmt.Sprintf("선수%d", i)); err != nil {
			t.Fatalf("Join %d: %v", i, err)
		}
	}
	full, err := deps.Rooms.Get(ctx, info.RoomID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return full
}

// interrogation sets up a started game with the first player in the chair.
func interrogation(t *testing.T, deps game.Deps, players int) (*Machine, *room.Info, string) {
	t.Helper()
	ctx := context.Background()
	m := New(deps)
	info := makeRoom(t, deps, players)
	if err := m.Start(ctx, info.RoomID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	answerer := info.Players[0].DeviceID
	if err := m.Answerer(ctx, info.RoomID, answerer); err != nil {
		t.Fatalf("Answerer: %v", err)
	}
	return m, info, answerer
}

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

func decode(t *testing.T, msg bus.Message) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal([]byte(msg.Data), &payload); err != nil {
		t.Fatalf("bad payload in %s: %v", msg.Name, err)
	}
	return payload
}

func TestStart(t *testing.T) {
	deps := newTestDeps(t)
	m := New(deps)
	ctx := context.Background()

	info := makeRoom(t, deps, 3)
	if err := m.Start(ctx, info.RoomID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	st, err := m.State(ctx, info.RoomID)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if st.Phase != PhaseSelectAnswerer || st.Round != 1 {
		t.Errorf("opening state = %s round %d, want selectAnswerer round 1", st.Phase, st.Round)
	}

	t.Run("too few players", func(t *testing.T) {
		solo := makeRoom(t, deps, 1)
		if err := m.Start(ctx, solo.RoomID); !errors.Is(err, apperr.ErrInvalidState) {
			t.Errorf("error = %v, want invalidState", err)
		}
	})
}

func TestAnswererSelection(t *testing.T) {
	deps := newTestDeps(t)
	m := New(deps)
	ctx := context.Background()

	t.Run("specific pick", func(t *testing.T) {
		info := makeRoom(t, deps, 3)
		if err := m.Start(ctx, info.RoomID); err != nil {
			t.Fatalf("Start: %v", err)
		}
		host := deps.Bus.AttachHost(info.RoomID)

		chosen := info.Players[1].DeviceID
		if err := m.Answerer(ctx, info.RoomID, chosen); err != nil {
			t.Fatalf("Answerer: %v", err)
		}

		st, _ := m.State(ctx, info.RoomID)
		if st.CurrentAnswerer != chosen || st.Phase != PhaseSubmitQuestions {
			t.Errorf("state = answerer %s phase %s", st.CurrentAnswerer, st.Phase)
		}

		selected := decode(t, waitFor(t, host.C, "TRUTH_ANSWERER_SELECTED"))
		if selected["deviceId"] != chosen || selected["isRandom"] != false {
			t.Errorf("selection frame = %v", selected)
		}
	})

	t.Run("random pick", func(t *testing.T) {
		info := makeRoom(t, deps, 3)
		if err := m.Start(ctx, info.RoomID); err != nil {
			t.Fatalf("Start: %v", err)
		}
		if err := m.Answerer(ctx, info.RoomID, ""); err != nil {
			t.Fatalf("Answerer: %v", err)
		}
		st, _ := m.State(ctx, info.RoomID)
		if info.Player(st.CurrentAnswerer) == nil {
			t.Errorf("random answerer %s is not in the roster", st.CurrentAnswerer)
		}
	})

	t.Run("unknown device", func(t *testing.T) {
		info := makeRoom(t, deps, 3)
		if err := m.Start(ctx, info.RoomID); err != nil {
			t.Fatalf("Start: %v", err)
		}
		if err := m.Answerer(ctx, info.RoomID, "ghost"); !errors.Is(err, apperr.ErrInvalidArgument) {
			t.Errorf("error = %v, want invalidArgument", err)
		}
	})

	t.Run("double pick", func(t *testing.T) {
		info := makeRoom(t, deps, 3)
		if err := m.Start(ctx, info.RoomID); err != nil {
			t.Fatalf("Start: %v", err)
		}
		if err := m.Answerer(ctx, info.RoomID, ""); err != nil {
			t.Fatalf("Answerer: %v", err)
		}
		if err := m.Answerer(ctx, info.RoomID, ""); !errors.Is(err, apperr.ErrInvalidState) {
			t.Errorf("error = %v, want invalidState", err)
		}
	})
}

func TestQuestionPool(t *testing.T) {
	deps := newTestDeps(t)
	m, info, answerer := interrogation(t, deps, 3)
	ctx := context.Background()

	t.Run("answerer cannot submit", func(t *testing.T) {
		err := m.Question(ctx, info.RoomID, answerer, "첫사랑 이야기 해줘")
		if !errors.Is(err, apperr.ErrUnauthorized) {
			t.Errorf("error = %v, want unauthorized", err)
		}
	})

	t.Run("empty question rejected", func(t *testing.T) {
		err := m.Question(ctx, info.RoomID, info.Players[1].DeviceID, "   ")
		if !errors.Is(err, apperr.ErrInvalidArgument) {
			t.Errorf("error = %v, want invalidArgument", err)
		}
	})

	t.Run("finish with an empty pool", func(t *testing.T) {
		err := m.FinishSubmission(ctx, info.RoomID)
		if !errors.Is(err, apperr.ErrInvalidState) {
			t.Errorf("error = %v, want invalidState", err)
		}
	})

	host := deps.Bus.AttachHost(info.RoomID)
	if err := m.Question(ctx, info.RoomID, info.Players[1].DeviceID, "제일 후회하는 일은?"); err != nil {
		t.Fatalf("Question: %v", err)
	}
	if err := m.Question(ctx, info.RoomID, info.Players[2].DeviceID, "몰래 좋아하는 사람 있어?"); err != nil {
		t.Fatalf("Question: %v", err)
	}

	progress := decode(t, waitFor(t, host.C, "TRUTH_QUESTION_PROGRESS"))
	if progress["questionCount"] != float64(1) {
		t.Errorf("first progress frame = %v", progress)
	}
	if _, leaked := progress["text"]; leaked {
		t.Error("progress frame leaked a question text")
	}

	if err := m.FinishSubmission(ctx, info.RoomID); err != nil {
		t.Fatalf("FinishSubmission: %v", err)
	}
	st, _ := m.State(ctx, info.RoomID)
	if st.Phase != PhaseSelectQuestion || len(st.SubmittedQuestions) != 2 {
		t.Errorf("state = %s with %d questions", st.Phase, len(st.SubmittedQuestions))
	}
	for i, q := range st.SubmittedQuestions {
		if q.IsUsed {
			t.Errorf("question %d marked used at snapshot", i)
		}
	}

	t.Run("submission after the close", func(t *testing.T) {
		err := m.Question(ctx, info.RoomID, info.Players[1].DeviceID, "늦은 질문")
		if !errors.Is(err, apperr.ErrInvalidState) {
			t.Errorf("error = %v, want invalidState", err)
		}
	})
}

func TestHostRerollAndConfirm(t *testing.T) {
	deps := newTestDeps(t)
	m, info, _ := interrogation(t, deps, 3)
	ctx := context.Background()

	if err := m.Question(ctx, info.RoomID, info.Players[1].DeviceID, "질문 하나"); err != nil {
		t.Fatalf("Question: %v", err)
	}
	if err := m.Question(ctx, info.RoomID, info.Players[2].DeviceID, "질문 둘"); err != nil {
		t.Fatalf("Question: %v", err)
	}
	if err := m.FinishSubmission(ctx, info.RoomID); err != nil {
		t.Fatalf("FinishSubmission: %v", err)
	}

	// Rerolling commits nothing.
	for i := 0; i < 10; i++ {
		idx, q, err := m.SelectRandom(ctx, info.RoomID)
		if err != nil {
			t.Fatalf("SelectRandom: %v", err)
		}
		if idx < 0 || idx > 1 || q.IsUsed {
			t.Fatalf("draw %d returned index %d used=%v", i, idx, q.IsUsed)
		}
	}
	st, _ := m.State(ctx, info.RoomID)
	if st.Phase != PhaseSelectQuestion {
		t.Fatalf("phase = %s after rerolls, want selectQuestion", st.Phase)
	}

	host := deps.Bus.AttachHost(info.RoomID)
	if err := m.ConfirmQuestion(ctx, info.RoomID, 1); err != nil {
		t.Fatalf("ConfirmQuestion: %v", err)
	}

	st, _ = m.State(ctx, info.RoomID)
	if st.Phase != PhaseAnswering {
		t.Errorf("phase = %s, want answering", st.Phase)
	}
	if st.CurrentQuestion == nil || st.CurrentQuestion.Text != "질문 둘" {
		t.Errorf("current question = %+v", st.CurrentQuestion)
	}
	if !st.SubmittedQuestions[1].IsUsed {
		t.Error("confirmed question not burned")
	}

	selected := decode(t, waitFor(t, host.C, "TRUTH_QUESTION_SELECTED"))
	if selected["question"] != "질문 둘" || selected["index"] != float64(1) {
		t.Errorf("selected frame = %v", selected)
	}

	t.Run("confirm after commit", func(t *testing.T) {
		if err := m.ConfirmQuestion(ctx, info.RoomID, 0); !errors.Is(err, apperr.ErrInvalidState) {
			t.Errorf("error = %v, want invalidState", err)
		}
	})
}

func TestQuestionVoteFlow(t *testing.T) {
	deps := newTestDeps(t)
	m, info, answerer := interrogation(t, deps, 4)
	ctx := context.Background()

	voters := make([]string, 0, 3)
	for _, p := range info.Players {
		if p.DeviceID != answerer {
			voters = append(voters, p.DeviceID)
		}
	}

	if err := m.Question(ctx, info.RoomID, voters[0], "질문 하나"); err != nil {
		t.Fatalf("Question: %v", err)
	}
	if err := m.Question(ctx, info.RoomID, voters[1], "질문 둘"); err != nil {
		t.Fatalf("Question: %v", err)
	}
	if err := m.FinishSubmission(ctx, info.RoomID); err != nil {
		t.Fatalf("FinishSubmission: %v", err)
	}

	t.Run("answerer cannot vote", func(t *testing.T) {
		if err := m.QuestionVote(ctx, info.RoomID, answerer, 0); !errors.Is(err, apperr.ErrUnauthorized) {
			t.Errorf("error = %v, want unauthorized", err)
		}
	})
	t.Run("out of range", func(t *testing.T) {
		if err := m.QuestionVote(ctx, info.RoomID, voters[0], 7); !errors.Is(err, apperr.ErrInvalidArgument) {
			t.Errorf("error = %v, want invalidArgument", err)
		}
	})

	// Toggle on, off, and back on.
	if err := m.QuestionVote(ctx, info.RoomID, voters[0], 0); err != nil {
		t.Fatalf("QuestionVote: %v", err)
	}
	if err := m.QuestionVote(ctx, info.RoomID, voters[0], 0); err != nil {
		t.Fatalf("QuestionVote: %v", err)
	}
	st, _ := m.State(ctx, info.RoomID)
	if len(st.QuestionVotes) != 0 {
		t.Fatalf("votes = %v after toggle off, want none", st.QuestionVotes)
	}
	if err := m.QuestionVote(ctx, info.RoomID, voters[0], 0); err != nil {
		t.Fatalf("QuestionVote: %v", err)
	}
	if err := m.QuestionVote(ctx, info.RoomID, voters[1], 0); err != nil {
		t.Fatalf("QuestionVote: %v", err)
	}
	if err := m.QuestionVote(ctx, info.RoomID, voters[2], 1); err != nil {
		t.Fatalf("QuestionVote: %v", err)
	}

	// The vote settles only when every non-answerer is done.
	for i, voter := range voters {
		if err := m.FinishQuestionVote(ctx, info.RoomID, voter); err != nil {
			t.Fatalf("FinishQuestionVote %d: %v", i, err)
		}
		st, _ = m.State(ctx, info.RoomID)
		if i < len(voters)-1 && st.Phase != PhaseSelectQuestion {
			t.Fatalf("phase = %s after %d done marks", st.Phase, i+1)
		}
	}

	st, _ = m.State(ctx, info.RoomID)
	if st.Phase != PhaseAnswering {
		t.Fatalf("phase = %s, want answering once everyone is done", st.Phase)
	}
	if st.CurrentQuestion == nil || st.CurrentQuestion.Text != "질문 하나" {
		t.Errorf("plurality picked %+v, want 질문 하나", st.CurrentQuestion)
	}
}

func TestQuestionVoteNobodyVotes(t *testing.T) {
	deps := newTestDeps(t)
	m, info, answerer := interrogation(t, deps, 3)
	ctx := context.Background()

	if err := m.Question(ctx, info.RoomID, info.Players[1].DeviceID, "질문 하나"); err != nil {
		t.Fatalf("Question: %v", err)
	}
	if err := m.FinishSubmission(ctx, info.RoomID); err != nil {
		t.Fatalf("FinishSubmission: %v", err)
	}

	for _, p := range info.Players {
		if p.DeviceID == answerer {
			continue
		}
		if err := m.FinishQuestionVote(ctx, info.RoomID, p.DeviceID); err != nil {
			t.Fatalf("FinishQuestionVote: %v", err)
		}
	}

	st, _ := m.State(ctx, info.RoomID)
	if st.Phase != PhaseAnswering || st.CurrentQuestion == nil {
		t.Errorf("state = %s question %+v, want a random pick", st.Phase, st.CurrentQuestion)
	}
}

func TestFaceDataAndVerdict(t *testing.T) {
	deps := newTestDeps(t)
	m, info, answerer := interrogation(t, deps, 3)
	ctx := context.Background()

	if err := m.Question(ctx, info.RoomID, info.Players[1].DeviceID, "질문 하나"); err != nil {
		t.Fatalf("Question: %v", err)
	}
	if err := m.FinishSubmission(ctx, info.RoomID); err != nil {
		t.Fatalf("FinishSubmission: %v", err)
	}
	if err := m.ConfirmQuestion(ctx, info.RoomID, 0); err != nil {
		t.Fatalf("ConfirmQuestion: %v", err)
	}

	host := deps.Bus.AttachHost(info.RoomID)
	player := deps.Bus.AttachPlayer(info.RoomID, info.Players[1].DeviceID)

	t.Run("only the answerer streams", func(t *testing.T) {
		err := m.FaceData(ctx, info.RoomID, info.Players[1].DeviceID, FaceTrackingSample{})
		if !errors.Is(err, apperr.ErrUnauthorized) {
			t.Errorf("error = %v, want unauthorized", err)
		}
	})

	for i := 0; i < 10; i++ {
		sample := FaceTrackingSample{
			EyeMovement:     0.02,
			FacialTremor:    0.02,
			NostrilMovement: 0.02,
			Timestamp:       int64(i),
		}
		if i >= 5 {
			sample.EyeMovement = 0.10
		}
		if err := m.FaceData(ctx, info.RoomID, answerer, sample); err != nil {
			t.Fatalf("FaceData %d: %v", i, err)
		}
	}

	overlay := decode(t, waitFor(t, host.C, "TRUTH_FACE_DATA"))
	if overlay["eyeMovement"] != 0.02 {
		t.Errorf("overlay frame = %v", overlay)
	}
	neverReceives(t, player.C, "TRUTH_FACE_DATA")

	if err := m.FinishAnswering(ctx, info.RoomID); err != nil {
		t.Fatalf("FinishAnswering: %v", err)
	}

	st, _ := m.State(ctx, info.RoomID)
	if st.Phase != PhaseResult || st.Result == nil {
		t.Fatalf("state = %s result %+v", st.Phase, st.Result)
	}
	if !st.Result.IsLie || st.Result.Confidence != 7 {
		t.Errorf("verdict = %+v, want a lie at 7", st.Result)
	}

	verdict := decode(t, waitFor(t, host.C, "TRUTH_RESULT"))
	if verdict["samples"] != float64(10) {
		t.Errorf("verdict frame = %v", verdict)
	}

	t.Run("no double verdict", func(t *testing.T) {
		if err := m.FinishAnswering(ctx, info.RoomID); !errors.Is(err, apperr.ErrInvalidState) {
			t.Errorf("error = %v, want invalidState", err)
		}
	})
}

func TestVerdictWithoutSamples(t *testing.T) {
	deps := newTestDeps(t)
	m, info, _ := interrogation(t, deps, 3)
	ctx := context.Background()

	if err := m.Question(ctx, info.RoomID, info.Players[1].DeviceID, "질문 하나"); err != nil {
		t.Fatalf("Question: %v", err)
	}
	if err := m.FinishSubmission(ctx, info.RoomID); err != nil {
		t.Fatalf("FinishSubmission: %v", err)
	}
	if err := m.ConfirmQuestion(ctx, info.RoomID, 0); err != nil {
		t.Fatalf("ConfirmQuestion: %v", err)
	}
	if err := m.FinishAnswering(ctx, info.RoomID); err != nil {
		t.Fatalf("FinishAnswering: %v", err)
	}

	st, _ := m.State(ctx, info.RoomID)
	if st.Result == nil || st.Result.IsLie || st.Result.Confidence != 0 {
		t.Errorf("verdict = %+v, want a zero-data truth", st.Result)
	}
}

func TestNextRoundKeepsBurnedQuestions(t *testing.T) {
	deps := newTestDeps(t)
	m, info, _ := interrogation(t, deps, 3)
	ctx := context.Background()

	if err := m.Question(ctx, info.RoomID, info.Players[1].DeviceID, "질문 하나"); err != nil {
		t.Fatalf("Question: %v", err)
	}
	if err := m.Question(ctx, info.RoomID, info.Players[2].DeviceID, "질문 둘"); err != nil {
		t.Fatalf("Question: %v", err)
	}
	if err := m.FinishSubmission(ctx, info.RoomID); err != nil {
		t.Fatalf("FinishSubmission: %v", err)
	}
	if err := m.ConfirmQuestion(ctx, info.RoomID, 0); err != nil {
		t.Fatalf("ConfirmQuestion: %v", err)
	}
	if err := m.FinishAnswering(ctx, info.RoomID); err != nil {
		t.Fatalf("FinishAnswering: %v", err)
	}

	if err := m.NextRound(ctx, info.RoomID); err != nil {
		t.Fatalf("NextRound: %v", err)
	}

	st, _ := m.State(ctx, info.RoomID)
	if st.Phase != PhaseSelectAnswerer || st.Round != 2 {
		t.Errorf("state = %s round %d, want selectAnswerer round 2", st.Phase, st.Round)
	}
	if st.CurrentAnswerer != "" || st.CurrentQuestion != nil || st.Result != nil || st.FaceTrackingData != nil {
		t.Error("round-scoped fields survived the reset")
	}
	if len(st.SubmittedQuestions) != 2 || !st.SubmittedQuestions[0].IsUsed {
		t.Errorf("pool = %+v, want the burned question kept", st.SubmittedQuestions)
	}

	// Round two can only draw the unused question.
	if err := m.Answerer(ctx, info.RoomID, info.Players[1].DeviceID); err != nil {
		t.Fatalf("Answerer: %v", err)
	}
	if err := m.FinishSubmission(ctx, info.RoomID); err != nil {
		t.Fatalf("FinishSubmission: %v", err)
	}
	for i := 0; i < 10; i++ {
		idx, _, err := m.SelectRandom(ctx, info.RoomID)
		if err != nil {
			t.Fatalf("SelectRandom: %v", err)
		}
		if idx != 1 {
			t.Fatalf("draw returned burned question %d", idx)
		}
	}

	t.Run("next round mid-game", func(t *testing.T) {
		if err := m.NextRound(ctx, info.RoomID); !errors.Is(err, apperr.ErrInvalidState) {
			t.Errorf("error = %v, want invalidState", err)
		}
	})
}
