// Package truth implements the camera interrogation game: one answerer
// faces a question from the group while their phone streams face-tracking
// samples, and the server judges truth or lie.
package truth

import (
	"context"
	"math/rand"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"suljari/internal/apperr"
	"suljari/internal/event"
	"suljari/internal/game"
	"suljari/internal/store"
)

// MinPlayers leaves at least one questioner besides the answerer.
const MinPlayers = 2

const maxQuestionLen = 200

// Phases. None of them is timer-bound: the host and the players drive
// every transition.
const (
	PhaseSelectAnswerer  = "selectAnswerer"
	PhaseSubmitQuestions = "submitQuestions"
	PhaseSelectQuestion  = "selectQuestion"
	PhaseAnswering       = "answering"
	PhaseResult          = "result"
)

// Question is one submitted interrogation question. Used questions stay
// in the pool so later rounds cannot draw them again.
type Question struct {
	Text           string `json:"text"`
	AuthorDeviceID string `json:"authorDeviceId"`
	IsUsed         bool   `json:"isUsed"`
}

// State is the JSON document at room:{id}:truth:state.
type State struct {
	Phase              string               `json:"phase"`
	Round              int                  `json:"round"`
	CurrentAnswerer    string               `json:"currentAnswerer,omitempty"`
	CurrentQuestion    *Question            `json:"currentQuestion,omitempty"`
	SubmittedQuestions []Question           `json:"submittedQuestions,omitempty"`
	FaceTrackingData   []FaceTrackingSample `json:"faceTrackingData,omitempty"`
	QuestionVotes      map[string]int       `json:"questionVotes,omitempty"`
	VoteDoneDevices    []string             `json:"voteDoneDevices,omitempty"`
	Result             *DetectionResult     `json:"result,omitempty"`
}

func (st *State) voteDone(deviceID string) bool {
	for _, done := range st.VoteDoneDevices {
		if done == deviceID {
			return true
		}
	}
	return false
}

func (st *State) unusedQuestions() []int {
	var out []int
	for i, q := range st.SubmittedQuestions {
		if !q.IsUsed {
			out = append(out, i)
		}
	}
	return out
}

// Machine drives the truth game.
type Machine struct {
	deps game.Deps
	log  *zap.SugaredLogger
}

// New builds the truth machine.
func New(deps game.Deps) *Machine {
	return &Machine{deps: deps, log: deps.Log.Named("truth")}
}

// State returns the current machine state.
func (m *Machine) State(ctx context.Context, roomID string) (*State, error) {
	var st State
	if err := game.LoadState(ctx, m.deps.Store, store.TruthStateKey(roomID), &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Start opens round one with the answerer still to pick.
func (m *Machine) Start(ctx context.Context, roomID string) error {
	info, err := m.deps.Rooms.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if len(info.Players) < MinPlayers {
		return apperr.InvalidState("truth needs at least %d players, room has %d", MinPlayers, len(info.Players))
	}

	st := &State{Phase: PhaseSelectAnswerer, Round: 1}
	if err := m.save(ctx, roomID, st); err != nil {
		return err
	}
	m.log.Infow("game opened", "roomId", roomID, "players", len(info.Players))
	m.announcePhase(roomID, st, nil)
	return nil
}

// Answerer puts a player in the chair. An empty deviceID draws one at
// random.
func (m *Machine) Answerer(ctx context.Context, roomID, deviceID string) error {
	info, err := m.deps.Rooms.Get(ctx, roomID)
	if err != nil {
		return err
	}
	st, err := m.State(ctx, roomID)
	if err != nil {
		return err
	}
	if st.Phase != PhaseSelectAnswerer {
		return apperr.InvalidState("the answerer is already picked")
	}

	random := deviceID == ""
	if random {
		deviceID = info.Players[rand.Intn(len(info.Players))].DeviceID
	}
	chosen := info.Player(deviceID)
	if chosen == nil {
		return apperr.InvalidArgument("device %s is not in room %s", deviceID, roomID)
	}

	st.CurrentAnswerer = deviceID
	st.Phase = PhaseSubmitQuestions
	if err := m.save(ctx, roomID, st); err != nil {
		return err
	}

	m.deps.Bus.BroadcastAll(roomID, event.New(event.TruthAnswererSelected, map[string]any{
		"deviceId": deviceID,
		"nickname": chosen.Nickname,
		"isRandom": random,
		"round":    st.Round,
	}))
	m.announcePhase(roomID, st, nil)
	return nil
}

// Question takes one interrogation question from anyone but the answerer.
// Texts stay hidden until a question is chosen, only the count goes out.
func (m *Machine) Question(ctx context.Context, roomID, deviceID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" || utf8.RuneCountInString(text) > maxQuestionLen {
		return apperr.InvalidArgument("question must be 1-%d characters", maxQuestionLen)
	}

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
	if st.Phase != PhaseSubmitQuestions {
		return apperr.InvalidState("questions are not being collected")
	}
	if deviceID == st.CurrentAnswerer {
		return apperr.Unauthorized("the answerer cannot submit questions")
	}

	st.SubmittedQuestions = append(st.SubmittedQuestions, Question{
		Text:           text,
		AuthorDeviceID: deviceID,
	})
	if err := m.save(ctx, roomID, st); err != nil {
		return err
	}

	m.deps.Bus.BroadcastAll(roomID, event.New(event.TruthQuestionProgress, map[string]any{
		"questionCount": len(st.SubmittedQuestions),
	}))
	return nil
}

// FinishSubmission closes the question pool and moves to selection. The
// pool texts go out so players can vote on them.
func (m *Machine) FinishSubmission(ctx context.Context, roomID string) error {
	st, err := m.State(ctx, roomID)
	if err != nil {
		return err
	}
	if st.Phase != PhaseSubmitQuestions {
		return apperr.InvalidState("questions are not being collected")
	}
	if len(st.unusedQuestions()) == 0 {
		return apperr.InvalidState("no questions to choose from")
	}

	st.Phase = PhaseSelectQuestion
	st.QuestionVotes = map[string]int{}
	st.VoteDoneDevices = nil
	if err := m.save(ctx, roomID, st); err != nil {
		return err
	}
	m.announcePhase(roomID, st, map[string]any{"questions": m.questionBoard(st)})
	return nil
}

// SelectRandom draws an unused question for the host to preview. Calling
// it again rerolls; nothing is committed until ConfirmQuestion.
func (m *Machine) SelectRandom(ctx context.Context, roomID string) (int, *Question, error) {
	st, err := m.State(ctx, roomID)
	if err != nil {
		return 0, nil, err
	}
	if st.Phase != PhaseSelectQuestion {
		return 0, nil, apperr.InvalidState("a question cannot be drawn now")
	}
	unused := st.unusedQuestions()
	if len(unused) == 0 {
		return 0, nil, apperr.InvalidState("no unused questions left")
	}
	idx := unused[rand.Intn(len(unused))]
	q := st.SubmittedQuestions[idx]
	return idx, &q, nil
}

// ConfirmQuestion commits the question at index and opens the answering
// phase.
func (m *Machine) ConfirmQuestion(ctx context.Context, roomID string, index int) error {
	st, err := m.State(ctx, roomID)
	if err != nil {
		return err
	}
	if st.Phase != PhaseSelectQuestion {
		return apperr.InvalidState("a question cannot be confirmed now")
	}
	return m.commitQuestion(ctx, roomID, st, index)
}

// QuestionVote toggles the voter's ballot on a question index. Voting the
// same index again withdraws the ballot, a different index moves it.
func (m *Machine) QuestionVote(ctx context.Context, roomID, deviceID string, index int) error {
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
	if st.Phase != PhaseSelectQuestion {
		return apperr.InvalidState("the question vote is not open")
	}
	if deviceID == st.CurrentAnswerer {
		return apperr.Unauthorized("the answerer cannot vote on questions")
	}
	if index < 0 || index >= len(st.SubmittedQuestions) {
		return apperr.InvalidArgument("question %d does not exist", index)
	}
	if st.SubmittedQuestions[index].IsUsed {
		return apperr.InvalidArgument("question %d was already asked", index)
	}

	if st.QuestionVotes == nil {
		st.QuestionVotes = map[string]int{}
	}
	if current, voted := st.QuestionVotes[deviceID]; voted && current == index {
		delete(st.QuestionVotes, deviceID)
	} else {
		st.QuestionVotes[deviceID] = index
	}
	if err := m.save(ctx, roomID, st); err != nil {
		return err
	}

	m.deps.Bus.BroadcastAll(roomID, event.New(event.TruthQuestionVoteStatus, map[string]any{
		"votes":     m.voteCounts(st),
		"doneCount": len(st.VoteDoneDevices),
	}))
	return nil
}

// FinishQuestionVote marks the voter as done. Once every non-answerer is
// done the plurality winner is committed, with a random tiebreak, or a
// random unused question when nobody voted.
func (m *Machine) FinishQuestionVote(ctx context.Context, roomID, deviceID string) error {
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
	if st.Phase != PhaseSelectQuestion {
		return apperr.InvalidState("the question vote is not open")
	}
	if deviceID == st.CurrentAnswerer {
		return apperr.Unauthorized("the answerer cannot vote on questions")
	}

	if !st.voteDone(deviceID) {
		st.VoteDoneDevices = append(st.VoteDoneDevices, deviceID)
	}
	if len(st.VoteDoneDevices) < len(info.Players)-1 {
		if err := m.save(ctx, roomID, st); err != nil {
			return err
		}
		m.deps.Bus.BroadcastAll(roomID, event.New(event.TruthQuestionVoteStatus, map[string]any{
			"votes":     m.voteCounts(st),
			"doneCount": len(st.VoteDoneDevices),
		}))
		return nil
	}

	ballots := make(map[string]string, len(st.QuestionVotes))
	for voter, idx := range st.QuestionVotes {
		ballots[voter] = strconv.Itoa(idx)
	}
	index := -1
	if top, _, ok := game.TopRandom(game.CountBallots(ballots)); ok {
		index, _ = strconv.Atoi(top)
	} else if unused := st.unusedQuestions(); len(unused) > 0 {
		index = unused[rand.Intn(len(unused))]
	}
	if index < 0 {
		return apperr.InvalidState("no unused questions left")
	}
	return m.commitQuestion(ctx, roomID, st, index)
}

// FaceData appends one tracking sample from the answerer and mirrors it
// to the host overlay. Nobody else may feed the detector.
func (m *Machine) FaceData(ctx context.Context, roomID, deviceID string, sample FaceTrackingSample) error {
	st, err := m.State(ctx, roomID)
	if err != nil {
		return err
	}
	if st.Phase != PhaseAnswering {
		return apperr.InvalidState("nobody is answering now")
	}
	if deviceID != st.CurrentAnswerer {
		return apperr.Unauthorized("only the answerer streams face data")
	}

	st.FaceTrackingData = append(st.FaceTrackingData, sample)
	if err := m.save(ctx, roomID, st); err != nil {
		return err
	}
	m.deps.Bus.BroadcastHost(roomID, event.New(event.TruthFaceData, sample))
	return nil
}

// FinishAnswering runs the detector over the collected samples and shows
// the verdict.
func (m *Machine) FinishAnswering(ctx context.Context, roomID string) error {
	st, err := m.State(ctx, roomID)
	if err != nil {
		return err
	}
	if st.Phase != PhaseAnswering {
		return apperr.InvalidState("nobody is answering now")
	}

	result := Analyze(st.FaceTrackingData)
	st.Result = &result
	st.Phase = PhaseResult
	if err := m.save(ctx, roomID, st); err != nil {
		return err
	}

	m.log.Infow("verdict ready", "roomId", roomID, "round", st.Round,
		"samples", len(st.FaceTrackingData), "isLie", result.IsLie, "confidence", result.Confidence)
	m.deps.Bus.BroadcastAll(roomID, event.New(event.TruthResult, map[string]any{
		"round":   st.Round,
		"result":  result,
		"samples": len(st.FaceTrackingData),
	}))
	m.announcePhase(roomID, st, nil)
	return nil
}

// NextRound clears the round-scoped fields and returns to answerer
// selection. The question pool survives so used ones stay burned.
func (m *Machine) NextRound(ctx context.Context, roomID string) error {
	st, err := m.State(ctx, roomID)
	if err != nil {
		return err
	}
	if st.Phase != PhaseResult {
		return apperr.InvalidState("the round is not over")
	}

	st.Round++
	st.Phase = PhaseSelectAnswerer
	st.CurrentAnswerer = ""
	st.CurrentQuestion = nil
	st.FaceTrackingData = nil
	st.QuestionVotes = nil
	st.VoteDoneDevices = nil
	st.Result = nil
	if err := m.save(ctx, roomID, st); err != nil {
		return err
	}
	m.announcePhase(roomID, st, nil)
	return nil
}

// commitQuestion burns the chosen question and opens answering.
func (m *Machine) commitQuestion(ctx context.Context, roomID string, st *State, index int) error {
	if index < 0 || index >= len(st.SubmittedQuestions) {
		return apperr.InvalidArgument("question %d does not exist", index)
	}
	if st.SubmittedQuestions[index].IsUsed {
		return apperr.InvalidArgument("question %d was already asked", index)
	}

	st.SubmittedQuestions[index].IsUsed = true
	q := st.SubmittedQuestions[index]
	st.CurrentQuestion = &q
	st.Phase = PhaseAnswering
	st.FaceTrackingData = nil
	if err := m.save(ctx, roomID, st); err != nil {
		return err
	}

	m.deps.Bus.BroadcastAll(roomID, event.New(event.TruthQuestionSelected, map[string]any{
		"index":    index,
		"question": q.Text,
		"round":    st.Round,
	}))
	m.announcePhase(roomID, st, nil)
	return nil
}

// questionBoard lists the pool without author attribution.
func (m *Machine) questionBoard(st *State) []map[string]any {
	board := make([]map[string]any, 0, len(st.SubmittedQuestions))
	for i, q := range st.SubmittedQuestions {
		board = append(board, map[string]any{
			"index":  i,
			"text":   q.Text,
			"isUsed": q.IsUsed,
		})
	}
	return board
}

func (m *Machine) voteCounts(st *State) map[string]int {
	counts := map[string]int{}
	for _, idx := range st.QuestionVotes {
		counts[strconv.Itoa(idx)]++
	}
	return counts
}

func (m *Machine) announcePhase(roomID string, st *State, extra map[string]any) {
	payload := map[string]any{
		"phase": st.Phase,
		"round": st.Round,
	}
	for k, v := range extra {
		payload[k] = v
	}
	m.deps.Bus.BroadcastAll(roomID, event.New(event.TruthPhaseChanged, payload))
}

func (m *Machine) save(ctx context.Context, roomID string, st *State) error {
	return game.SaveState(ctx, m.deps.Store, store.TruthStateKey(roomID), st)
}
