// Package event defines the wire-visible event vocabulary. Clients key off
// the event name, so these strings are part of the protocol and never
// change casually.
package event

// Event is one named broadcast. Data is marshaled to JSON once at send
// time; a nil Data still produces a frame with "null" data.
type Event struct {
	Name string
	Data any
}

// New builds an event.
func New(name string, data any) Event {
	return Event{Name: name, Data: data}
}

// Room and presence events.
const (
	Connect            = "CONNECT"
	PlayerJoined       = "PLAYER_JOINED"
	GameStarted        = "GAME_STARTED"
	Reaction           = "REACTION"
	TeamAssigned       = "TEAM_ASSIGNED"
	PlayerTeamSelected = "PLAYER_TEAM_SELECTED"
	TeamManualStart    = "TEAM_MANUAL_START"
)

// Marble events.
const (
	MarblePenaltyProgress = "MARBLE_PENALTY_PROGRESS"
	MarbleVoteStatus      = "MARBLE_VOTE_STATUS"
	MarblePenaltyResult   = "MARBLE_PENALTY_RESULT"
	MarbleGameStart       = "MARBLE_GAME_START"
	MarbleDiceRolled      = "MARBLE_DICE_ROLLED"
	MarbleTurnChange      = "MARBLE_TURN_CHANGE"
	MarbleGameEnd         = "MARBLE_GAME_END"
)

// Mafia events.
const (
	MafiaGameStarted     = "MAFIA_GAME_STARTED"
	MafiaPhaseChanged    = "MAFIA_PHASE_CHANGED"
	MafiaTimer           = "MAFIA_TIMER"
	MafiaDayAnnouncement = "MAFIA_DAY_ANNOUNCEMENT"
	MafiaVoteResult      = "MAFIA_VOTE_RESULT"
	MafiaFinalVoteResult = "MAFIA_FINAL_VOTE_RESULT"
	MafiaChat            = "MAFIA_CHAT"
	MafiaGameEnd         = "MAFIA_GAME_END"
)

// Liar events.
const (
	LiarInit            = "LIAR_INIT"
	LiarPhaseChanged    = "LIAR_PHASE_CHANGED"
	LiarTimer           = "LIAR_TIMER"
	LiarExplanationTurn = "LIAR_EXPLANATION_TURN"
	LiarMoreRoundResult = "LIAR_MORE_ROUND_RESULT"
	LiarPointingResult  = "LIAR_POINTING_RESULT"
	LiarGameEnd         = "LIAR_GAME_END"
)

// Quiz events.
const (
	QuizRoundStart  = "QUIZ_ROUND_START"
	QuizTimer       = "QUIZ_TIMER"
	QuizWord        = "QUIZ_WORD"
	QuizScore       = "QUIZ_SCORE"
	QuizRoundEnd    = "QUIZ_ROUND_END"
	QuizTeamChange  = "QUIZ_TEAM_CHANGE"
	QuizFinalResult = "QUIZ_FINAL_RESULT"
)

// Truth events.
const (
	TruthPhaseChanged       = "TRUTH_PHASE_CHANGED"
	TruthAnswererSelected   = "TRUTH_ANSWERER_SELECTED"
	TruthQuestionProgress   = "TRUTH_QUESTION_PROGRESS"
	TruthQuestionSelected   = "TRUTH_QUESTION_SELECTED"
	TruthQuestionVoteStatus = "TRUTH_QUESTION_VOTE_STATUS"
	TruthFaceData           = "TRUTH_FACE_DATA"
	TruthResult             = "TRUTH_RESULT"
)
