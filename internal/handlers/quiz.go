package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// QuizStart sets up the team rotation. A missing roundSeconds falls back to
// the configured default.
func (h *Handler) QuizStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID       string `json:"roomId"`
		RoundSeconds int    `json:"roundSeconds"`
	}
	if err := decode(r, &req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	if req.RoundSeconds <= 0 {
		req.RoundSeconds = h.cfg.Game.QuizRoundSeconds
	}
	if err := h.quiz.Start(r.Context(), req.RoomID, req.RoundSeconds); err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, nil)
}

// QuizRoundStart draws the word list and arms the round timer for the team
// on turn.
func (h *Handler) QuizRoundStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID     string `json:"roomId"`
		CategoryID int    `json:"categoryId"`
	}
	if err := decode(r, &req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := h.quiz.RoundStart(r.Context(), req.RoomID, req.CategoryID); err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, nil)
}

// QuizCorrect scores the current word and advances to the next.
func (h *Handler) QuizCorrect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID string `json:"roomId"`
	}
	if err := decode(r, &req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := h.quiz.Correct(r.Context(), req.RoomID); err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, nil)
}

// QuizPass rotates the current word to the back of the deck.
func (h *Handler) QuizPass(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID string `json:"roomId"`
	}
	if err := decode(r, &req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := h.quiz.Pass(r.Context(), req.RoomID); err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, nil)
}

// QuizEndRound is the host command that cuts a round short.
func (h *Handler) QuizEndRound(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID string `json:"roomId"`
	}
	if err := decode(r, &req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := h.quiz.EndRound(r.Context(), req.RoomID); err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, nil)
}

// QuizNextTeam hands the turn to the next team that has not played yet.
func (h *Handler) QuizNextTeam(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID string `json:"roomId"`
	}
	if err := decode(r, &req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := h.quiz.NextTeam(r.Context(), req.RoomID); err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, nil)
}

// QuizRanking returns the score table sorted descending.
func (h *Handler) QuizRanking(w http.ResponseWriter, r *http.Request) {
	ranking, done, err := h.quiz.Ranking(r.Context(), chi.URLParam(r, "roomId"))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]any{
		"ranking":    ranking,
		"isComplete": done,
	})
}

// QuizState returns the game state without the word deck; the current word
// lives on the host stream only.
func (h *Handler) QuizState(w http.ResponseWriter, r *http.Request) {
	st, err := h.quiz.State(r.Context(), chi.URLParam(r, "roomId"))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]any{
		"phase":             st.Phase,
		"teams":             st.Teams,
		"currentTeamIndex":  st.CurrentTeamIndex,
		"roundTimeSeconds":  st.RoundTimeSeconds,
		"remainingTime":     st.RemainingTime,
		"teamScores":        st.TeamScores,
		"completedTeams":    st.CompletedTeams,
		"currentRoundScore": st.CurrentRoundScore,
		"remainingCount":    len(st.RemainingWords),
	})
}
