package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"suljari/internal/game/truth"
)

// TruthStart opens the interrogation at round one.
func (h *Handler) TruthStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID string `json:"roomId"`
	}
	if err := decode(r, &req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := h.truth.Start(r.Context(), req.RoomID); err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, nil)
}

// TruthAnswerer puts a player in the chair. An empty deviceId draws one at
// random.
func (h *Handler) TruthAnswerer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID   string `json:"roomId"`
		DeviceID string `json:"deviceId"`
	}
	if err := decode(r, &req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := h.truth.Answerer(r.Context(), req.RoomID, req.DeviceID); err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, nil)
}

// TruthQuestion adds a question to the pool. The text stays hidden until it
// is drawn.
func (h *Handler) TruthQuestion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID   string `json:"roomId"`
		DeviceID string `json:"deviceId"`
		Text     string `json:"text"`
	}
	if err := decode(r, &req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := h.truth.Question(r.Context(), req.RoomID, req.DeviceID, req.Text); err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, nil)
}

// TruthFinishSubmission closes the pool and opens question selection.
func (h *Handler) TruthFinishSubmission(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID string `json:"roomId"`
	}
	if err := decode(r, &req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := h.truth.FinishSubmission(r.Context(), req.RoomID); err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, nil)
}

// TruthRandomQuestion draws an unused question for the host to preview.
// Nothing is committed, so the host can reroll freely.
func (h *Handler) TruthRandomQuestion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID string `json:"roomId"`
	}
	if err := decode(r, &req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	index, q, err := h.truth.SelectRandom(r.Context(), req.RoomID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]any{
		"index":    index,
		"question": q.Text,
	})
}

// TruthConfirmQuestion commits the previewed question and starts answering.
func (h *Handler) TruthConfirmQuestion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID string `json:"roomId"`
		Index  int    `json:"index"`
	}
	if err := decode(r, &req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := h.truth.ConfirmQuestion(r.Context(), req.RoomID, req.Index); err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, nil)
}

// TruthQuestionVote toggles the voter's pick among the unused questions.
func (h *Handler) TruthQuestionVote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID   string `json:"roomId"`
		DeviceID string `json:"deviceId"`
		Index    int    `json:"index"`
	}
	if err := decode(r, &req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := h.truth.QuestionVote(r.Context(), req.RoomID, req.DeviceID, req.Index); err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, nil)
}

// TruthFinishQuestionVote marks the voter done; the last one triggers the
// plurality pick.
func (h *Handler) TruthFinishQuestionVote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID   string `json:"roomId"`
		DeviceID string `json:"deviceId"`
	}
	if err := decode(r, &req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := h.truth.FinishQuestionVote(r.Context(), req.RoomID, req.DeviceID); err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, nil)
}

// TruthFaceData takes one tracking sample from the answerer's camera.
func (h *Handler) TruthFaceData(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID   string                   `json:"roomId"`
		DeviceID string                   `json:"deviceId"`
		Sample   truth.FaceTrackingSample `json:"sample"`
	}
	if err := decode(r, &req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := h.truth.FaceData(r.Context(), req.RoomID, req.DeviceID, req.Sample); err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, nil)
}

// TruthFinishAnswering runs the detector and publishes the verdict.
func (h *Handler) TruthFinishAnswering(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID string `json:"roomId"`
	}
	if err := decode(r, &req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := h.truth.FinishAnswering(r.Context(), req.RoomID); err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, nil)
}

// TruthNextRound returns to answerer selection for another round.
func (h *Handler) TruthNextRound(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID string `json:"roomId"`
	}
	if err := decode(r, &req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := h.truth.NextRound(r.Context(), req.RoomID); err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, nil)
}

// TruthState returns the interrogation snapshot. Question authors are never
// exposed and the raw sample run stays between answerer and host.
func (h *Handler) TruthState(w http.ResponseWriter, r *http.Request) {
	st, err := h.truth.State(r.Context(), chi.URLParam(r, "roomId"))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}

	view := map[string]any{
		"phase":           st.Phase,
		"round":           st.Round,
		"currentAnswerer": st.CurrentAnswerer,
		"questionCount":   len(st.SubmittedQuestions),
		"sampleCount":     len(st.FaceTrackingData),
	}
	// Texts stay hidden while the pool is still being filled.
	if st.Phase != truth.PhaseSelectAnswerer && st.Phase != truth.PhaseSubmitQuestions {
		questions := make([]map[string]any, 0, len(st.SubmittedQuestions))
		for i, q := range st.SubmittedQuestions {
			questions = append(questions, map[string]any{
				"index":  i,
				"text":   q.Text,
				"isUsed": q.IsUsed,
			})
		}
		view["questions"] = questions
	}
	if st.CurrentQuestion != nil {
		view["currentQuestion"] = st.CurrentQuestion.Text
	}
	if st.Result != nil {
		view["result"] = st.Result
	}
	h.respond(w, http.StatusOK, view)
}
