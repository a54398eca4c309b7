package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"suljari/internal/game/liar"
)

// LiarStart draws the keyword, hides it from one player and begins the
// role-reveal window.
func (h *Handler) LiarStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID     string `json:"roomId"`
		CategoryID int    `json:"categoryId"`
	}
	if err := decode(r, &req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := h.liar.Start(r.Context(), req.RoomID, req.CategoryID); err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, nil)
}

// LiarRole returns the caller's card: the keyword for citizens, nothing for
// the liar.
func (h *Handler) LiarRole(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("roomId")
	deviceID := r.URL.Query().Get("deviceId")
	card, err := h.liar.Role(r.Context(), roomID, deviceID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, card)
}

// LiarVoteMoreRound records a want-another-round ballot.
func (h *Handler) LiarVoteMoreRound(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID   string `json:"roomId"`
		DeviceID string `json:"deviceId"`
		WantMore bool   `json:"wantMore"`
	}
	if err := decode(r, &req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := h.liar.VoteMoreRound(r.Context(), req.RoomID, req.DeviceID, req.WantMore); err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, nil)
}

// LiarStartPointingVote is the host command that opens the pointing vote.
func (h *Handler) LiarStartPointingVote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID string `json:"roomId"`
	}
	if err := decode(r, &req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := h.liar.StartPointingVote(r.Context(), req.RoomID); err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, nil)
}

// LiarPointingVote records who the voter suspects.
func (h *Handler) LiarPointingVote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID   string `json:"roomId"`
		DeviceID string `json:"deviceId"`
		TargetID string `json:"targetId"`
	}
	if err := decode(r, &req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := h.liar.PointingVote(r.Context(), req.RoomID, req.DeviceID, req.TargetID); err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, nil)
}

// LiarGuess takes the cornered liar's keyword guess, or their pass.
func (h *Handler) LiarGuess(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID   string `json:"roomId"`
		DeviceID string `json:"deviceId"`
		Guess    string `json:"guess"`
		Pass     bool   `json:"pass"`
	}
	if err := decode(r, &req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := h.liar.Guess(r.Context(), req.RoomID, req.DeviceID, req.Guess, req.Pass); err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, nil)
}

// LiarState returns the public projection of the game state. The keyword
// and the liar's identity only appear once the game has ended.
func (h *Handler) LiarState(w http.ResponseWriter, r *http.Request) {
	st, err := h.liar.State(r.Context(), chi.URLParam(r, "roomId"))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	view := map[string]any{
		"phase":                 st.Phase,
		"categoryName":          st.CategoryName,
		"explanationOrder":      st.ExplanationOrder,
		"currentExplainerIndex": st.CurrentExplainerIndex,
		"roundCount":            st.RoundCount,
		"pointedDeviceId":       st.PointedDeviceID,
	}
	if st.Phase == liar.PhaseGameEnd {
		view["keyword"] = st.Keyword
		view["liarDeviceId"] = st.LiarDeviceID
		view["liarGuess"] = st.LiarGuess
		view["winner"] = st.Winner
	}
	h.respond(w, http.StatusOK, view)
}
