package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MarbleSubmitPenalty appends one penalty phrase for a device.
func (h *Handler) MarbleSubmitPenalty(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID   string `json:"roomId"`
		DeviceID string `json:"deviceId"`
		Text     string `json:"text"`
	}
	if err := decode(r, &req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	progress, err := h.marble.SubmitPenalty(r.Context(), req.RoomID, req.DeviceID, req.Text)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, progress)
}

// MarbleToggleVote flips one (device, penalty) vote pair.
func (h *Handler) MarbleToggleVote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID    string `json:"roomId"`
		DeviceID  string `json:"deviceId"`
		PenaltyID int    `json:"penaltyId"`
	}
	if err := decode(r, &req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := h.marble.ToggleVote(r.Context(), req.RoomID, req.DeviceID, req.PenaltyID); err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, nil)
}

// MarbleVoteDone marks a device as finished voting.
func (h *Handler) MarbleVoteDone(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID   string `json:"roomId"`
		DeviceID string `json:"deviceId"`
	}
	if err := decode(r, &req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := h.marble.VoteDone(r.Context(), req.RoomID, req.DeviceID); err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, nil)
}

// MarbleFinishVoting is the host command that closes voting and fixes the
// 26 selected penalties.
func (h *Handler) MarbleFinishVoting(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID string `json:"roomId"`
	}
	if err := decode(r, &req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := h.marble.FinishVoting(r.Context(), req.RoomID); err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, nil)
}

// MarbleSelectMode picks team or solo play and generates the board.
func (h *Handler) MarbleSelectMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID string `json:"roomId"`
		Mode   string `json:"mode"`
	}
	if err := decode(r, &req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := h.marble.SelectMode(r.Context(), req.RoomID, req.Mode); err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, nil)
}

// MarbleRoll rolls the die for the current turn holder.
func (h *Handler) MarbleRoll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID   string `json:"roomId"`
		DeviceID string `json:"deviceId"`
	}
	if err := decode(r, &req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	result, err := h.marble.Roll(r.Context(), req.RoomID, req.DeviceID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, result)
}

// MarbleEnd is the host command that tears the board game down.
func (h *Handler) MarbleEnd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID string `json:"roomId"`
	}
	if err := decode(r, &req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := h.marble.End(r.Context(), req.RoomID); err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, nil)
}

// MarbleState returns the board snapshot; everything in it is visible to
// every client.
func (h *Handler) MarbleState(w http.ResponseWriter, r *http.Request) {
	st, err := h.marble.State(r.Context(), chi.URLParam(r, "roomId"))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, st)
}
