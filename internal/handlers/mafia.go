package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"suljari/internal/game/mafia"
)

// MafiaStart deals roles and opens the first night.
func (h *Handler) MafiaStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID string `json:"roomId"`
	}
	if err := decode(r, &req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := h.mafia.Start(r.Context(), req.RoomID); err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, nil)
}

// MafiaNightAction records the caller's night choice. Only the police get
// data back, and only in their own response.
func (h *Handler) MafiaNightAction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID   string `json:"roomId"`
		DeviceID string `json:"deviceId"`
		TargetID string `json:"targetId"`
	}
	if err := decode(r, &req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	result, err := h.mafia.NightAction(r.Context(), req.RoomID, req.DeviceID, req.TargetID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, result)
}

// MafiaChat posts to the mafia-only chat.
func (h *Handler) MafiaChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID   string `json:"roomId"`
		DeviceID string `json:"deviceId"`
		Message  string `json:"message"`
	}
	if err := decode(r, &req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := h.mafia.Chat(r.Context(), req.RoomID, req.DeviceID, req.Message); err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, nil)
}

// MafiaChatHistory reads the mafia chat log; callers outside the mafia are
// rejected.
func (h *Handler) MafiaChatHistory(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("roomId")
	deviceID := r.URL.Query().Get("deviceId")
	history, err := h.mafia.ChatHistory(r.Context(), roomID, deviceID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]any{"messages": history})
}

// MafiaVote records a day vote, last write wins per voter.
func (h *Handler) MafiaVote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID   string `json:"roomId"`
		DeviceID string `json:"deviceId"`
		TargetID string `json:"targetId"`
	}
	if err := decode(r, &req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := h.mafia.Vote(r.Context(), req.RoomID, req.DeviceID, req.TargetID); err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, nil)
}

// MafiaFinalVote records a kill-or-save ballot on the accused.
func (h *Handler) MafiaFinalVote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID   string `json:"roomId"`
		DeviceID string `json:"deviceId"`
		Choice   string `json:"choice"`
	}
	if err := decode(r, &req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := h.mafia.FinalVote(r.Context(), req.RoomID, req.DeviceID, req.Choice); err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, nil)
}

// MafiaRole returns the caller's role card. Mafia cards list accomplices.
func (h *Handler) MafiaRole(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("roomId")
	deviceID := r.URL.Query().Get("deviceId")
	card, err := h.mafia.Role(r.Context(), roomID, deviceID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, card)
}

// MafiaState returns the public projection of the game state. Night targets,
// raw ballots and the chat log never leave the per-device endpoints.
func (h *Handler) MafiaState(w http.ResponseWriter, r *http.Request) {
	st, err := h.mafia.State(r.Context(), chi.URLParam(r, "roomId"))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	view := map[string]any{
		"phase":           st.Phase,
		"timerSec":        st.TimerSec,
		"dayCount":        st.DayCount,
		"lastNightKilled": st.LastNightKilled,
		"wasSaved":        st.WasSaved,
		"executionTarget": st.ExecutionTarget,
		"deadPlayers":     st.DeadPlayers,
	}
	if st.Phase == mafia.PhaseGameEnd {
		view["winner"] = st.Winner
	}
	h.respond(w, http.StatusOK, view)
}

// MafiaForcePhase jumps the machine to a phase. The route is only mounted
// when debug mode is on.
func (h *Handler) MafiaForcePhase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID string `json:"roomId"`
		Phase  string `json:"phase"`
	}
	if err := decode(r, &req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := h.mafia.ForcePhase(r.Context(), req.RoomID, req.Phase); err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, nil)
}
