package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RandomTeams shuffles the roster into teamCount buckets.
func (h *Handler) RandomTeams(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID    string `json:"roomId"`
		TeamCount int    `json:"teamCount"`
	}
	if err := decode(r, &req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := h.rooms.AssignRandomTeams(r.Context(), req.RoomID, req.TeamCount); err != nil {
		h.respondErr(w, r, err)
		return
	}
	status, err := h.rooms.TeamStatus(r.Context(), req.RoomID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, status)
}

// SelectTeam is the player-side opt-in during manual selection.
func (h *Handler) SelectTeam(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID    string `json:"roomId"`
		DeviceID  string `json:"deviceId"`
		Team      string `json:"team"`
		TeamCount int    `json:"teamCount"`
	}
	if err := decode(r, &req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := h.rooms.SelectTeam(r.Context(), req.RoomID, req.DeviceID, req.Team, req.TeamCount); err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, nil)
}

// ResetTeams clears assignments and opens manual selection.
func (h *Handler) ResetTeams(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID    string `json:"roomId"`
		TeamCount int    `json:"teamCount"`
	}
	if err := decode(r, &req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := h.rooms.ResetTeams(r.Context(), req.RoomID, req.TeamCount); err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, nil)
}

// TeamStatus reports the current grouping.
func (h *Handler) TeamStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.rooms.TeamStatus(r.Context(), chi.URLParam(r, "roomId"))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, status)
}
