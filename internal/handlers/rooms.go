package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"suljari/internal/room"
)

// CreateRoom mints a room and hands the host its session token. This is the
// only response that ever carries the token.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	info, err := h.rooms.Create(r.Context())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusCreated, map[string]any{
		"roomId":           info.RoomID,
		"hostSessionToken": info.HostSessionToken,
	})
}

// JoinRoom admits a player and mints their deviceId.
func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID   string `json:"roomId"`
		Nickname string `json:"nickname"`
	}
	if err := decode(r, &req); err != nil {
		h.respondErr(w, r, err)
		return
	}

	player, err := h.rooms.Join(r.Context(), req.RoomID, req.Nickname)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]any{
		"roomId":   req.RoomID,
		"deviceId": player.DeviceID,
		"nickname": player.Nickname,
	})
}

// GetRoom returns the room record with the host token and any game-scoped
// roles stripped. Roles travel only over the per-device role endpoints.
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	info, err := h.rooms.Get(r.Context(), chi.URLParam(r, "roomId"))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, publicRoom(info))
}

// StartGame flips the room to playing with the chosen game.
func (h *Handler) StartGame(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID   string `json:"roomId"`
		GameCode string `json:"gameCode"`
	}
	if err := decode(r, &req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := h.rooms.StartGame(r.Context(), req.RoomID, req.GameCode); err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]any{
		"roomId": req.RoomID,
		"game":   req.GameCode,
	})
}

// Reaction relays a player emote to the host display.
func (h *Handler) Reaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RoomID   string `json:"roomId"`
		DeviceID string `json:"deviceId"`
		Type     string `json:"type"`
	}
	if err := decode(r, &req); err != nil {
		h.respondErr(w, r, err)
		return
	}
	if err := h.rooms.Reaction(r.Context(), req.RoomID, req.DeviceID, req.Type); err != nil {
		h.respondErr(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, nil)
}

type publicPlayer struct {
	DeviceID string `json:"deviceId"`
	Nickname string `json:"nickname"`
	Team     string `json:"team,omitempty"`
	Alive    bool   `json:"alive"`
	Profile  string `json:"profile,omitempty"`
}

type publicRoomInfo struct {
	RoomID      string         `json:"roomId"`
	Status      room.Status    `json:"status"`
	CurrentGame string         `json:"currentGame,omitempty"`
	Players     []publicPlayer `json:"players"`
	CreatedAt   int64          `json:"createdAt"`
}

func publicRoom(info *room.Info) publicRoomInfo {
	players := make([]publicPlayer, 0, len(info.Players))
	for _, p := range info.Players {
		players = append(players, publicPlayer{
			DeviceID: p.DeviceID,
			Nickname: p.Nickname,
			Team:     p.Team,
			Alive:    p.Alive,
			Profile:  p.Profile,
		})
	}
	return publicRoomInfo{
		RoomID:      info.RoomID,
		Status:      info.Status,
		CurrentGame: info.CurrentGame,
		Players:     players,
		CreatedAt:   info.CreatedAt,
	}
}
