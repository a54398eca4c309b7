package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	datastar "github.com/starfederation/datastar-go/datastar"

	"suljari/internal/apperr"
	"suljari/internal/bus"
	"suljari/internal/event"
)

// keepaliveInterval paces the comment traffic that keeps proxies from
// closing a quiet stream. Each tick also probes whether the room still
// exists.
const keepaliveInterval = 30 * time.Second

// writeTimeout bounds a single SSE write so one stuck client cannot pin a
// handler goroutine.
const writeTimeout = 10 * time.Second

// ConnectHost opens the host event stream. The session token from room
// creation is the only credential.
func (h *Handler) ConnectHost(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("roomId")
	sessionID := r.URL.Query().Get("sessionId")

	if _, err := h.rooms.Authorize(r.Context(), roomID, sessionID); err != nil {
		h.respondErr(w, r, err)
		return
	}

	stream := h.bus.AttachHost(roomID)
	defer h.bus.DetachHost(roomID, stream)
	h.log.Infow("host stream open", "roomId", roomID)
	h.serveStream(w, r, roomID, stream)
}

// ConnectPlayer opens the stream for one device. Unknown devices are
// rejected so a guessed roomId alone is not enough to listen in.
func (h *Handler) ConnectPlayer(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("roomId")
	deviceID := r.URL.Query().Get("deviceId")

	info, err := h.rooms.Get(r.Context(), roomID)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	if info.Player(deviceID) == nil {
		h.respondErr(w, r, apperr.NotFound("device %s is not in room %s", deviceID, roomID))
		return
	}

	stream := h.bus.AttachPlayer(roomID, deviceID)
	defer h.bus.DetachPlayer(roomID, deviceID, stream)
	h.log.Infow("player stream open", "roomId", roomID, "deviceId", deviceID)
	h.serveStream(w, r, roomID, stream)
}

// serveStream pumps bus messages into SSE frames until the client leaves,
// the stream is replaced, the room disappears, or the stream idles out.
func (h *Handler) serveStream(w http.ResponseWriter, r *http.Request, roomID string, stream *bus.Stream) {
	sse := datastar.NewSSE(w, r)
	rc := http.NewResponseController(w)

	if err := h.push(sse, rc, bus.Message{Name: event.Connect, Data: `"connected"`}); err != nil {
		h.log.Debugw("connect frame failed", "roomId", roomID, "error", err)
		return
	}

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()
	lastEvent := time.Now()

	for {
		select {
		case <-r.Context().Done():
			return

		case <-keepalive.C:
			if time.Since(lastEvent) > h.cfg.Server.SSEIdleTimeout {
				h.log.Infow("stream idled out", "roomId", roomID)
				return
			}
			if _, err := h.rooms.Get(r.Context(), roomID); err != nil {
				h.log.Infow("room gone, closing stream", "roomId", roomID)
				return
			}
			ping := fmt.Sprintf(`{"time":%q}`, time.Now().Format(time.RFC3339))
			if err := h.push(sse, rc, bus.Message{Name: "keepalive", Data: ping}); err != nil {
				h.log.Debugw("keepalive failed, dropping stream", "roomId", roomID, "error", err)
				return
			}

		case msg, ok := <-stream.C:
			if !ok {
				// Replaced by a newer connection for the same client.
				return
			}
			if err := h.push(sse, rc, msg); err != nil {
				h.log.Debugw("stream write failed", "roomId", roomID, "event", msg.Name, "error", err)
				return
			}
			lastEvent = time.Now()
		}
	}
}

// push writes one frame under a write deadline. Recorders used in tests do
// not support deadlines; that is tolerated.
func (h *Handler) push(sse *datastar.ServerSentEventGenerator, rc *http.ResponseController, msg bus.Message) error {
	if err := rc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return sse.Send(datastar.EventType(msg.Name), []string{msg.Data})
}
