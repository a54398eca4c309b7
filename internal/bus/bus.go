// Package bus fans events out to the open SSE streams of each room: at most
// one host stream per room plus one stream per player device. The bus is
// process-local and never buffers for disconnected clients; a client that
// reconnects must re-read state over HTTP.
package bus

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"suljari/internal/event"
	"suljari/internal/metrics"
)

// streamBuffer is the per-stream channel depth. Broadcasts to a full buffer
// drop the event for that stream rather than block the sender.
const streamBuffer = 16

// Message is one wire-ready frame: the event name plus its data already
// marshaled to JSON.
type Message struct {
	Name string
	Data string
}

// Stream is one attached client. Receive from C until it closes; the bus
// closes it when the stream is replaced or the room shuts down.
type Stream struct {
	C  <-chan Message
	ch chan Message
}

func newStream() *Stream {
	ch := make(chan Message, streamBuffer)
	return &Stream{C: ch, ch: ch}
}

type roomStreams struct {
	host    *Stream
	players map[string]*Stream
}

// Bus routes events to the streams of each room.
type Bus struct {
	mu    sync.RWMutex
	rooms map[string]*roomStreams
	log   *zap.SugaredLogger
}

func New(log *zap.SugaredLogger) *Bus {
	return &Bus{
		rooms: make(map[string]*roomStreams),
		log:   log,
	}
}

func (b *Bus) room(roomID string) *roomStreams {
	rs, ok := b.rooms[roomID]
	if !ok {
		rs = &roomStreams{players: make(map[string]*Stream)}
		b.rooms[roomID] = rs
	}
	return rs
}

// AttachHost opens the host stream for a room. A prior host stream is
// closed and replaced; its reader sees the channel close and detaches.
func (b *Bus) AttachHost(roomID string) *Stream {
	b.mu.Lock()
	defer b.mu.Unlock()

	rs := b.room(roomID)
	if rs.host != nil {
		close(rs.host.ch)
		metrics.OpenStreams.Dec()
	}
	s := newStream()
	rs.host = s
	metrics.OpenStreams.Inc()
	b.log.Debugw("host stream attached", "room", roomID)
	return s
}

// AttachPlayer opens the stream for a device, replacing any prior one.
func (b *Bus) AttachPlayer(roomID, deviceID string) *Stream {
	b.mu.Lock()
	defer b.mu.Unlock()

	rs := b.room(roomID)
	if old, ok := rs.players[deviceID]; ok {
		close(old.ch)
		metrics.OpenStreams.Dec()
	}
	s := newStream()
	rs.players[deviceID] = s
	metrics.OpenStreams.Inc()
	b.log.Debugw("player stream attached", "room", roomID, "device", deviceID)
	return s
}

// DetachHost removes s if it is still the room's current host stream.
// Detaching a stream that was already replaced is a no-op.
func (b *Bus) DetachHost(roomID string, s *Stream) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rs, ok := b.rooms[roomID]
	if !ok || rs.host != s {
		return
	}
	close(s.ch)
	rs.host = nil
	metrics.OpenStreams.Dec()
	b.log.Debugw("host stream detached", "room", roomID)
}

// DetachPlayer removes s if it is still the device's current stream.
func (b *Bus) DetachPlayer(roomID, deviceID string, s *Stream) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rs, ok := b.rooms[roomID]
	if !ok || rs.players[deviceID] != s {
		return
	}
	close(s.ch)
	delete(rs.players, deviceID)
	metrics.OpenStreams.Dec()
	b.log.Debugw("player stream detached", "room", roomID, "device", deviceID)
}

// CloseRoom closes every stream of a room and forgets it.
func (b *Bus) CloseRoom(roomID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rs, ok := b.rooms[roomID]
	if !ok {
		return
	}
	if rs.host != nil {
		close(rs.host.ch)
		metrics.OpenStreams.Dec()
	}
	for _, s := range rs.players {
		close(s.ch)
		metrics.OpenStreams.Dec()
	}
	delete(b.rooms, roomID)
	b.log.Debugw("room streams closed", "room", roomID)
}

// BroadcastHost delivers to the host stream if one is attached.
func (b *Bus) BroadcastHost(roomID string, ev event.Event) {
	msg, ok := b.encode(ev)
	if !ok {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if rs, ok := b.rooms[roomID]; ok && rs.host != nil {
		b.deliver(rs.host, msg)
	}
}

// BroadcastPlayers delivers to every attached player stream of the room.
func (b *Bus) BroadcastPlayers(roomID string, ev event.Event) {
	msg, ok := b.encode(ev)
	if !ok {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if rs, ok := b.rooms[roomID]; ok {
		for _, s := range rs.players {
			b.deliver(s, msg)
		}
	}
}

// BroadcastAll delivers to the host and all players.
func (b *Bus) BroadcastAll(roomID string, ev event.Event) {
	msg, ok := b.encode(ev)
	if !ok {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if rs, ok := b.rooms[roomID]; ok {
		if rs.host != nil {
			b.deliver(rs.host, msg)
		}
		for _, s := range rs.players {
			b.deliver(s, msg)
		}
	}
}

// SendToPlayer delivers to a single device stream; used for traffic with
// restricted visibility such as mafia chat.
func (b *Bus) SendToPlayer(roomID, deviceID string, ev event.Event) {
	msg, ok := b.encode(ev)
	if !ok {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if rs, ok := b.rooms[roomID]; ok {
		if s, ok := rs.players[deviceID]; ok {
			b.deliver(s, msg)
		}
	}
}

// encode marshals the payload once so fan-out shares the same bytes.
func (b *Bus) encode(ev event.Event) (Message, bool) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		b.log.Errorw("event payload marshal failed", "event", ev.Name, "error", err)
		return Message{}, false
	}
	return Message{Name: ev.Name, Data: string(data)}, true
}

func (b *Bus) deliver(s *Stream, msg Message) {
	select {
	case s.ch <- msg:
		metrics.EventsBroadcast.Inc()
	default:
		// Slow consumer; the stream keeps its order but loses this event.
		metrics.EventsDropped.Inc()
		b.log.Debugw("stream buffer full, event dropped", "event", msg.Name)
	}
}
