package mafia

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"suljari/internal/apperr"
	"suljari/internal/event"
)

const maxChatLen = 200

// Chat appends a night-time mafia chat line and fans it out to every
// living mafia device. Other players never see these frames.
func (m *Machine) Chat(ctx context.Context, roomID, deviceID, message string) error {
	message = strings.TrimSpace(message)
	if message == "" || utf8.RuneCountInString(message) > maxChatLen {
		return apperr.InvalidArgument("chat message must be 1-%d characters", maxChatLen)
	}

	info, err := m.deps.Rooms.Get(ctx, roomID)
	if err != nil {
		return err
	}
	sender := info.Player(deviceID)
	if sender == nil {
		return apperr.NotFound("device %s is not in room %s", deviceID, roomID)
	}
	if sender.Role != RoleMafia {
		return apperr.Unauthorized("only mafia may use the mafia chat")
	}
	if !sender.Alive {
		return apperr.InvalidState("dead players cannot chat")
	}

	st, err := m.State(ctx, roomID)
	if err != nil {
		return err
	}
	if st.Phase != PhaseNight {
		return apperr.InvalidState("mafia chat is only open at night")
	}

	line := ChatMessage{
		DeviceID:  deviceID,
		Nickname:  sender.Nickname,
		Message:   message,
		Timestamp: time.Now().Unix(),
	}
	st.MafiaChat = append(st.MafiaChat, line)
	if err := m.save(ctx, roomID, st); err != nil {
		return err
	}

	for _, p := range info.Players {
		if p.Role == RoleMafia && p.Alive {
			m.deps.Bus.SendToPlayer(roomID, p.DeviceID, event.New(event.MafiaChat, line))
		}
	}
	return nil
}

// ChatHistory returns the full mafia chat. Only mafia may read it, dead
// or alive.
func (m *Machine) ChatHistory(ctx context.Context, roomID, deviceID string) ([]ChatMessage, error) {
	info, err := m.deps.Rooms.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	p := info.Player(deviceID)
	if p == nil {
		return nil, apperr.NotFound("device %s is not in room %s", deviceID, roomID)
	}
	if p.Role != RoleMafia {
		return nil, apperr.Unauthorized("only mafia may read the mafia chat")
	}

	st, err := m.State(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if st.MafiaChat == nil {
		return []ChatMessage{}, nil
	}
	return st.MafiaChat, nil
}
