package room

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	mrand "math/rand"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"suljari/internal/apperr"
	"suljari/internal/bus"
	"suljari/internal/event"
	"suljari/internal/metrics"
	"suljari/internal/store"
)

// roomCodeAlphabet is [A-Z0-9] minus the ambiguous 0, O, 1, I.
const roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const createAttempts = 10

// Registry manages room records: creation, joins, game selection and team
// assignment. It owns the room:{id}:info key.
type Registry struct {
	store          store.Store
	bus            *bus.Bus
	codeLength     int
	maxNicknameLen int
	log            *zap.SugaredLogger
}

// NewRegistry wires a registry over the state store and event bus.
func NewRegistry(st store.Store, b *bus.Bus, codeLength, maxNicknameLen int, log *zap.SugaredLogger) *Registry {
	if codeLength <= 0 {
		codeLength = 4
	}
	if maxNicknameLen <= 0 {
		maxNicknameLen = 8
	}
	return &Registry{
		store:          st,
		bus:            b,
		codeLength:     codeLength,
		maxNicknameLen: maxNicknameLen,
		log:            log.Named("room"),
	}
}

// Create mints a fresh room with a collision-free code and a host session
// token.
func (r *Registry) Create(ctx context.Context) (*Info, error) {
	for i := 0; i < createAttempts; i++ {
		code, err := r.newRoomCode()
		if err != nil {
			return nil, apperr.Internal(err)
		}
		if _, err := r.store.Get(ctx, store.InfoKey(code)); err == nil {
			continue // live room holds this code
		} else if !errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Internal(err)
		}

		info := &Info{
			RoomID:           code,
			HostSessionToken: uuid.NewString(),
			Status:           StatusWaiting,
			Players:          []Player{},
			CreatedAt:        time.Now().Unix(),
		}
		if err := r.Save(ctx, info); err != nil {
			return nil, err
		}
		metrics.RoomsCreated.Inc()
		r.log.Infow("room created", "roomId", code)
		return info, nil
	}
	return nil, apperr.Internalf("could not allocate a room code after %d attempts", createAttempts)
}

func (r *Registry) newRoomCode() (string, error) {
	buf := make([]byte, r.codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = roomCodeAlphabet[int(b)%len(roomCodeAlphabet)]
	}
	return string(buf), nil
}

// Get loads the room record. Absent or expired rooms yield notFound.
func (r *Registry) Get(ctx context.Context, roomID string) (*Info, error) {
	raw, err := r.store.Get(ctx, store.InfoKey(roomID))
	if err != nil {
		return nil, err
	}
	var info Info
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return nil, apperr.Internal(fmt.Errorf("corrupt room record %s: %w", roomID, err))
	}
	return &info, nil
}

// Save writes the room record back, refreshing its TTL.
func (r *Registry) Save(ctx context.Context, info *Info) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return apperr.Internal(err)
	}
	if err := r.store.Set(ctx, store.InfoKey(info.RoomID), string(raw)); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// Authorize checks the host session token against the room record.
func (r *Registry) Authorize(ctx context.Context, roomID, sessionToken string) (*Info, error) {
	info, err := r.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if sessionToken == "" || sessionToken != info.HostSessionToken {
		return nil, apperr.Unauthorized("session token does not match room %s", roomID)
	}
	return info, nil
}

// Join adds a player to a waiting room, minting its deviceId. Duplicate
// nicknames are rejected with conflict.
func (r *Registry) Join(ctx context.Context, roomID, nickname string) (*Player, error) {
	nickname = strings.TrimSpace(nickname)
	if n := utf8.RuneCountInString(nickname); n < 1 || n > r.maxNicknameLen {
		return nil, apperr.InvalidArgument("nickname must be 1-%d characters", r.maxNicknameLen)
	}

	info, err := r.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if info.Status != StatusWaiting {
		return nil, apperr.InvalidState("room %s is not accepting joins", roomID)
	}

	// The nickname set is the atomic gate against two devices joining
	// with the same name between roster read and write.
	added, err := r.store.SetAdd(ctx, store.NicknamesKey(roomID), nickname)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !added {
		return nil, apperr.Conflict("nickname %q is already taken", nickname)
	}

	player := Player{
		DeviceID: uuid.NewString(),
		Nickname: nickname,
		Alive:    true,
	}
	info.Players = append(info.Players, player)
	if err := r.Save(ctx, info); err != nil {
		return nil, err
	}

	metrics.PlayersJoined.Inc()
	r.log.Infow("player joined", "roomId", roomID, "nickname", nickname, "players", len(info.Players))
	r.bus.BroadcastHost(roomID, event.New(event.PlayerJoined, map[string]any{
		"deviceId":     player.DeviceID,
		"nickname":     player.Nickname,
		"totalPlayers": len(info.Players),
	}))
	return &player, nil
}

// StartGame moves the room to playing with the chosen game and announces it.
func (r *Registry) StartGame(ctx context.Context, roomID, gameCode string) error {
	if !ValidGame(gameCode) {
		return apperr.InvalidArgument("unknown game %q", gameCode)
	}
	info, err := r.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if info.Status == StatusEnded {
		return apperr.InvalidState("room %s has ended", roomID)
	}

	info.Status = StatusPlaying
	info.CurrentGame = gameCode
	if err := r.Save(ctx, info); err != nil {
		return err
	}

	metrics.GamesStarted.WithLabelValues(gameCode).Inc()
	r.log.Infow("game started", "roomId", roomID, "game", gameCode)
	r.bus.BroadcastAll(roomID, event.New(event.GameStarted, map[string]any{
		"game": gameCode,
	}))
	return nil
}

// SetCurrentGame updates only the current-game marker, used when a game
// ends and the room returns to the lobby.
func (r *Registry) SetCurrentGame(ctx context.Context, roomID, gameCode string) error {
	info, err := r.Get(ctx, roomID)
	if err != nil {
		return err
	}
	info.CurrentGame = gameCode
	if gameCode == "" {
		info.Status = StatusWaiting
	}
	return r.Save(ctx, info)
}

// Reaction relays a player emote to the host display.
func (r *Registry) Reaction(ctx context.Context, roomID, deviceID, reactionType string) error {
	if !ValidReaction(reactionType) {
		return apperr.InvalidArgument("unknown reaction type %q", reactionType)
	}
	info, err := r.Get(ctx, roomID)
	if err != nil {
		return err
	}
	p := info.Player(deviceID)
	if p == nil {
		return apperr.NotFound("device %s is not in room %s", deviceID, roomID)
	}

	r.bus.BroadcastHost(roomID, event.New(event.Reaction, map[string]any{
		"deviceId": p.DeviceID,
		"nickname": p.Nickname,
		"type":     reactionType,
	}))
	return nil
}

// AssignRandomTeams shuffles the roster into k teams whose sizes differ by
// at most one and announces the result to everyone.
func (r *Registry) AssignRandomTeams(ctx context.Context, roomID string, k int) error {
	info, err := r.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if k < 2 || k > len(info.Players) {
		return apperr.InvalidArgument("team count %d is not in [2, %d]", k, len(info.Players))
	}

	order := mrand.Perm(len(info.Players))
	tags := TeamTags(k)
	for i, idx := range order {
		info.Players[idx].Team = tags[i%k]
	}
	if err := r.Save(ctx, info); err != nil {
		return err
	}

	r.log.Infow("teams assigned", "roomId", roomID, "teams", k)
	r.bus.BroadcastAll(roomID, event.New(event.TeamAssigned, teamPayload(info)))
	return nil
}

// SelectTeam is the player-side opt-in used during manual team selection.
// A bucket is full once it reaches ceil(n/k) members.
func (r *Registry) SelectTeam(ctx context.Context, roomID, deviceID, tag string, k int) error {
	info, err := r.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if k < 2 || k > len(info.Players) {
		return apperr.InvalidArgument("team count %d is not in [2, %d]", k, len(info.Players))
	}
	if !validTag(tag, k) {
		return apperr.InvalidArgument("unknown team %q", tag)
	}
	p := info.Player(deviceID)
	if p == nil {
		return apperr.NotFound("device %s is not in room %s", deviceID, roomID)
	}

	capacity := (len(info.Players) + k - 1) / k
	occupied := 0
	for _, other := range info.Players {
		if other.Team == tag && other.DeviceID != deviceID {
			occupied++
		}
	}
	if occupied >= capacity {
		return apperr.Conflict("team %s is full", tag)
	}

	p.Team = tag
	if err := r.Save(ctx, info); err != nil {
		return err
	}

	r.bus.BroadcastAll(roomID, event.New(event.PlayerTeamSelected, map[string]any{
		"deviceId": p.DeviceID,
		"nickname": p.Nickname,
		"team":     tag,
		"teams":    teamCounts(info),
	}))
	return nil
}

// ResetTeams clears every assignment and opens manual selection for k teams.
func (r *Registry) ResetTeams(ctx context.Context, roomID string, k int) error {
	info, err := r.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if k < 2 {
		return apperr.InvalidArgument("team count %d is not at least 2", k)
	}
	for i := range info.Players {
		info.Players[i].Team = ""
	}
	if err := r.Save(ctx, info); err != nil {
		return err
	}

	r.bus.BroadcastAll(roomID, event.New(event.TeamManualStart, map[string]any{
		"teamCount": k,
	}))
	return nil
}

// TeamStatus returns the current grouping for status polls.
func (r *Registry) TeamStatus(ctx context.Context, roomID string) (map[string]any, error) {
	info, err := r.Get(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return teamPayload(info), nil
}

func validTag(tag string, k int) bool {
	for _, t := range TeamTags(k) {
		if t == tag {
			return true
		}
	}
	return false
}

type teamMember struct {
	DeviceID string `json:"deviceId"`
	Nickname string `json:"nickname"`
}

func teamPayload(info *Info) map[string]any {
	teams := make(map[string][]teamMember)
	unassigned := make([]teamMember, 0)
	for _, p := range info.Players {
		m := teamMember{DeviceID: p.DeviceID, Nickname: p.Nickname}
		if p.Team == "" {
			unassigned = append(unassigned, m)
			continue
		}
		teams[p.Team] = append(teams[p.Team], m)
	}
	return map[string]any{
		"teams":      teams,
		"unassigned": unassigned,
	}
}

func teamCounts(info *Info) map[string]int {
	counts := make(map[string]int)
	for _, p := range info.Players {
		if p.Team != "" {
			counts[p.Team]++
		}
	}
	return counts
}
