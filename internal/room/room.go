package room

// Status represents the lifecycle state of a room.
type Status string

const (
	StatusWaiting Status = "waiting"
	StatusPlaying Status = "playing"
	StatusEnded   Status = "ended"
)

// Game codes selectable via the start-game command.
const (
	GameMarble = "marble"
	GameMafia  = "mafia"
	GameLiar   = "liar"
	GameQuiz   = "quiz"
	GameTruth  = "truth"
)

// ValidGame reports whether code names a playable game.
func ValidGame(code string) bool {
	switch code {
	case GameMarble, GameMafia, GameLiar, GameQuiz, GameTruth:
		return true
	}
	return false
}

// Reaction types players can send to the host display.
const (
	ReactionFirework = "firework"
	ReactionBoo      = "boo"
	ReactionLaugh    = "laugh"
	ReactionAngry    = "angry"
)

// ValidReaction reports whether t is a known reaction type.
func ValidReaction(t string) bool {
	switch t {
	case ReactionFirework, ReactionBoo, ReactionLaugh, ReactionAngry:
		return true
	}
	return false
}

// Player is one joined device. Role is only populated during a Mafia game,
// Team only while teams are assigned.
type Player struct {
	DeviceID string `json:"deviceId"`
	Nickname string `json:"nickname"`
	Team     string `json:"team,omitempty"`
	Role     string `json:"role,omitempty"`
	Alive    bool   `json:"alive"`
	Profile  string `json:"profile,omitempty"`
}

// Info is the room record stored under room:{id}:info.
type Info struct {
	RoomID           string   `json:"roomId"`
	HostSessionToken string   `json:"hostSessionToken"`
	Status           Status   `json:"status"`
	CurrentGame      string   `json:"currentGame,omitempty"`
	Players          []Player `json:"players"`
	CreatedAt        int64    `json:"createdAt"`
}

// Player returns the roster entry for deviceID, or nil.
func (i *Info) Player(deviceID string) *Player {
	for idx := range i.Players {
		if i.Players[idx].DeviceID == deviceID {
			return &i.Players[idx]
		}
	}
	return nil
}

// HasNickname reports whether any player already uses the nickname.
func (i *Info) HasNickname(nickname string) bool {
	for idx := range i.Players {
		if i.Players[idx].Nickname == nickname {
			return true
		}
	}
	return false
}

// Teams groups the roster by assigned team tag, preserving roster order.
// Players without a tag are omitted.
func (i *Info) Teams() map[string][]Player {
	out := make(map[string][]Player)
	for _, p := range i.Players {
		if p.Team != "" {
			out[p.Team] = append(out[p.Team], p)
		}
	}
	return out
}

// TeamTags returns the first k team tags in assignment order: A, B, C, …
func TeamTags(k int) []string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	if k > len(letters) {
		k = len(letters)
	}
	tags := make([]string, 0, k)
	for i := 0; i < k; i++ {
		tags = append(tags, string(letters[i]))
	}
	return tags
}
