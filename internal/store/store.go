// Package store is the ephemeral room state store. Every durable-within-room
// datum lives under a room:{roomId}:... key with a TTL refreshed on each
// write; once the TTL lapses the room is gone and reads surface notFound.
package store

import (
	"context"
	"fmt"
	"time"

	"suljari/internal/apperr"
)

// Store is the TTL-scoped key/value/list/set facility the game core writes
// through. Values are UTF-8 JSON strings. Writes are last-writer-wins per
// key; there are no multi-key transactions.
type Store interface {
	// Get returns the value at key or apperr.ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Set writes value and re-arms the room TTL.
	Set(ctx context.Context, key, value string) error
	// Delete removes keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
	// ListAppend appends values to the list at key, creating it if needed,
	// and re-arms the TTL.
	ListAppend(ctx context.Context, key string, values ...string) error
	// ListRange returns the list slice [start, stop] (inclusive, negative
	// indexes count from the tail, Redis LRANGE semantics). An absent key
	// yields an empty slice.
	ListRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	// SetAdd adds member to the set at key and reports whether it was new.
	// Re-arms the TTL.
	SetAdd(ctx context.Context, key, member string) (bool, error)
	// SetSize returns the cardinality of the set at key (0 if absent).
	SetSize(ctx context.Context, key string) (int64, error)
	// Expire re-arms key's TTL without writing. ttl <= 0 uses the store
	// default.
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// DefaultTTL is the room lifetime used when no TTL is configured.
const DefaultTTL = 6 * time.Hour

// Key layout. Everything is scoped under the room id so a room's whole
// footprint can be purged by prefix-derived key lists.

func RoomKey(roomID string, parts ...string) string {
	key := "room:" + roomID
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

func InfoKey(roomID string) string { return RoomKey(roomID, "info") }

// Mafia keeps its state at room:{id}:state; the other games nest under
// their own game segment.
func MafiaStateKey(roomID string) string { return RoomKey(roomID, "state") }

func MarbleStateKey(roomID string) string     { return RoomKey(roomID, "marble", "state") }
func MarblePenaltiesKey(roomID string) string { return RoomKey(roomID, "marble", "penalties") }
func MarbleVotesKey(roomID string) string     { return RoomKey(roomID, "marble", "votes") }
func MarbleSelectedKey(roomID string) string  { return RoomKey(roomID, "marble", "selected") }
func MarbleVoteDoneKey(roomID string) string  { return RoomKey(roomID, "marble", "vote_done") }

func LiarStateKey(roomID string) string  { return RoomKey(roomID, "liar", "state") }
func QuizStateKey(roomID string) string  { return RoomKey(roomID, "quiz", "state") }
func TruthStateKey(roomID string) string { return RoomKey(roomID, "truth", "state") }

func NicknamesKey(roomID string) string { return RoomKey(roomID, "nicknames") }

// GameKeys lists every key a game family may have written for a room, used
// when a game ends or is replaced wholesale.
func GameKeys(roomID, game string) []string {
	switch game {
	case "marble":
		return []string{
			MarbleStateKey(roomID),
			MarblePenaltiesKey(roomID),
			MarbleVotesKey(roomID),
			MarbleSelectedKey(roomID),
			MarbleVoteDoneKey(roomID),
		}
	case "mafia":
		return []string{MafiaStateKey(roomID)}
	case "liar":
		return []string{LiarStateKey(roomID)}
	case "quiz":
		return []string{QuizStateKey(roomID)}
	case "truth":
		return []string{TruthStateKey(roomID)}
	default:
		return nil
	}
}

// AllRoomKeys is the full key footprint of a room.
func AllRoomKeys(roomID string) []string {
	keys := []string{InfoKey(roomID), NicknamesKey(roomID)}
	for _, g := range []string{"marble", "mafia", "liar", "quiz", "truth"} {
		keys = append(keys, GameKeys(roomID, g)...)
	}
	return keys
}

// errAbsent wraps the notFound kind with the missing key for logs; the
// client-safe message stays generic.
func errAbsent(key string) error {
	return fmt.Errorf("key %s: %w", key, apperr.NotFound("room state expired or missing"))
}
