// Package game carries the pieces shared by every state machine: the
// dependency bundle handed to each machine and the state persistence
// helpers built on the store's one-key-per-game convention.
package game

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"suljari/internal/apperr"
	"suljari/internal/bus"
	"suljari/internal/catalog"
	"suljari/internal/room"
	"suljari/internal/scheduler"
	"suljari/internal/store"
)

// Deps bundles the infrastructure every machine needs.
type Deps struct {
	Store     store.Store
	Bus       *bus.Bus
	Scheduler *scheduler.Scheduler
	Rooms     *room.Registry
	Catalog   *catalog.Catalog
	Log       *zap.SugaredLogger
}

// LoadState reads and decodes the JSON game state at key. Absence surfaces
// as notFound, matching the room-gone contract.
func LoadState(ctx context.Context, st store.Store, key string, v any) error {
	raw, err := st.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return apperr.Internal(fmt.Errorf("corrupt state at %s: %w", key, err))
	}
	return nil
}

// SaveState encodes and writes the game state, refreshing the room TTL.
func SaveState(ctx context.Context, st store.Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return apperr.Internal(err)
	}
	if err := st.Set(ctx, key, string(raw)); err != nil {
		return apperr.Internal(err)
	}
	return nil
}
