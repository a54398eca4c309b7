// Package handlers exposes the HTTP surface: room and team management, the
// SSE endpoints and one route group per game. Every JSON endpoint answers
// with the {success, data, error} envelope from respond.go.
package handlers

import (
	"go.uber.org/zap"

	"suljari/internal/bus"
	"suljari/internal/catalog"
	"suljari/internal/config"
	"suljari/internal/game"
	"suljari/internal/game/liar"
	"suljari/internal/game/mafia"
	"suljari/internal/game/marble"
	"suljari/internal/game/quiz"
	"suljari/internal/game/truth"
	"suljari/internal/room"
	"suljari/internal/scheduler"
	"suljari/internal/store"
)

// Handler holds the wired dependencies for every HTTP handler.
type Handler struct {
	cfg   *config.ServerConfig
	log   *zap.SugaredLogger
	store store.Store
	bus   *bus.Bus
	rooms *room.Registry

	marble *marble.Machine
	mafia  *mafia.Machine
	liar   *liar.Machine
	quiz   *quiz.Machine
	truth  *truth.Machine
}

// New wires the handler set over the shared infrastructure. The five game
// machines share one dependency bundle.
func New(cfg *config.ServerConfig, log *zap.SugaredLogger, st store.Store, b *bus.Bus,
	sched *scheduler.Scheduler, cat *catalog.Catalog, rooms *room.Registry) *Handler {
	deps := game.Deps{
		Store:     st,
		Bus:       b,
		Scheduler: sched,
		Rooms:     rooms,
		Catalog:   cat,
		Log:       log,
	}
	return &Handler{
		cfg:    cfg,
		log:    log.Named("http"),
		store:  st,
		bus:    b,
		rooms:  rooms,
		marble: marble.New(deps),
		mafia:  mafia.New(deps),
		liar:   liar.New(deps),
		quiz:   quiz.New(deps),
		truth:  truth.New(deps),
	}
}
