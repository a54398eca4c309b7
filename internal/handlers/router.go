package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"suljari/internal/apperr"
	"suljari/internal/config"
	localMiddleware "suljari/internal/middleware"
)

// RouterOptions allows customization of router setup for tests.
type RouterOptions struct {
	DisableRateLimiting  bool
	DisableRequestLogger bool
	CustomMiddleware     []func(http.Handler) http.Handler
}

// SetupRouter creates the application router with all routes and middleware.
func SetupRouter(h *Handler, cfg *config.ServerConfig, opts *RouterOptions) *chi.Mux {
	if opts == nil {
		opts = &RouterOptions{}
	}

	r := chi.NewRouter()

	if !opts.DisableRequestLogger {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(localMiddleware.RequestSizeLimiter(cfg.Server.MaxRequestSize))
	r.Use(localMiddleware.SecurityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	if !opts.DisableRateLimiting {
		rateLimiter := localMiddleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateLimitBurst)
		r.Use(rateLimiter.Middleware())
	}
	for _, mw := range opts.CustomMiddleware {
		r.Use(mw)
	}

	// The event streams live outside the request timeout.
	r.Get("/sse/connect", h.ConnectHost)
	r.Get("/sse/player/connect", h.ConnectPlayer)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.Server.RequestTimeout))

		r.Post("/rooms", h.CreateRoom)
		r.Post("/rooms/join", h.JoinRoom)
		r.Get("/rooms/{roomId}", h.GetRoom)
		r.Get("/rooms/{roomId}/qrcode", h.RoomQR)

		r.Post("/games/start", h.StartGame)
		r.Post("/games/reaction", h.Reaction)

		r.Route("/teams", func(r chi.Router) {
			r.Post("/random", h.RandomTeams)
			r.Post("/select", h.SelectTeam)
			r.Post("/reset", h.ResetTeams)
			r.Get("/status/{roomId}", h.TeamStatus)
		})

		r.Route("/games/marble", func(r chi.Router) {
			r.Post("/penalty", h.MarbleSubmitPenalty)
			r.Post("/penalty/vote", h.MarbleToggleVote)
			r.Post("/penalty/vote/done", h.MarbleVoteDone)
			r.Post("/penalty/finish", h.MarbleFinishVoting)
			r.Post("/mode", h.MarbleSelectMode)
			r.Post("/roll", h.MarbleRoll)
			r.Post("/end", h.MarbleEnd)
			r.Get("/state/{roomId}", h.MarbleState)
		})

		r.Route("/games/mafia", func(r chi.Router) {
			r.Post("/start", h.MafiaStart)
			r.Post("/night-action", h.MafiaNightAction)
			r.Post("/chat", h.MafiaChat)
			r.Get("/chat", h.MafiaChatHistory)
			r.Post("/vote", h.MafiaVote)
			r.Post("/final-vote", h.MafiaFinalVote)
			r.Get("/role", h.MafiaRole)
			r.Get("/state/{roomId}", h.MafiaState)
			if cfg.Server.EnableDebug {
				r.Post("/force-phase", h.MafiaForcePhase)
			}
		})

		r.Route("/games/liar", func(r chi.Router) {
			r.Post("/start", h.LiarStart)
			r.Get("/role", h.LiarRole)
			r.Post("/vote/more-round", h.LiarVoteMoreRound)
			r.Post("/pointing/start", h.LiarStartPointingVote)
			r.Post("/pointing/vote", h.LiarPointingVote)
			r.Post("/guess", h.LiarGuess)
			r.Get("/state/{roomId}", h.LiarState)
		})

		r.Route("/games/quiz", func(r chi.Router) {
			r.Post("/start", h.QuizStart)
			r.Post("/round/start", h.QuizRoundStart)
			r.Post("/correct", h.QuizCorrect)
			r.Post("/pass", h.QuizPass)
			r.Post("/round/end", h.QuizEndRound)
			r.Post("/team/next", h.QuizNextTeam)
			r.Get("/ranking/{roomId}", h.QuizRanking)
			r.Get("/state/{roomId}", h.QuizState)
		})

		r.Route("/games/truth", func(r chi.Router) {
			r.Post("/start", h.TruthStart)
			r.Post("/answerer", h.TruthAnswerer)
			r.Post("/question", h.TruthQuestion)
			r.Post("/question/finish", h.TruthFinishSubmission)
			r.Post("/question/random", h.TruthRandomQuestion)
			r.Post("/question/confirm", h.TruthConfirmQuestion)
			r.Post("/question/vote", h.TruthQuestionVote)
			r.Post("/question/vote/finish", h.TruthFinishQuestionVote)
			r.Post("/face-data", h.TruthFaceData)
			r.Post("/answer/finish", h.TruthFinishAnswering)
			r.Post("/round/next", h.TruthNextRound)
			r.Get("/state/{roomId}", h.TruthState)
		})
	})

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Get("/health/ready", h.healthReady)

	if cfg.Server.EnableMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// healthReady probes the state store. A notFound on the probe key still
// means the store answered.
func (h *Handler) healthReady(w http.ResponseWriter, r *http.Request) {
	_, err := h.store.Get(r.Context(), "health:probe")
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		h.log.Warnw("readiness probe failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
