package server

import (
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"

	"github.com/playperu/breachhunt/internal/engine"
)

func addRoutes(r chi.Router, logger *slog.Logger, deps Deps) {
	eng, auth := deps.Engine, deps.Auth

	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("Breach Hunt API", "/openapi.json", "/docs"))
	r.Get("/healthz", handleHealth(logger, deps.Checks))

	r.Post("/api/login/team", handleTeamLogin(logger, auth))
	r.Post("/api/login/staff", handleStaffLogin(logger, auth))

	// Public scoreboard.
	r.Group(func(r chi.Router) {
		r.Use(asSpectator)
		r.Get("/api/spectator/state", handleState(logger, eng))
		r.Get("/api/spectator/events", handleEvents(logger, eng, auth))
	})

	// Any signed-in viewer.
	r.Group(func(r chi.Router) {
		r.Use(requireSession(auth))
		r.Post("/api/logout", handleLogout(auth))
		r.Get("/api/state", handleState(logger, eng))
		r.Get("/api/events", handleEvents(logger, eng, auth))
		r.Get("/ws/state", handleWSState(logger, eng, auth))
	})

	r.Route("/api/game", func(r chi.Router) {
		r.Use(requireSession(auth, engine.RoleCompetitor))
		r.Post("/answer", handleAnswer(logger, eng))
		r.Post("/heartbeat", handleHeartbeat(logger, eng))
	})

	r.Group(func(r chi.Router) {
		r.Use(requireSession(auth, engine.RoleVolunteer, engine.RoleAdmin))
		r.Post("/api/volunteer/advance", handleManualAdvance(logger, eng))
		r.Post("/api/volunteer/call", handleCallAdmin(logger, eng))
		r.Post("/api/alerts", handleAlert(logger, eng))
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(requireSession(auth, engine.RoleAdmin))
		r.Post("/clock/start", handleStartClock(logger, eng))
		r.Post("/clock/stop", handleStopClock(logger, eng))
		r.Post("/clock/pause", handlePause(logger, eng))
		r.Post("/clock/resume", handleResume(logger, eng))
		r.Post("/clock/adjust", handleAdjust(logger, eng))
		r.Post("/teams/{teamID}/promote", handlePromote(logger, eng))
		r.Post("/teams/{teamID}/demote", handleDemote(logger, eng))
		r.Post("/reset", handleResetRequest(logger, eng))
		r.Post("/reset/confirm", handleResetConfirm(logger, eng))
		r.Post("/resync", handleResync(logger, eng))
	})

	if deps.SPADir != "" {
		if info, err := os.Stat(deps.SPADir); err == nil && info.IsDir() {
			logger.Info("serving SPA", "dir", deps.SPADir)
			r.NotFound(handleSPA(deps.SPADir))
		}
	}
}
