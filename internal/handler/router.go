package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/quietriver/avatar-stage/backend/internal/handler/events"
	"github.com/quietriver/avatar-stage/backend/internal/handler/session"
	"github.com/quietriver/avatar-stage/backend/internal/handler/translog"
	"github.com/quietriver/avatar-stage/backend/internal/handler/turn"
	middlewarePkg "github.com/quietriver/avatar-stage/backend/internal/middleware"
	"github.com/quietriver/avatar-stage/backend/internal/service/orchestrator"
	"github.com/quietriver/avatar-stage/backend/internal/transcript"
	"github.com/quietriver/avatar-stage/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(orch *orchestrator.Service, transcriptLog *transcript.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	sessionHandler := session.New(orch)
	turnHandler := turn.New(orch)
	eventsHandler := events.New(orch)
	translogHandler := translog.New(transcriptLog)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		sessionHandler.RegisterRoutes(api)
		turnHandler.RegisterRoutes(api)
		eventsHandler.RegisterRoutes(api)
		translogHandler.RegisterRoutes(api)
	})

	r.Get("/", handleIndex)

	return r
}
