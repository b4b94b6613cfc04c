package translog

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quietriver/avatar-stage/backend/internal/transcript"
	"github.com/quietriver/avatar-stage/backend/pkg/utils"
)

// tailBytes bounds how much of the log the page fetches at once.
const tailBytes = 4000

// Handler exposes the durable conversation log file.
type Handler struct {
	logger *transcript.Logger
}

// New creates the transcript log handler.
func New(logger *transcript.Logger) *Handler {
	return &Handler{logger: logger}
}

// RegisterRoutes wires the transcript log routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/transcript/log", h.handleRead)
	r.Delete("/transcript/log", h.handleClear)
}

func (h *Handler) handleRead(w http.ResponseWriter, r *http.Request) {
	tail, err := h.logger.Tail(tailBytes)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to read transcript log")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"log": tail})
}

func (h *Handler) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := h.logger.Clear(); err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to clear transcript log")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
