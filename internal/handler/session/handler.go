package session

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quietriver/avatar-stage/backend/internal/model/conversation"
	"github.com/quietriver/avatar-stage/backend/internal/model/fault"
	"github.com/quietriver/avatar-stage/backend/internal/service/orchestrator"
	"github.com/quietriver/avatar-stage/backend/pkg/utils"
)

// Handler exposes the session lifecycle over HTTP.
type Handler struct {
	orch *orchestrator.Service
}

// New creates the session handler.
func New(orch *orchestrator.Service) *Handler {
	return &Handler{orch: orch}
}

// RegisterRoutes wires the session routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session", h.handleCreate)
	r.Route("/session/{sessionID}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Post("/permissions", h.handlePermissions)
		r.Post("/start", h.handleStart)
		r.Post("/end", h.handleEnd)
	})
}

// View is the session shape returned to the page.
type View struct {
	ID          string                       `json:"id"`
	CreatedAt   time.Time                    `json:"createdAt"`
	Avatar      AvatarView                   `json:"avatar"`
	Permissions conversation.PermissionState `json:"permissions"`
}

// AvatarView flattens the avatar state with an explicit active flag.
type AvatarView struct {
	Active         bool   `json:"active"`
	ConversationID string `json:"conversationId,omitempty"`
	EmbedURL       string `json:"embedUrl,omitempty"`
}

// ViewOf converts a session into its HTTP representation.
func ViewOf(s conversation.Session) View {
	return View{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		Avatar: AvatarView{
			Active:         s.Avatar.Active(),
			ConversationID: s.Avatar.ConversationID,
			EmbedURL:       s.Avatar.EmbedURL,
		},
		Permissions: s.Permissions,
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	session, err := h.orch.CreateSession(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusCreated, ViewOf(session))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	session, err := h.orch.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, ViewOf(session))
}

func (h *Handler) handlePermissions(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Microphone bool `json:"microphone"`
		Camera     bool `json:"camera"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.orch.SetPermissions(r.Context(), chi.URLParam(r, "sessionID"), payload.Microphone, payload.Camera)
	if err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, ViewOf(session))
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	session, err := h.orch.StartAvatar(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusCreated, ViewOf(session))
}

func (h *Handler) handleEnd(w http.ResponseWriter, r *http.Request) {
	session, err := h.orch.EndAvatar(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, ViewOf(session))
}

// statusFor maps orchestrator and adapter errors to HTTP statuses. Upstream
// auth failures are our misconfiguration, not the caller's, hence 502.
func statusFor(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrMicrophoneDenied):
		return http.StatusForbidden
	case errors.Is(err, orchestrator.ErrAvatarNotConfigured):
		return http.StatusServiceUnavailable
	}

	switch fault.KindOf(err) {
	case fault.Quota:
		return http.StatusTooManyRequests
	case fault.EmptyInput:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}
