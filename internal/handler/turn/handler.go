package turn

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/quietriver/avatar-stage/backend/internal/model/fault"
	"github.com/quietriver/avatar-stage/backend/internal/service/orchestrator"
	"github.com/quietriver/avatar-stage/backend/pkg/utils"
)

const maxUploadBytes = 32 << 20 // recorded clips are short; 32MB is generous

// Handler exposes conversational turns over HTTP.
type Handler struct {
	orch *orchestrator.Service
}

// New creates the turn handler.
func New(orch *orchestrator.Service) *Handler {
	return &Handler{orch: orch}
}

// RegisterRoutes wires the turn routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/session/{sessionID}/turns", h.handleTurn)
	r.Get("/session/{sessionID}/transcript", h.handleTranscript)
}

// handleTurn runs one conversational turn. The body is either a multipart
// form carrying an optional `audio` clip and an optional `text` field, or a
// JSON object with `text`.
func (h *Handler) handleTurn(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	typed, audio, filename, err := parseInput(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.orch.RunTurn(r.Context(), sessionID, typed, audio, filename)
	if err != nil {
		if fault.Is(err, fault.EmptyInput) {
			// Not an error: the user simply sent nothing.
			utils.RespondJSON(w, http.StatusOK, map[string]string{
				"status": "empty",
				"notice": "record audio or type a message",
			})
			return
		}
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, result)
}

func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	turns, err := h.orch.History(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"turns": turns})
}

// parseInput extracts the typed text and optional audio clip from the
// request body.
func parseInput(r *http.Request) (typed string, audio []byte, filename string, err error) {
	contentType := r.Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "application/json") {
		var payload struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			return "", nil, "", errors.New("invalid request body")
		}
		return payload.Text, nil, "", nil
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			// Plain form posts carry text only.
			if err := r.ParseForm(); err != nil {
				return "", nil, "", errors.New("invalid request body")
			}
			return r.FormValue("text"), nil, "", nil
		}
		return "", nil, "", errors.New("failed to parse multipart form: " + err.Error())
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	typed = r.FormValue("text")

	file, header, err := r.FormFile("audio")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return typed, nil, "", nil
		}
		return "", nil, "", errors.New("failed to read audio upload")
	}
	defer file.Close()

	audio, err = io.ReadAll(file)
	if err != nil {
		return "", nil, "", errors.New("failed to read audio upload")
	}

	return typed, audio, header.Filename, nil
}

func statusFor(err error) int {
	if errors.Is(err, orchestrator.ErrSessionNotFound) {
		return http.StatusNotFound
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
