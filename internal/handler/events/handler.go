package events

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/quietriver/avatar-stage/backend/internal/model/conversation"
	"github.com/quietriver/avatar-stage/backend/internal/service/orchestrator"
	"github.com/quietriver/avatar-stage/backend/pkg/utils"
)

const heartbeatInterval = 15 * time.Second

// Handler pushes appended turns to the page over websocket or SSE.
type Handler struct {
	orch     *orchestrator.Service
	upgrader websocket.Upgrader
}

// New creates the events handler.
func New(orch *orchestrator.Service) *Handler {
	return &Handler{
		orch: orch,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes wires the event feed routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/session/{sessionID}/events", h.handleWebSocket)
	r.Get("/session/{sessionID}/events/stream", h.handleSSE)
}

type outboundEvent struct {
	Event string             `json:"event"`
	Turn  *conversation.Turn `json:"turn,omitempty"`
	Time  string             `json:"time,omitempty"`
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	turns, cancelSub, err := h.orch.Subscribe(sessionID)
	if err != nil {
		if errors.Is(err, orchestrator.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, err.Error())
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer cancelSub()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[events] session=%s upgrade failed: %v", sessionID, err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Drain the read side to notice the peer going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(outboundEvent{Event: "status"}); err != nil {
		return
	}

	log.Printf("[events] session=%s websocket feed opened", sessionID)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[events] session=%s websocket feed closed", sessionID)
			return
		case turn := <-turns:
			if err := conn.WriteJSON(outboundEvent{Event: "turn", Turn: &turn}); err != nil {
				return
			}
		}
	}
}

func (h *Handler) handleSSE(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	turns, cancelSub, err := h.orch.Subscribe(sessionID)
	if err != nil {
		if errors.Is(err, orchestrator.ErrSessionNotFound) {
			utils.RespondError(w, http.StatusNotFound, err.Error())
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer cancelSub()

	utils.SetupSSEHeaders(w)
	utils.SendSSEChunk(w, flusher, outboundEvent{Event: "status"})

	ctx := r.Context()
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	log.Printf("[events] session=%s sse feed opened", sessionID)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[events] session=%s sse feed closed", sessionID)
			return
		case t := <-ticker.C:
			utils.SendSSEChunk(w, flusher, outboundEvent{
				Event: "heartbeat",
				Time:  t.UTC().Format(time.RFC3339),
			})
		case turn := <-turns:
			utils.SendSSEEvent(w, flusher, "turn", turn)
		}
	}
}
