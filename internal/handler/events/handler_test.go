package events_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/quietriver/avatar-stage/backend/internal/handler/events"
	"github.com/quietriver/avatar-stage/backend/internal/model/conversation"
	"github.com/quietriver/avatar-stage/backend/internal/service/orchestrator"
)

type fakeDialogue struct{}

func (fakeDialogue) Reply(_ context.Context, prompt string, _ []conversation.Turn) (string, error) {
	return "echo: " + prompt, nil
}

func setup(t *testing.T) (*httptest.Server, *orchestrator.Service, string) {
	t.Helper()
	orch := orchestrator.NewService(orchestrator.Deps{Dialogue: fakeDialogue{}})
	session, err := orch.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	r := chi.NewRouter()
	events.New(orch).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, orch, session.ID
}

type message struct {
	Event string             `json:"event"`
	Turn  *conversation.Turn `json:"turn"`
}

func readMessage(t *testing.T, conn *websocket.Conn) message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read message: %v", err)
	}
	return msg
}

func TestWebSocketFeed(t *testing.T) {
	srv, orch, id := setup(t)

	wsURL := strings.Replace(srv.URL, "http", "ws", 1) + "/session/" + id + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if msg := readMessage(t, conn); msg.Event != "status" {
		t.Fatalf("expected status event first, got %q", msg.Event)
	}

	if _, err := orch.RunTurn(context.Background(), id, "hello", nil, ""); err != nil {
		t.Fatalf("run turn: %v", err)
	}

	user := readMessage(t, conn)
	if user.Event != "turn" || user.Turn == nil || user.Turn.Role != conversation.RoleUser || user.Turn.Text != "hello" {
		t.Fatalf("unexpected first turn event: %+v", user)
	}
	assistant := readMessage(t, conn)
	if assistant.Event != "turn" || assistant.Turn == nil || assistant.Turn.Role != conversation.RoleAssistant {
		t.Fatalf("unexpected second turn event: %+v", assistant)
	}
	if assistant.Turn.Text != "echo: hello" {
		t.Fatalf("unexpected assistant text %q", assistant.Turn.Text)
	}
}

func TestWebSocketUnknownSession(t *testing.T) {
	srv, _, _ := setup(t)

	resp, err := http.Get(srv.URL + "/session/missing/events")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestSSEFeed(t *testing.T) {
	srv, orch, id := setup(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/session/"+id+"/events/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("unexpected content type %q", ct)
	}

	if _, err := orch.RunTurn(context.Background(), id, "hello", nil, ""); err != nil {
		t.Fatalf("run turn: %v", err)
	}

	buf := make([]byte, 4096)
	var got string
	for !strings.Contains(got, `"role":"assistant"`) {
		n, err := resp.Body.Read(buf)
		if err != nil {
			t.Fatalf("read stream: %v (got %q so far)", err, got)
		}
		got += string(buf[:n])
	}
	if !strings.Contains(got, `"event":"status"`) {
		t.Fatalf("stream should open with a status chunk, got %q", got)
	}
	if !strings.Contains(got, "event: turn") {
		t.Fatalf("expected a named turn event, got %q", got)
	}
}
