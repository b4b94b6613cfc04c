package turn_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/quietriver/avatar-stage/backend/internal/handler/turn"
	"github.com/quietriver/avatar-stage/backend/internal/model/conversation"
	"github.com/quietriver/avatar-stage/backend/internal/model/fault"
	"github.com/quietriver/avatar-stage/backend/internal/service/orchestrator"
)

type fakeSpeech struct {
	text string
	err  error
}

func (f *fakeSpeech) Transcribe(_ context.Context, _ []byte, _ string) (string, error) {
	return f.text, f.err
}

type fakeDialogue struct {
	reply string
	err   error
}

func (f *fakeDialogue) Reply(_ context.Context, prompt string, _ []conversation.Turn) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.reply != "" {
		return f.reply, nil
	}
	return "echo: " + prompt, nil
}

func setup(t *testing.T, deps orchestrator.Deps) (*chi.Mux, string) {
	t.Helper()
	orch := orchestrator.NewService(deps)
	session, err := orch.CreateSession(context.Background())
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	r := chi.NewRouter()
	turn.New(orch).RegisterRoutes(r)
	return r, session.ID
}

func postJSON(r *chi.Mux, path, text string) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(map[string]string{"text": text})
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestTypedTurn(t *testing.T) {
	r, id := setup(t, orchestrator.Deps{Dialogue: &fakeDialogue{reply: "Hi there!"}})

	resp := postJSON(r, "/session/"+id+"/turns", "hello")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var result orchestrator.TurnResult
	if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if result.User == nil || result.User.Text != "hello" {
		t.Fatalf("unexpected user turn: %+v", result.User)
	}
	if result.Assistant == nil || result.Assistant.Text != "Hi there!" {
		t.Fatalf("unexpected assistant turn: %+v", result.Assistant)
	}
	if result.Spoke {
		t.Fatal("no avatar is active, nothing should have been spoken")
	}
	if result.Warning == "" {
		t.Fatal("expected a warning about the missing avatar session")
	}
}

func TestEmptyTurn(t *testing.T) {
	r, id := setup(t, orchestrator.Deps{Dialogue: &fakeDialogue{}})

	resp := postJSON(r, "/session/"+id+"/turns", "   ")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body map[string]string
	_ = json.Unmarshal(resp.Body.Bytes(), &body)
	if body["status"] != "empty" || body["notice"] == "" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestMultipartAudioTurn(t *testing.T) {
	speech := &fakeSpeech{text: "what time is it"}
	r, id := setup(t, orchestrator.Deps{Speech: speech, Dialogue: &fakeDialogue{}})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("audio", "clip.webm")
	_, _ = fw.Write([]byte("fake-audio-bytes"))
	_ = mw.WriteField("text", "typed fallback")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/session/"+id+"/turns", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var result orchestrator.TurnResult
	_ = json.Unmarshal(resp.Body.Bytes(), &result)
	if result.User == nil || result.User.Text != "what time is it" {
		t.Fatalf("transcribed audio should win over typed text, got %+v", result.User)
	}
}

func TestQuotaFaultStatus(t *testing.T) {
	r, id := setup(t, orchestrator.Deps{
		Dialogue: &fakeDialogue{err: fault.New(fault.Quota, "dialogue.reply", "rate limited")},
	})

	resp := postJSON(r, "/session/"+id+"/turns", "hello")
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.Code)
	}
}

func TestRemoteFaultStatus(t *testing.T) {
	r, id := setup(t, orchestrator.Deps{
		Dialogue: &fakeDialogue{err: fault.New(fault.Remote, "dialogue.reply", "upstream down")},
	})

	resp := postJSON(r, "/session/"+id+"/turns", "hello")
	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.Code)
	}
}

func TestTurnUnknownSession(t *testing.T) {
	r, _ := setup(t, orchestrator.Deps{Dialogue: &fakeDialogue{}})

	resp := postJSON(r, "/session/missing/turns", "hello")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestTranscriptEndpoint(t *testing.T) {
	r, id := setup(t, orchestrator.Deps{Dialogue: &fakeDialogue{}})

	for _, text := range []string{"first", "second"} {
		if resp := postJSON(r, "/session/"+id+"/turns", text); resp.Code != http.StatusOK {
			t.Fatalf("turn %q failed: %d", text, resp.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/session/"+id+"/transcript", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body struct {
		Turns []conversation.Turn `json:"turns"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if len(body.Turns) != 4 {
		t.Fatalf("expected 4 turns, got %d", len(body.Turns))
	}
	want := []string{"first", "echo: first", "second", "echo: second"}
	for i, turn := range body.Turns {
		if turn.Text != want[i] {
			t.Fatalf("turn %d: got %q, want %q", i, turn.Text, want[i])
		}
	}
	if body.Turns[0].Role != conversation.RoleUser {
		t.Fatalf("first turn should be the user, got %q", body.Turns[0].Role)
	}
}
