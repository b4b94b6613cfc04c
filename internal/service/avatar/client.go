// Package avatar wraps the remote avatar conversation API: conversation
// lifecycle plus the echo broadcast that makes the avatar speak exact text.
package avatar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/quietriver/avatar-stage/backend/internal/model/conversation"
	"github.com/quietriver/avatar-stage/backend/internal/model/fault"
)

const (
	// DefaultBaseURL is the public avatar API host.
	DefaultBaseURL = "https://tavusapi.com"

	defaultCreateTimeout = 30 * time.Second
	defaultEndTimeout    = 15 * time.Second
	defaultSpeakTimeout  = 30 * time.Second

	// Error bodies are truncated before they reach user-visible messages.
	maxErrorBody = 512
)

// Config carries the credentials and endpoints for the avatar API.
type Config struct {
	APIKey    string
	PersonaID string
	ReplicaID string

	// BaseURL hosts the /v2/conversations routes. InteractionsURL defaults
	// to BaseURL + "/v2/interactions/broadcast" when empty.
	BaseURL         string
	InteractionsURL string

	CreateTimeout time.Duration
	EndTimeout    time.Duration
	SpeakTimeout  time.Duration
}

// Client is a thin typed HTTP client for the avatar API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	now        func() time.Time
}

// NewClient builds a client, filling endpoint and timeout defaults.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.InteractionsURL == "" {
		cfg.InteractionsURL = cfg.BaseURL + "/v2/interactions/broadcast"
	}
	if cfg.CreateTimeout <= 0 {
		cfg.CreateTimeout = defaultCreateTimeout
	}
	if cfg.EndTimeout <= 0 {
		cfg.EndTimeout = defaultEndTimeout
	}
	if cfg.SpeakTimeout <= 0 {
		cfg.SpeakTimeout = defaultSpeakTimeout
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		now:        time.Now,
	}
}

type createRequest struct {
	PersonaID        string `json:"persona_id"`
	ReplicaID        string `json:"replica_id"`
	ConversationName string `json:"conversation_name"`
}

type createResponse struct {
	ConversationID  string `json:"conversation_id"`
	ConversationURL string `json:"conversation_url"`
}

// CreateConversation opens a new avatar conversation and returns its
// identifier and embeddable room URL.
func (c *Client) CreateConversation(ctx context.Context) (conversation.AvatarSession, error) {
	const op = "avatar.create"

	payload := createRequest{
		PersonaID:        c.cfg.PersonaID,
		ReplicaID:        c.cfg.ReplicaID,
		ConversationName: "avatar-stage-" + c.now().UTC().Format("2006-01-02T15:04:05Z"),
	}

	body, err := c.post(ctx, op, c.cfg.BaseURL+"/v2/conversations", payload, c.cfg.CreateTimeout)
	if err != nil {
		return conversation.AvatarSession{}, err
	}

	var resp createResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return conversation.AvatarSession{}, fault.Wrap(fault.Remote, op, err)
	}
	if resp.ConversationID == "" || resp.ConversationURL == "" {
		return conversation.AvatarSession{}, fault.New(fault.Remote, op, "upstream response missing conversation_id or conversation_url")
	}

	return conversation.AvatarSession{
		ConversationID: resp.ConversationID,
		EmbedURL:       resp.ConversationURL,
	}, nil
}

// EndConversation closes a conversation. Callers treat this as cleanup and
// swallow the returned error; it is reported only so they can log it.
func (c *Client) EndConversation(ctx context.Context, conversationID string) error {
	const op = "avatar.end"
	url := fmt.Sprintf("%s/v2/conversations/%s/end", c.cfg.BaseURL, conversationID)
	_, err := c.post(ctx, op, url, struct{}{}, c.cfg.EndTimeout)
	return err
}

type echoRequest struct {
	MessageType    string         `json:"message_type"`
	EventType      string         `json:"event_type"`
	ConversationID string         `json:"conversation_id"`
	Properties     echoProperties `json:"properties"`
}

type echoProperties struct {
	Text string `json:"text"`
}

// Speak broadcasts a conversation.echo event instructing the avatar to
// vocalize the exact text.
func (c *Client) Speak(ctx context.Context, conversationID, text string) error {
	const op = "avatar.speak"

	payload := echoRequest{
		MessageType:    "conversation",
		EventType:      "conversation.echo",
		ConversationID: conversationID,
		Properties:     echoProperties{Text: text},
	}

	_, err := c.post(ctx, op, c.cfg.InteractionsURL, payload, c.cfg.SpeakTimeout)
	return err
}

// post sends one JSON request and returns the body, classifying any non-2xx
// status or transport failure into the shared taxonomy.
func (c *Client) post(ctx context.Context, op, url string, payload any, timeout time.Duration) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fault.Wrap(fault.Remote, op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fault.Wrap(fault.Remote, op, err)
	}
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fault.Wrap(fault.Remote, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fault.Wrap(fault.Remote, op, err)
	}

	if resp.StatusCode >= 400 {
		detail := strings.TrimSpace(string(body))
		if len(detail) > maxErrorBody {
			detail = detail[:maxErrorBody]
		}
		return nil, fault.FromStatus(op, resp.StatusCode, detail)
	}

	return body, nil
}
