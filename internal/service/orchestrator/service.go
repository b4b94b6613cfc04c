// Package orchestrator owns the per-tab session state and sequences one
// conversational turn across the speech, dialogue and avatar adapters.
package orchestrator

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quietriver/avatar-stage/backend/internal/model/conversation"
	"github.com/quietriver/avatar-stage/backend/internal/model/fault"
)

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrAvatarNotConfigured = errors.New("avatar service not configured")
	ErrMicrophoneDenied    = errors.New("microphone permission denied")
)

// AvatarClient is the conversation-session adapter contract.
type AvatarClient interface {
	CreateConversation(ctx context.Context) (conversation.AvatarSession, error)
	EndConversation(ctx context.Context, conversationID string) error
	Speak(ctx context.Context, conversationID, text string) error
}

// Transcriber turns one finite audio clip into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// Responder produces the assistant reply for a prompt plus prior history.
type Responder interface {
	Reply(ctx context.Context, prompt string, history []conversation.Turn) (string, error)
}

// CredentialValidator optionally preflights dialogue credentials on start.
type CredentialValidator interface {
	ValidateCredentials(ctx context.Context) error
}

// TranscriptLog durably records turns; failures never block a turn.
type TranscriptLog interface {
	Append(role, text string) error
}

// Deps collects the collaborators. Avatar, Speech and Validator may be nil
// when the corresponding credentials are not configured.
type Deps struct {
	Avatar     AvatarClient
	Speech     Transcriber
	Dialogue   Responder
	Transcript TranscriptLog
	Validator  CredentialValidator
}

// TurnResult reports the outcome of one conversational turn. Warning carries
// user-visible notices (failed speak, no active avatar) that do not abort
// the turn.
type TurnResult struct {
	User      *conversation.Turn `json:"user,omitempty"`
	Assistant *conversation.Turn `json:"assistant,omitempty"`
	Spoke     bool               `json:"spoke"`
	Warning   string             `json:"warning,omitempty"`
}

type state struct {
	session conversation.Session
	history []conversation.Turn
}

// Service encapsulates session state management and turn sequencing.
type Service struct {
	deps Deps

	mu          sync.RWMutex
	sessions    map[string]*state
	subscribers map[string]map[chan conversation.Turn]struct{}
}

// NewService bootstraps the in-memory orchestrator.
func NewService(deps Deps) *Service {
	return &Service{
		deps:        deps,
		sessions:    make(map[string]*state),
		subscribers: make(map[string]map[chan conversation.Turn]struct{}),
	}
}

// CreateSession provisions a new per-tab session.
func (s *Service) CreateSession(_ context.Context) (conversation.Session, error) {
	session := conversation.Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.sessions[session.ID] = &state{
		session: session,
		history: make([]conversation.Turn, 0, 16),
	}
	s.mu.Unlock()

	return session, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (conversation.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return conversation.Session{}, ErrSessionNotFound
	}
	return st.session, nil
}

// History returns a copy of the stored turns in insertion order.
func (s *Service) History(_ context.Context, sessionID string) ([]conversation.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	copied := make([]conversation.Turn, len(st.history))
	copy(copied, st.history)
	return copied, nil
}

// SetPermissions records the client-side media probe result. The checked
// flag latches; re-running the probe overwrites the booleans.
func (s *Service) SetPermissions(_ context.Context, sessionID string, microphone, camera bool) (conversation.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return conversation.Session{}, ErrSessionNotFound
	}
	st.session.Permissions = conversation.PermissionState{
		Microphone: microphone,
		Camera:     camera,
		Checked:    true,
	}
	return st.session, nil
}

// StartAvatar opens a new avatar conversation for the session, ending any
// previous one first (best-effort) so at most one is active.
func (s *Service) StartAvatar(ctx context.Context, sessionID string) (conversation.Session, error) {
	if s.deps.Avatar == nil {
		return conversation.Session{}, ErrAvatarNotConfigured
	}

	s.mu.Lock()
	st, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return conversation.Session{}, ErrSessionNotFound
	}
	perms := st.session.Permissions
	prior := st.session.Avatar
	s.mu.Unlock()

	if perms.Checked && !perms.Microphone {
		return conversation.Session{}, ErrMicrophoneDenied
	}

	if s.deps.Validator != nil {
		if err := s.deps.Validator.ValidateCredentials(ctx); err != nil {
			return conversation.Session{}, err
		}
	}

	if prior.Active() {
		s.endRemote(ctx, prior.ConversationID)
		s.setAvatar(sessionID, conversation.AvatarSession{})
	}

	created, err := s.deps.Avatar.CreateConversation(ctx)
	if err != nil {
		return conversation.Session{}, err
	}

	session, ok := s.setAvatar(sessionID, created)
	if !ok {
		// Session vanished while we talked to the remote; clean up.
		s.endRemote(ctx, created.ConversationID)
		return conversation.Session{}, ErrSessionNotFound
	}

	log.Printf("[avatar] session=%s conversation=%s started", sessionID, created.ConversationID)
	return session, nil
}

// EndAvatar clears the local avatar state unconditionally; the remote end
// call is best-effort cleanup.
func (s *Service) EndAvatar(ctx context.Context, sessionID string) (conversation.Session, error) {
	s.mu.Lock()
	st, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return conversation.Session{}, ErrSessionNotFound
	}
	prior := st.session.Avatar
	st.session.Avatar = conversation.AvatarSession{}
	session := st.session
	s.mu.Unlock()

	if prior.Active() {
		s.endRemote(ctx, prior.ConversationID)
		log.Printf("[avatar] session=%s conversation=%s ended", sessionID, prior.ConversationID)
	}

	return session, nil
}

// RunTurn executes one conversational turn: resolve input, append the user
// turn, fetch the assistant reply, then have the avatar speak it. Completed
// steps are never rolled back when a later step fails.
func (s *Service) RunTurn(ctx context.Context, sessionID, typed string, audio []byte, filename string) (TurnResult, error) {
	const op = "turn"

	s.mu.RLock()
	st, ok := s.sessions[sessionID]
	var avatarState conversation.AvatarSession
	if ok {
		avatarState = st.session.Avatar
	}
	s.mu.RUnlock()
	if !ok {
		return TurnResult{}, ErrSessionNotFound
	}

	text := strings.TrimSpace(typed)
	if len(audio) > 0 {
		if s.deps.Speech == nil {
			return TurnResult{}, fault.New(fault.Remote, "speech.transcribe", "speech service not configured")
		}
		transcribed, err := s.deps.Speech.Transcribe(ctx, audio, filename)
		if err != nil {
			return TurnResult{}, err
		}
		// Transcribed speech wins over the typed fallback; an empty
		// transcript falls through to it.
		if t := strings.TrimSpace(transcribed); t != "" {
			text = t
		}
	}
	if text == "" {
		return TurnResult{}, fault.New(fault.EmptyInput, op, "record audio or type a message")
	}

	if s.deps.Dialogue == nil {
		return TurnResult{}, fault.New(fault.Remote, "dialogue.reply", "dialogue service not configured")
	}

	prior, err := s.History(ctx, sessionID)
	if err != nil {
		return TurnResult{}, err
	}

	userTurn, err := s.appendTurn(sessionID, conversation.RoleUser, text)
	if err != nil {
		return TurnResult{}, err
	}

	// The model sees the prior turns plus the new prompt, never the freshly
	// appended user turn twice.
	reply, err := s.deps.Dialogue.Reply(ctx, text, prior)
	if err != nil {
		return TurnResult{User: &userTurn}, err
	}

	assistantTurn, err := s.appendTurn(sessionID, conversation.RoleAssistant, reply)
	if err != nil {
		return TurnResult{User: &userTurn}, err
	}

	result := TurnResult{User: &userTurn, Assistant: &assistantTurn}

	if avatarState.Active() {
		if err := s.deps.Avatar.Speak(ctx, avatarState.ConversationID, reply); err != nil {
			log.Printf("[turn] session=%s speak failed: %v", sessionID, err)
			result.Warning = err.Error()
		} else {
			result.Spoke = true
		}
	} else {
		result.Warning = "no active avatar session; the reply was not vocalized"
	}

	return result, nil
}

// Subscribe registers a live feed of appended turns for one session. The
// returned cancel func must be called when the consumer goes away.
func (s *Service) Subscribe(sessionID string) (<-chan conversation.Turn, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, nil, ErrSessionNotFound
	}

	ch := make(chan conversation.Turn, 16)
	subs, ok := s.subscribers[sessionID]
	if !ok {
		subs = make(map[chan conversation.Turn]struct{})
		s.subscribers[sessionID] = subs
	}
	subs[ch] = struct{}{}

	// The channel is deliberately left open after cancel; publishers only
	// ever see channels still present in the subscriber map.
	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if subs, ok := s.subscribers[sessionID]; ok {
			delete(subs, ch)
			if len(subs) == 0 {
				delete(s.subscribers, sessionID)
			}
		}
	}

	return ch, cancel, nil
}

// appendTurn stores one turn, mirrors it to the transcript log and notifies
// subscribers.
func (s *Service) appendTurn(sessionID, role, text string) (conversation.Turn, error) {
	turn := conversation.Turn{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	st, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return conversation.Turn{}, ErrSessionNotFound
	}
	st.history = append(st.history, turn)
	var fanout []chan conversation.Turn
	for ch := range s.subscribers[sessionID] {
		fanout = append(fanout, ch)
	}
	s.mu.Unlock()

	if s.deps.Transcript != nil {
		if err := s.deps.Transcript.Append(role, text); err != nil {
			log.Printf("[turn] session=%s transcript append failed: %v", sessionID, err)
		}
	}

	for _, ch := range fanout {
		select {
		case ch <- turn:
		default:
			// Slow consumers drop events rather than stall the turn.
		}
	}

	return turn, nil
}

// setAvatar swaps the avatar state and returns the updated session view.
func (s *Service) setAvatar(sessionID string, avatar conversation.AvatarSession) (conversation.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return conversation.Session{}, false
	}
	st.session.Avatar = avatar
	return st.session, true
}

// endRemote is best-effort cleanup; failures are logged and swallowed.
func (s *Service) endRemote(ctx context.Context, conversationID string) {
	if s.deps.Avatar == nil {
		return
	}
	if err := s.deps.Avatar.EndConversation(ctx, conversationID); err != nil {
		log.Printf("[avatar] end conversation=%s failed: %v", conversationID, err)
	}
}
