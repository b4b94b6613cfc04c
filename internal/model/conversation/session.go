package conversation

import "time"

// Session captures the transient per-tab state owned by one user: the
// current avatar conversation (if any) and the recorded permission probe.
type Session struct {
	ID          string          `json:"id"`
	CreatedAt   time.Time       `json:"createdAt"`
	Avatar      AvatarSession   `json:"avatar"`
	Permissions PermissionState `json:"permissions"`
}

// AvatarSession identifies a live avatar conversation on the remote side.
// The zero value means no conversation is active.
type AvatarSession struct {
	ConversationID string `json:"conversationId,omitempty"`
	EmbedURL       string `json:"embedUrl,omitempty"`
}

// Active reports whether an avatar conversation is currently open.
func (a AvatarSession) Active() bool {
	return a.ConversationID != ""
}

// PermissionState records the outcome of the client-side media probe.
// Checked latches once the client has reported a result for this session.
type PermissionState struct {
	Microphone bool `json:"microphone"`
	Camera     bool `json:"camera"`
	Checked    bool `json:"checked"`
}
