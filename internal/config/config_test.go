package config_test

import (
	"testing"
	"time"

	"github.com/quietriver/avatar-stage/backend/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("OPENAI_CHAT_MODEL", "")
	t.Setenv("OPENAI_ASR_MODEL", "")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected default addr: %s", cfg.Server.Addr)
	}
	if cfg.OpenAI.ChatModel != "gpt-4o-mini" {
		t.Fatalf("unexpected default chat model: %s", cfg.OpenAI.ChatModel)
	}
	if cfg.OpenAI.ASRModel != "whisper-1" {
		t.Fatalf("unexpected default asr model: %s", cfg.OpenAI.ASRModel)
	}
}

func TestLoadPortVariants(t *testing.T) {
	t.Setenv("PORT", "9000")
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Server.Addr != ":9000" {
		t.Fatalf("unexpected addr: %s", cfg.Server.Addr)
	}

	t.Setenv("PORT", "127.0.0.1:9000")
	cfg, err = config.Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Fatalf("unexpected addr: %s", cfg.Server.Addr)
	}
}

func TestLoadInvalidPort(t *testing.T) {
	t.Setenv("PORT", "9 000")
	if _, err := config.Load(); err == nil {
		t.Fatal("expected error for invalid PORT")
	}
}

func TestAvatarEnabled(t *testing.T) {
	t.Setenv("AVATAR_API_KEY", "")
	t.Setenv("AVATAR_PERSONA_ID", "")
	t.Setenv("AVATAR_REPLICA_ID", "")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Avatar.Enabled() {
		t.Fatal("avatar should be disabled without credentials")
	}

	t.Setenv("AVATAR_API_KEY", "key")
	t.Setenv("AVATAR_PERSONA_ID", "p1")
	t.Setenv("AVATAR_REPLICA_ID", "r1")
	cfg, err = config.Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if !cfg.Avatar.Enabled() {
		t.Fatal("avatar should be enabled with credentials")
	}
}

func TestTimeoutParsing(t *testing.T) {
	t.Setenv("AVATAR_CREATE_TIMEOUT", "45")
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}
	if cfg.Avatar.CreateTimeout != 45*time.Second {
		t.Fatalf("unexpected timeout: %v", cfg.Avatar.CreateTimeout)
	}

	t.Setenv("AVATAR_CREATE_TIMEOUT", "-1")
	if _, err := config.Load(); err == nil {
		t.Fatal("expected error for negative timeout")
	}
}
