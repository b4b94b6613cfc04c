package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates all service configuration.
type Config struct {
	Server     ServerConfig
	Avatar     AvatarConfig
	OpenAI     OpenAIConfig
	Transcript TranscriptConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	avatar, err := loadAvatarConfig()
	if err != nil {
		return nil, err
	}

	openAI, err := loadOpenAIConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:     server,
		Avatar:     avatar,
		OpenAI:     openAI,
		Transcript: TranscriptConfig{Path: strings.TrimSpace(os.Getenv("TRANSCRIPT_FILE"))},
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Allow passing ":8080" or "127.0.0.1:8080" directly.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AvatarConfig describes the avatar conversation API credentials.
type AvatarConfig struct {
	APIKey          string
	PersonaID       string
	ReplicaID       string
	BaseURL         string
	InteractionsURL string
	CreateTimeout   time.Duration
	EndTimeout      time.Duration
	SpeakTimeout    time.Duration
}

// Enabled reports whether the required avatar credentials are present.
func (c AvatarConfig) Enabled() bool {
	return c.APIKey != "" && c.PersonaID != "" && c.ReplicaID != ""
}

func loadAvatarConfig() (AvatarConfig, error) {
	createTimeout, err := parseOptionalSecondsEnv("AVATAR_CREATE_TIMEOUT")
	if err != nil {
		return AvatarConfig{}, err
	}
	endTimeout, err := parseOptionalSecondsEnv("AVATAR_END_TIMEOUT")
	if err != nil {
		return AvatarConfig{}, err
	}
	speakTimeout, err := parseOptionalSecondsEnv("AVATAR_SPEAK_TIMEOUT")
	if err != nil {
		return AvatarConfig{}, err
	}

	return AvatarConfig{
		APIKey:          strings.TrimSpace(os.Getenv("AVATAR_API_KEY")),
		PersonaID:       strings.TrimSpace(os.Getenv("AVATAR_PERSONA_ID")),
		ReplicaID:       strings.TrimSpace(os.Getenv("AVATAR_REPLICA_ID")),
		BaseURL:         getEnvOrDefault("AVATAR_BASE_URL", ""),
		InteractionsURL: getEnvOrDefault("AVATAR_INTERACTIONS_URL", ""),
		CreateTimeout:   createTimeout,
		EndTimeout:      endTimeout,
		SpeakTimeout:    speakTimeout,
	}, nil
}

// OpenAIConfig describes the speech and dialogue API credentials.
type OpenAIConfig struct {
	APIKey          string
	BaseURL         string
	ChatModel       string
	ASRModel        string
	SystemPrompt    string
	Temperature     float64
	ChatTimeout     time.Duration
	ASRTimeout      time.Duration
	ValidateOnStart bool
}

// Enabled reports whether the API key is present.
func (c OpenAIConfig) Enabled() bool {
	return c.APIKey != ""
}

func loadOpenAIConfig() (OpenAIConfig, error) {
	temperature, err := parseOptionalFloatEnv("OPENAI_TEMPERATURE")
	if err != nil {
		return OpenAIConfig{}, err
	}
	chatTimeout, err := parseOptionalSecondsEnv("OPENAI_CHAT_TIMEOUT")
	if err != nil {
		return OpenAIConfig{}, err
	}
	asrTimeout, err := parseOptionalSecondsEnv("OPENAI_ASR_TIMEOUT")
	if err != nil {
		return OpenAIConfig{}, err
	}
	validate, err := parseBoolEnv("OPENAI_VALIDATE_ON_START", false)
	if err != nil {
		return OpenAIConfig{}, err
	}

	cfg := OpenAIConfig{
		APIKey:          strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		BaseURL:         getEnvOrDefault("OPENAI_BASE_URL", ""),
		ChatModel:       getEnvOrDefault("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
		ASRModel:        getEnvOrDefault("OPENAI_ASR_MODEL", "whisper-1"),
		SystemPrompt:    getEnvOrDefault("OPENAI_SYSTEM_PROMPT", ""),
		ChatTimeout:     chatTimeout,
		ASRTimeout:      asrTimeout,
		ValidateOnStart: validate,
	}
	if temperature != nil {
		cfg.Temperature = *temperature
	}
	return cfg, nil
}

// TranscriptConfig describes the conversation log file.
type TranscriptConfig struct {
	Path string
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

// parseOptionalSecondsEnv reads an integer number of seconds; zero means
// "use the adapter default".
func parseOptionalSecondsEnv(key string) (time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return 0, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return 0, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, value)
	}
	return time.Duration(val) * time.Second, nil
}
