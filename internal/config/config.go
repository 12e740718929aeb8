package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     int
	LogLevel string

	LLMProvider   string
	GoogleAPIKey  string
	Model         string
	GeminiBaseURL string
	TTSModel      string
	TTSVoice      string
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	AnthropicKey  string
	ClaudeModel   string
	FlowServerURL string

	DatabaseURL   string
	NatsURL       string
	NatsToken     string
	SlackBotToken string
	SlackChannel  string

	APIToken      string
	RequireSignIn bool
	Greeting      string
	DefaultTopic  string
	SessionIdle   time.Duration

	UploadDir string
	PublicURL string
	S3        S3
}

type S3 struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string
}

// Enabled reports whether uploads go to a bucket instead of local disk.
func (s S3) Enabled() bool { return s.Bucket != "" }

func Load() Config {
	port := envInt("MACHA_PORT", 8760)
	return Config{
		Port:     port,
		LogLevel: envStr("LOG_LEVEL", "info"),

		LLMProvider:   strings.ToLower(envStr("MACHA_LLM_PROVIDER", "gemini")),
		GoogleAPIKey:  envStr("GOOGLE_API_KEY", ""),
		Model:         envStr("MACHA_MODEL", "gemini-2.0-flash"),
		GeminiBaseURL: envStr("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		TTSModel:      envStr("MACHA_TTS_MODEL", "gemini-2.5-flash-preview-tts"),
		TTSVoice:      envStr("MACHA_TTS_VOICE", "Algenib"),
		OpenAIAPIKey:  envStr("OPENAI_API_KEY", ""),
		OpenAIModel:   envStr("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL: envStr("OPENAI_BASE_URL", ""),
		AnthropicKey:  envStr("ANTHROPIC_API_KEY", ""),
		ClaudeModel:   envStr("ANTHROPIC_MODEL", "claude-sonnet-4-20250514"),
		FlowServerURL: envStr("MACHA_FLOW_SERVER_URL", ""),

		DatabaseURL:   envStr("DATABASE_URL", ""),
		NatsURL:       envStr("NATS_URL", ""),
		NatsToken:     envStr("NATS_TOKEN", ""),
		SlackBotToken: envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel:  envStr("SLACK_OPS_CHANNEL", ""),

		APIToken:      envStr("MACHA_API_TOKEN", ""),
		RequireSignIn: envBool("MACHA_REQUIRE_SIGN_IN", false),
		Greeting:      envStr("MACHA_GREETING", ""),
		DefaultTopic:  envStr("MACHA_DEFAULT_TOPIC", "tech"),
		SessionIdle:   time.Duration(envInt("MACHA_SESSION_IDLE_MINUTES", 60)) * time.Minute,

		UploadDir: envStr("MACHA_UPLOAD_DIR", "./data"),
		PublicURL: envStr("MACHA_PUBLIC_URL", fmt.Sprintf("http://localhost:%d", port)),
		S3: S3{
			Bucket:          envStr("S3_BUCKET", ""),
			Region:          envStr("S3_REGION", "us-east-1"),
			Endpoint:        envStr("S3_ENDPOINT", ""),
			AccessKeyID:     envStr("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: envStr("S3_SECRET_ACCESS_KEY", ""),
			PublicBaseURL:   envStr("S3_PUBLIC_BASE_URL", ""),
		},
	}
}

// LoadDotEnv loads variables from the given files (default .env) without
// overriding ones already set. A missing file is not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
