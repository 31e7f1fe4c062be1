package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port          int
	DatabaseURL   string
	NatsURL       string
	NatsToken     string
	LogLevel      string
	AIGatewayKey  string
	ChatModel     string
	OpenAIAPIKey  string
	VisionModel   string
	ReplyDelayMin int // milliseconds
	ReplyDelayMax int // milliseconds
}

func Load() Config {
	return Config{
		Port:          envInt("QUESTD_PORT", 8470),
		DatabaseURL:   envStr("DATABASE_URL", ""),
		NatsURL:       envStr("NATS_URL", "nats://localhost:4222"),
		NatsToken:     envStr("NATS_TOKEN", ""),
		LogLevel:      envStr("LOG_LEVEL", "info"),
		AIGatewayKey:  envStr("AI_GATEWAY_KEY", ""),
		ChatModel:     envStr("QUESTD_CHAT_MODEL", "google/gemini-2.5-flash"),
		OpenAIAPIKey:  envStr("OPENAI_API_KEY", ""),
		VisionModel:   envStr("QUESTD_VISION_MODEL", "gpt-4o"),
		ReplyDelayMin: envInt("QUESTD_REPLY_DELAY_MIN_MS", 3000),
		ReplyDelayMax: envInt("QUESTD_REPLY_DELAY_MAX_MS", 5000),
	}
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
