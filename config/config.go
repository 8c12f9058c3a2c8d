package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config stores the application configuration. Everything comes from the
// environment (optionally via a .env file) at process start; nothing is
// reloaded afterwards.
type Config struct {
	TelegramToken string // Telegram Bot API token

	DownloadDir      string // base directory for per-session work dirs
	DefaultCoverPath string // fallback cover used when the cover download fails

	AudioReceiverURL  string // track search/download service
	MediaProcessorURL string // audio trimming / video muxing service
	DatabaseAPIURL    string // interaction-logging service

	OpsAddr string // listen address for the /health + /stats endpoint

	LogLevel      string
	LogFile       string
	LogMaxSize    int
	LogMaxBackups int
	LogMaxAge     int
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on existing environment variables and defaults.")
	}

	return &Config{
		TelegramToken: os.Getenv("TB_TOKEN"),

		DownloadDir:      getEnv("DOWNLOAD_FOLDER", "downloads"),
		DefaultCoverPath: getEnv("DEFAULT_COVER_PATH", "assets/vinyl_default.jpg"),

		AudioReceiverURL:  getEnv("AUDIO_RECEIVER_API_URL", "http://127.0.0.1:8001"),
		MediaProcessorURL: getEnv("MEDIA_PROCESSOR_API_URL", "http://127.0.0.1:8002"),
		DatabaseAPIURL:    getEnv("DATABASE_API_URL", "http://127.0.0.1:8003"),

		OpsAddr: getEnv("OPS_ADDR", ":8088"),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 3),
		LogMaxAge:     getEnvInt("LOG_MAX_AGE", 28),
	}
}
