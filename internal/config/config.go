package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	UserID      string
	Token       string
	APIBaseURL  string
	SignalURL   string
	STUNServers []string
	Debug       bool
}

// Load reads configuration from a .env file (if present) and environment
// variables. Environment variables take precedence over .env values.
func Load() (*Config, error) {
	// godotenv.Load does not overwrite existing env vars
	_ = godotenv.Load()

	userID := os.Getenv("CALLCORE_USER_ID")
	if userID == "" {
		return nil, fmt.Errorf("CALLCORE_USER_ID environment variable is required")
	}

	token := os.Getenv("CALLCORE_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("CALLCORE_TOKEN environment variable is required")
	}

	apiURL := os.Getenv("CALLCORE_API_URL")
	if apiURL == "" {
		apiURL = "https://api.chatline.example/v1"
	}

	signalURL := os.Getenv("CALLCORE_SIGNAL_URL")
	if signalURL == "" {
		signalURL = "wss://signal.chatline.example/ws"
	}

	var stun []string
	if raw := os.Getenv("CALLCORE_STUN"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				stun = append(stun, s)
			}
		}
	}

	return &Config{
		UserID:      userID,
		Token:       token,
		APIBaseURL:  apiURL,
		SignalURL:   signalURL,
		STUNServers: stun,
		Debug:       os.Getenv("CALLCORE_DEBUG") != "",
	}, nil
}
