package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything the binaries read from the environment.
type Config struct {
	Addr          string        // seatsim listen address
	BackendURL    string        // backend base address for the client
	JWTSecret     string        // HS256 secret for the simulator
	EventID       string        // event the picker demo opens
	MaxSeats      int           // selection bound per booking
	ChurnInterval time.Duration // simulator seat churn; 0 disables
}

// Load reads config from the environment, with a .env file honored when
// present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Addr:          getEnv("SEATSIM_ADDR", ":8080"),
		BackendURL:    getEnv("BACKEND_URL", "http://localhost:8080"),
		JWTSecret:     getEnv("JWT_SECRET", "dev-secret"),
		EventID:       getEnv("EVENT_ID", "ev-rock-night"),
		MaxSeats:      getEnvInt("MAX_SEATS", 4),
		ChurnInterval: getEnvDuration("CHURN_INTERVAL", 2*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
