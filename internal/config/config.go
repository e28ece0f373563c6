package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBSource     string
	Port         string
	Env          string
	KafkaBrokers []string
}

// Load reads configuration from the environment, with a local .env file
// as a convenience for development. DBSource may be empty: the server
// then boots on the in-memory store.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment.
	_ = godotenv.Load()

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		brokers = strings.Split(raw, ",")
	}

	return &Config{
		DBSource:     os.Getenv("DB_SOURCE"),
		Port:         port,
		Env:          env,
		KafkaBrokers: brokers,
	}, nil
}
