// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr         string
	SnapshotPath string
	PostgresDSN  string
	UsersPath    string
	WeekMapID    string
}

func Load() Config {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	return Config{
		Addr:         getenv("LOBBY_ADDR", ":8080"),
		SnapshotPath: getenv("LOBBY_SNAPSHOT_FILE", "lobbies.json"),
		PostgresDSN:  os.Getenv("LOBBY_POSTGRES_DSN"),
		UsersPath:    getenv("LOBBY_USERS_FILE", "users.json"),
		WeekMapID:    os.Getenv("LOBBY_WEEK_MAP_ID"),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
