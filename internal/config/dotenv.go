package config

import "github.com/joho/godotenv"

// loadDotEnv loads a .env file if one exists, for local development —
// the teacher's own config.Load() convention.
func loadDotEnv() error {
	return godotenv.Load()
}
