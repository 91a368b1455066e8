package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadDotEnv exports the variables of the .env files found in dirs. Variables already
// present in the process environment win, and so do earlier directories. Missing files
// are skipped. It returns the files that were loaded.
func LoadDotEnv(dirs ...string) ([]string, error) {
	var loaded []string
	for _, dir := range dirs {
		envPath := filepath.Join(dir, ".env")
		data, err := os.ReadFile(envPath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return loaded, fmt.Errorf("failed to read .env file %s: %w", envPath, err)
		}

		envMap, err := godotenv.Unmarshal(string(data))
		if err != nil {
			return loaded, fmt.Errorf("failed to parse .env file %s: %w", envPath, err)
		}

		for key, value := range envMap {
			if _, exists := os.LookupEnv(key); exists {
				continue
			}
			if err := os.Setenv(key, value); err != nil {
				return loaded, fmt.Errorf("failed to set %s from %s: %w", key, envPath, err)
			}
		}
		loaded = append(loaded, envPath)
	}
	return loaded, nil
}
