package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// EnvFiles are the .env files read at startup, in order.
func EnvFiles() []string {
	return []string{
		".env",
		filepath.Join(Dir(), ".env"),
	}
}

// LoadEnvFiles loads KEY=value lines into the process environment without
// overriding variables that are already set. It returns the keys it set.
func LoadEnvFiles(paths ...string) []string {
	var loaded []string
	for _, path := range paths {
		file, err := os.Open(path)
		if err != nil {
			continue
		}

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			line = strings.TrimPrefix(line, "export ")
			key, value, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			key = strings.TrimSpace(key)
			value = strings.Trim(strings.TrimSpace(value), "\"'")

			if key == "" || os.Getenv(key) != "" {
				continue
			}
			if err := os.Setenv(key, value); err == nil {
				loaded = append(loaded, key)
			}
		}
		file.Close()
	}
	return loaded
}
