package env

import (
	"os"
	"strconv"
	"strings"
)

// Prefix namespaces every variable the service reads.
const Prefix = "ARTISAN_"

// Get returns the value of key, trying the prefixed name first. Blank values
// fall through to fallback.
func Get(key, fallback string) string {
	for _, name := range names(key) {
		if val := strings.TrimSpace(os.Getenv(name)); val != "" {
			return val
		}
	}
	return fallback
}

// Bool parses key as a boolean. Unparseable values yield fallback.
func Bool(key string, fallback bool) bool {
	raw := Get(key, "")
	if raw == "" {
		return fallback
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return val
}

func names(key string) []string {
	if strings.HasPrefix(key, Prefix) {
		return []string{key}
	}
	return []string{Prefix + key, key}
}
