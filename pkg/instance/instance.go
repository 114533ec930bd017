package instance

import "os"

// GetID identifies this process in logs. The platform dyno name wins over the
// explicit override; hostname is the last resort.
func GetID() string {
	for _, key := range []string{"DYNO", "ARTISAN_INSTANCE_ID"} {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
