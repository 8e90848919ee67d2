package env

import (
	"os"
	"strings"
)

// Get returns the trimmed value of key, or fallback when it is unset or blank.
func Get(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

// ListenAddr prefers the platform-assigned PORT over the configured one.
func ListenAddr(configuredPort string) string {
	return ":" + strings.TrimPrefix(Get("PORT", configuredPort), ":")
}

// InstanceID names the running process in startup logs. The platform
// variables are checked in order: Heroku dyno, Cloud Run revision, host.
func InstanceID() string {
	for _, key := range []string{"DYNO", "K_REVISION", "HOSTNAME"} {
		if v := Get(key, ""); v != "" {
			return v
		}
	}
	return "local"
}
