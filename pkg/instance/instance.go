package instance

import "os"

var idEnvVars = []string{"FOODRESCUE_INSTANCE_ID", "DYNO"}

// GetID identifies the running process in logs: an explicit instance id, the
// platform dyno name, the hostname, or "local".
func GetID() string {
	for _, key := range idEnvVars {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
