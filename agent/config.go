package agent

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Usage is printed to stderr when the required positional arguments are
// missing. No network activity happens before argument validation.
const Usage = "usage: fleetwatch-agent <pc-id> <auth-token> <collector-url>"

// ErrUsage marks a configuration error caused by missing CLI arguments.
var ErrUsage = fmt.Errorf("missing required arguments")

// Config holds agent configuration. PCID and AuthToken are immutable for
// the lifetime of the process.
type Config struct {
	PCID              string
	AuthToken         string
	CollectorURL      string
	HeartbeatInterval time.Duration
	RequestTimeout    time.Duration
	LogPath           string
}

// LoadConfig builds configuration from the three required positional
// arguments plus optional environment overrides.
func LoadConfig(args []string) (*Config, error) {
	if len(args) < 3 {
		return nil, ErrUsage
	}

	pcID := strings.TrimSpace(args[0])
	token := strings.TrimSpace(args[1])
	url := strings.TrimRight(strings.TrimSpace(args[2]), "/")
	if pcID == "" || token == "" || url == "" {
		return nil, ErrUsage
	}

	cfg := &Config{
		PCID:              pcID,
		AuthToken:         token,
		CollectorURL:      url,
		HeartbeatInterval: time.Duration(getEnvInt("HEARTBEAT_INTERVAL_SEC", 3)) * time.Second,
		RequestTimeout:    time.Duration(getEnvInt("REQUEST_TIMEOUT_SEC", 10)) * time.Second,
		LogPath:           getEnv("AGENT_LOG_PATH", "fleetwatch-agent.log"),
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(value); err == nil && v > 0 {
			return v
		}
	}
	return defaultValue
}
