// Package config loads broker configuration from the environment.
package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds every environment-derived setting the broker needs.
type Config struct {
	ListenAddr        string
	ForwardingUser    string
	OpenedPorts       []int
	KeysFolder        string
	SSHDPath          string
	AuthorizedKeysDir string
	LogLevel          string
	LogFormat         string

	WebsocketRateLimit float64
	WebsocketBurst     int
}

// Load reads process environment variables, optionally layered on top of a
// local .env file, and returns a validated Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port := getEnvAsInt("SERVER_PORT", 7856)

	openedPorts, err := parsePortList(getEnv("OPENED_PORTS", ""))
	if err != nil {
		return nil, fmt.Errorf("config: OPENED_PORTS: %w", err)
	}
	if len(openedPorts) == 0 {
		return nil, fmt.Errorf("config: OPENED_PORTS is required and must be non-empty")
	}

	forwardingUser := getEnv("FORWARDING_USER", "")
	if forwardingUser == "" {
		return nil, fmt.Errorf("config: FORWARDING_USER is required")
	}

	cfg := &Config{
		ListenAddr:         fmt.Sprintf(":%d", port),
		ForwardingUser:     forwardingUser,
		OpenedPorts:        openedPorts,
		KeysFolder:         getEnv("KEYS_FOLDER", "keys"),
		SSHDPath:           getEnv("SSHD_PATH", "/usr/bin/sshd"),
		AuthorizedKeysDir:  getEnv("AUTHORIZED_KEYS_DIR", "/tmp/authorized_keys"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
		WebsocketRateLimit: getEnvAsFloat("WS_RATE_LIMIT", 5),
		WebsocketBurst:     getEnvAsInt("WS_RATE_BURST", 10),
	}

	return cfg, nil
}

// MaxOpenedPort returns the largest configured sshd port; local ports start
// strictly above it.
func (c *Config) MaxOpenedPort() int {
	return c.OpenedPorts[len(c.OpenedPorts)-1]
}

func parsePortList(raw string) ([]int, error) {
	if raw == "" {
		return nil, nil
	}
	seen := map[int]bool{}
	var ports []int
	for _, field := range strings.Split(raw, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		p, err := strconv.Atoi(field)
		if err != nil {
			return nil, fmt.Errorf("invalid port %q: %w", field, err)
		}
		if p < 1 || p > 65535 {
			return nil, fmt.Errorf("port %d out of range", p)
		}
		if !seen[p] {
			seen[p] = true
			ports = append(ports, p)
		}
	}
	sort.Ints(ports)
	return ports, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}
