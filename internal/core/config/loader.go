package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	seen := make(map[string]bool)
	for i := range cfg.Queues {
		q := &cfg.Queues[i]
		if q.Name == "" {
			return nil, fmt.Errorf("queue %d has no name", i)
		}
		if seen[q.Name] {
			return nil, fmt.Errorf("duplicate queue name %q", q.Name)
		}
		seen[q.Name] = true

		if q.Workers == 0 {
			q.Workers = 1
		}
		if q.MaxRetries == 0 {
			q.MaxRetries = 3
		}
		if q.Backoff == 0 {
			q.Backoff = 2 * time.Second
		}
		if q.Timeout == 0 {
			q.Timeout = 5 * time.Second
		}
		if q.PollInterval == 0 {
			q.PollInterval = 1 * time.Second
		}
		if q.RedriveInterval == 0 {
			q.RedriveInterval = 30 * time.Second
		}
		if q.Breaker.FailureThreshold == 0 {
			q.Breaker.FailureThreshold = 5
		}
		if q.Breaker.Cooldown == 0 {
			q.Breaker.Cooldown = 30 * time.Second
		}
	}

	return &cfg, nil
}
