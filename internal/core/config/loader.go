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

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Kafka.CommandsTopic == "" {
		cfg.Kafka.CommandsTopic = "recoverer.commands"
	}
	if cfg.Kafka.EventsTopic == "" {
		cfg.Kafka.EventsTopic = "recoverer.events"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "recoverer"
	}
	if cfg.Engine.ArchiveBatchSize == 0 {
		cfg.Engine.ArchiveBatchSize = 1000
	}
	if cfg.Engine.RetryPageSize == 0 {
		cfg.Engine.RetryPageSize = 1000
	}
	if cfg.Engine.RetryDelay == 0 {
		cfg.Engine.RetryDelay = 30 * time.Second
	}
	if cfg.Engine.StallThreshold == 0 {
		cfg.Engine.StallThreshold = 4
	}
	if cfg.Engine.ReclassifyBatchSize == 0 {
		cfg.Engine.ReclassifyBatchSize = 1000
	}
	if cfg.Engine.ReclassifyParallelism == 0 {
		cfg.Engine.ReclassifyParallelism = 8
	}
	if cfg.Engine.PollInterval == 0 {
		cfg.Engine.PollInterval = time.Second
	}
}
