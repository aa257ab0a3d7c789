package config

import (
	"time"

	redisclient "github.com/vietddude/recoverer/internal/infra/redis"
	"github.com/vietddude/recoverer/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Database postgres.Config    `yaml:"database"`
	Redis    redisclient.Config `yaml:"redis"`
	Kafka    KafkaConfig        `yaml:"kafka"`
	Engine   EngineConfig       `yaml:"engine"`
	Logging  LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// KafkaConfig holds message bus settings. Empty brokers disables the bus and
// events are logged instead.
type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	CommandsTopic string   `yaml:"commands_topic"`
	EventsTopic   string   `yaml:"events_topic"`
	GroupID       string   `yaml:"group_id"`
}

// EngineConfig tunes the orchestration engine.
type EngineConfig struct {
	ArchiveBatchSize      int           `yaml:"archive_batch_size"`
	RetryPageSize         int           `yaml:"retry_page_size"`
	RetryDelay            time.Duration `yaml:"retry_delay"`
	StallThreshold        int           `yaml:"stall_threshold"`
	ReclassifyBatchSize   int           `yaml:"reclassify_batch_size"`
	ReclassifyParallelism int           `yaml:"reclassify_parallelism"`
	PollInterval          time.Duration `yaml:"poll_interval"`
}
