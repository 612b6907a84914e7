package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	OrbitGuard OrbitGuardConfig `yaml:"orbitguard"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                 string `yaml:"host"`
	Port                 int    `yaml:"port"`
	AlertRaisedTopicName string `yaml:"alert_raised_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type OrbitGuardConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`
	SummaryTTLSeconds  int    `yaml:"summary_ttl_seconds"`

	WorkerPollIntervalSeconds int `yaml:"worker_poll_interval_seconds"`
	WorkerMaxJobsPerRun       int `yaml:"worker_max_jobs_per_run"`
	WorkerHTTPAddr            string `yaml:"worker_http_addr"`

	FeedBaseURL        string `yaml:"feed_base_url"`
	FeedMode           string `yaml:"feed_mode"` // "jpl" | "fake"
	FeedDistMaxAU      string `yaml:"feed_dist_max_au"`
	FeedFetchesPerHour int    `yaml:"feed_fetches_per_hour"`
	FeedSyncIntervalSeconds int `yaml:"feed_sync_interval_seconds"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
