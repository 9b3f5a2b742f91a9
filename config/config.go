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
	ParcelDesk ParcelDeskConfig `yaml:"parceldesk"`
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
	Host                   string `yaml:"host"`
	Port                   int    `yaml:"port"`
	OrderCreatedTopicName  string `yaml:"order_created_topic_name"`
	OrderReviewedTopicName string `yaml:"order_reviewed_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type ParcelDeskConfig struct {
	HTTPAddr           string `yaml:"http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`

	WebhookSecret string `yaml:"webhook_secret"`
	PackagePrefix string `yaml:"package_prefix"`

	PairingWindowSeconds int `yaml:"pairing_window_seconds"`
	SessionTTLSeconds    int `yaml:"session_ttl_seconds"`
	LockTimeoutSeconds   int `yaml:"lock_timeout_seconds"`

	// Sticky name lifetime. 0 keeps an established customer name until the
	// next text event replaces it.
	StickyNameTTLSeconds int `yaml:"sticky_name_ttl_seconds"`

	DedupTTLSeconds              int `yaml:"dedup_ttl_seconds"`
	UnknownSenderCooldownSeconds int `yaml:"unknown_sender_cooldown_seconds"`
	ErrorNoticeCooldownSeconds   int `yaml:"error_notice_cooldown_seconds"`

	ExtractionTimeoutSeconds int    `yaml:"extraction_timeout_seconds"`
	ExtractionModel          string `yaml:"extraction_model"`
	ExtractionAPIKey         string `yaml:"extraction_api_key"`
	ExtractionBaseURL        string `yaml:"extraction_base_url"`

	OrderCacheTTLSeconds int `yaml:"order_cache_ttl_seconds"`

	// "cloud" | "telegram" | "fake"
	CarrierMode    string `yaml:"carrier_mode"`
	CarrierBaseURL string `yaml:"carrier_base_url"`
	CarrierToken   string `yaml:"carrier_token"`

	MediaStoreBaseURL string `yaml:"media_store_base_url"`
	MediaStoreToken   string `yaml:"media_store_token"`
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
