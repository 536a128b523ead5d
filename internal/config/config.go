package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	RawBucket  string  `mapstructure:"raw_bucket"`
	Symbol     string  `mapstructure:"symbol"`
	LocalDir   string  `mapstructure:"local_dir"`
	RotBytes   int64   `mapstructure:"rot_bytes"`
	RotSecs    float64 `mapstructure:"rot_secs"`
	InstanceID string  `mapstructure:"instance_id"`
	AWSRegion  string  `mapstructure:"aws_region"`
	S3Endpoint string  `mapstructure:"s3_endpoint"`
	LogLevel   string  `mapstructure:"log_level"`

	Feed  FeedConfig  `mapstructure:"feed"`
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type FeedConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	StreamType  string `mapstructure:"stream_type"`
	ReconnectMS int64  `mapstructure:"reconnect_ms"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topics  []string `mapstructure:"topics"`
	GroupID string   `mapstructure:"group_id"`
}

// Load reads configuration from the environment, plus an optional config
// file when path is non-empty. Environment keys map directly to the upper
// cased setting name: raw_bucket -> RAW_BUCKET, feed.reconnect_ms ->
// FEED_RECONNECT_MS.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("raw_bucket", "")
	v.SetDefault("symbol", "BTCUSDT")
	v.SetDefault("local_dir", "/tmp/market-data")
	v.SetDefault("rot_bytes", 2097152)
	v.SetDefault("rot_secs", 5)
	v.SetDefault("instance_id", "local-001")
	v.SetDefault("aws_region", "")
	v.SetDefault("s3_endpoint", "")
	v.SetDefault("log_level", "INFO")

	v.SetDefault("feed.base_url", "wss://stream.binance.com:9443/stream")
	v.SetDefault("feed.stream_type", "trade")
	v.SetDefault("feed.reconnect_ms", 1000)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topics", []string{})
	v.SetDefault("kafka.group_id", "")
}

func (c Config) Validate() error {
	if c.RawBucket == "" {
		return fmt.Errorf("raw_bucket is required (RAW_BUCKET)")
	}
	if c.RotBytes <= 0 {
		return fmt.Errorf("rot_bytes must be positive, got %d", c.RotBytes)
	}
	if c.RotSecs <= 0 {
		return fmt.Errorf("rot_secs must be positive, got %v", c.RotSecs)
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required when kafka is enabled")
		}
		if len(c.Kafka.Topics) == 0 {
			return fmt.Errorf("kafka.topics is required when kafka is enabled")
		}
		if c.Kafka.GroupID == "" {
			return fmt.Errorf("kafka.group_id is required when kafka is enabled")
		}
	}
	return nil
}

// RotAge converts rot_secs to a duration.
func (c Config) RotAge() time.Duration {
	return time.Duration(c.RotSecs * float64(time.Second))
}

// ReconnectDelay converts feed.reconnect_ms to a duration.
func (c Config) ReconnectDelay() time.Duration {
	return time.Duration(c.Feed.ReconnectMS) * time.Millisecond
}
