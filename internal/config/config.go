package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	MQTTBrokerURL    string
	MQTTClientID     string
	MQTTUsername     string
	MQTTPassword     string
	MQTTStatusTopic  string
	MQTTDataTopic    string
	MQTTCommandTopic string
	MQTTQoS          byte

	HTTPAddr string

	EventQueueSize int

	// Optional Kafka tee of accepted data lines; disabled when KAFKA_BROKERS
	// is empty.
	KafkaBrokers  []string
	KafkaTopic    string
	KafkaDLQTopic string

	// Optional InfluxDB live mirror; disabled when INFLUX_URL is empty.
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	// Optional archival of finished-session snapshots; disabled when
	// S3_ENDPOINT is empty.
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3UseTLS    bool
	S3Bucket    string
	S3BasePath  string

	Logger *log.Logger
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getenvQoS(key string, fallback byte) byte {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			if n < 0 {
				n = 0
			}
			if n > 2 {
				n = 2
			}
			return byte(n)
		}
	}
	return fallback
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		MQTTBrokerURL:    getenv("MQTT_BROKER_URL", "tcp://localhost:1883"),
		MQTTClientID:     getenv("MQTT_CLIENT_ID", "pidaq-coordinator"),
		MQTTUsername:     os.Getenv("MQTT_USERNAME"),
		MQTTPassword:     os.Getenv("MQTT_PASSWORD"),
		MQTTStatusTopic:  getenv("MQTT_STATUS_TOPIC", "status"),
		MQTTDataTopic:    getenv("MQTT_DATA_TOPIC", "data"),
		MQTTCommandTopic: getenv("MQTT_COMMAND_TOPIC", "commands"),
		MQTTQoS:          getenvQoS("MQTT_QOS", 1),

		HTTPAddr: getenv("HTTP_ADDR", ":3001"),

		EventQueueSize: getenvInt("EVENT_QUEUE_SIZE", 10_000),

		KafkaTopic:    getenv("KAFKA_TOPIC", "raw-points-topic"),
		KafkaDLQTopic: getenv("KAFKA_DLQ_TOPIC", "raw-points-dlq"),

		InfluxURL:    os.Getenv("INFLUX_URL"),
		InfluxToken:  os.Getenv("INFLUX_TOKEN"),
		InfluxOrg:    getenv("INFLUX_ORG", "pidaq"),
		InfluxBucket: getenv("INFLUX_BUCKET", "telemetry"),

		S3Endpoint:  os.Getenv("S3_ENDPOINT"),
		S3AccessKey: os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("S3_SECRET_KEY"),
		S3UseTLS:    getenvBool("S3_USE_TLS", false),
		S3Bucket:    getenv("S3_BUCKET", "pidaq-sessions"),
		S3BasePath:  getenv("S3_BASE_PATH", "sessions"),

		Logger: log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds),
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if s := strings.TrimSpace(b); s != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, s)
			}
		}
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS set but contains no brokers")
		}
	}

	if cfg.MQTTBrokerURL == "" {
		return nil, errors.New("MQTT_BROKER_URL must not be empty")
	}
	if cfg.EventQueueSize <= 0 {
		return nil, errors.New("EVENT_QUEUE_SIZE must be > 0")
	}
	if cfg.InfluxURL != "" && cfg.InfluxToken == "" {
		return nil, errors.New("INFLUX_TOKEN required when INFLUX_URL is set")
	}
	if cfg.S3Endpoint != "" && (cfg.S3AccessKey == "" || cfg.S3SecretKey == "") {
		return nil, errors.New("S3_ACCESS_KEY and S3_SECRET_KEY required when S3_ENDPOINT is set")
	}

	return cfg, nil
}
