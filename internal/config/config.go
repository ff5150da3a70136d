package config

import (
	"fmt"
	"time"

	"github.com/ukydev/fleet-pm/internal/db"
	"github.com/ukydev/fleet-pm/internal/engine"
	"github.com/ukydev/fleet-pm/internal/telemetry"
)

// Config is the runtime configuration of the PM runner.
type Config struct {
	MongoURI string
	MongoDB  string

	MQTTBroker   string
	MQTTClientID string
	TopicPrefix  string
	SensorMaxAge time.Duration

	TickInterval time.Duration
	Workers      int
	PolicyFile   string

	ActionLinkSecret string
	ActionLinkTTL    time.Duration
	ActionBaseURL    string
}

// FromEnv reads the configuration from the environment.
func FromEnv(l Loader) (Config, error) {
	cfg := Config{
		MongoURI:         l.String("MONGO_URI", db.DefaultMongoURI),
		MongoDB:          l.String("MONGO_DB", "fleet_pm"),
		MQTTBroker:       l.String("MQTT_BROKER", telemetry.DefaultBroker),
		MQTTClientID:     l.String("MQTT_CLIENT_ID", "fleet-pm"),
		TopicPrefix:      l.String("MQTT_TOPIC_PREFIX", "fleet"),
		SensorMaxAge:     l.Duration("SENSOR_MAX_AGE", 15*time.Minute),
		TickInterval:     l.Duration("PM_TICK_INTERVAL", time.Minute),
		Workers:          l.Int("PM_WORKERS", engine.DefaultWorkers),
		PolicyFile:       l.String("PM_POLICY_FILE", ""),
		ActionLinkSecret: l.String("ACTION_LINK_SECRET", ""),
		ActionLinkTTL:    l.Duration("ACTION_LINK_TTL", 72*time.Hour),
		ActionBaseURL:    l.String("ACTION_BASE_URL", "http://localhost:8080"),
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("PM_TICK_INTERVAL must be positive")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("PM_WORKERS must be positive")
	}
	if c.ActionLinkSecret == "" {
		return fmt.Errorf("ACTION_LINK_SECRET is required")
	}
	return nil
}
