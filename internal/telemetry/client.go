package telemetry

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// DefaultBroker is used when no broker URL is configured.
const DefaultBroker = "tcp://localhost:1883"

// Connect opens an auto-reconnecting MQTT client.
func Connect(broker, clientID string, logger log.FieldLogger) (mqtt.Client, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if broker == "" {
		broker = DefaultBroker
	}
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.WithError(err).Warn("MQTT connection lost")
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: timeout", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", broker, err)
	}
	logger.WithField("broker", broker).Info("Connected to MQTT broker")
	return client, nil
}

// Subscribe routes sensor and meter topics to their handlers.
func Subscribe(client mqtt.Client, topics Topics, cache *ConditionCache, ingest *MeterIngest) error {
	subs := []struct {
		filter  string
		qos     byte
		handler mqtt.MessageHandler
	}{
		{topics.SensorFilter(), 0, cache.HandleMessage},
		{topics.MeterFilter(), 1, ingest.HandleMessage},
	}
	for _, sub := range subs {
		token := client.Subscribe(sub.filter, sub.qos, sub.handler)
		if !token.WaitTimeout(10 * time.Second) {
			return fmt.Errorf("subscribe to %s timed out", sub.filter)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("subscribe to %s: %w", sub.filter, err)
		}
	}
	return nil
}
