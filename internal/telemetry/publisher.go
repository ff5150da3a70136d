package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/ukydev/fleet-pm/internal/models"
)

// publishClient is the subset of mqtt.Client used for publishing.
type publishClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// NotificationPublisher delivers notifications to per-user MQTT topics.
type NotificationPublisher struct {
	client  publishClient
	topics  Topics
	qos     byte
	timeout time.Duration
}

// NewNotificationPublisher creates a publisher using QoS 1.
func NewNotificationPublisher(client publishClient, topics Topics) *NotificationPublisher {
	return &NotificationPublisher{client: client, topics: topics, qos: 1, timeout: 5 * time.Second}
}

// Publish implements workorder.Publisher.
func (p *NotificationPublisher) Publish(ctx context.Context, n models.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	timeout := p.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	topic := p.topics.Notification(n.UserID)
	token := p.client.Publish(topic, p.qos, false, payload)
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}
