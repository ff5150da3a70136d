package telemetry

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Topics builds and parses the MQTT topic layout:
//
//	<prefix>/assets/<assetHex>/sensors/<field>
//	<prefix>/assets/<assetHex>/meters/<meterType>
//	<prefix>/users/<userHex>/notifications
type Topics struct {
	Prefix string
}

func (t Topics) base() string {
	return strings.TrimSuffix(t.Prefix, "/")
}

// Sensor is the topic carrying condition samples of one sensor field.
func (t Topics) Sensor(assetID primitive.ObjectID, field string) string {
	return fmt.Sprintf("%s/assets/%s/sensors/%s", t.base(), assetID.Hex(), field)
}

// Meter is the topic carrying cumulative readings of one meter.
func (t Topics) Meter(assetID primitive.ObjectID, meterType string) string {
	return fmt.Sprintf("%s/assets/%s/meters/%s", t.base(), assetID.Hex(), meterType)
}

// Notification is the topic a user's notifications are published on.
func (t Topics) Notification(userID primitive.ObjectID) string {
	return fmt.Sprintf("%s/users/%s/notifications", t.base(), userID.Hex())
}

// SensorFilter subscribes to every sensor topic.
func (t Topics) SensorFilter() string {
	return t.base() + "/assets/+/sensors/+"
}

// MeterFilter subscribes to every meter topic.
func (t Topics) MeterFilter() string {
	return t.base() + "/assets/+/meters/+"
}

// parseAsset splits an asset topic into asset id and leaf name after
// checking the channel segment ("sensors" or "meters").
func (t Topics) parseAsset(topic, channel string) (primitive.ObjectID, string, error) {
	rest := strings.TrimPrefix(topic, t.base()+"/")
	if rest == topic {
		return primitive.NilObjectID, "", fmt.Errorf("topic %q outside prefix %q", topic, t.base())
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 4 || parts[0] != "assets" || parts[2] != channel || parts[3] == "" {
		return primitive.NilObjectID, "", fmt.Errorf("unexpected %s topic %q", channel, topic)
	}
	id, err := primitive.ObjectIDFromHex(parts[1])
	if err != nil {
		return primitive.NilObjectID, "", fmt.Errorf("topic %q: invalid asset id: %w", topic, err)
	}
	return id, parts[3], nil
}
