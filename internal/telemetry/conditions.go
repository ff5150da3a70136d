package telemetry

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-pm/internal/clock"
	"github.com/ukydev/fleet-pm/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SensorPayload is the JSON body of a sensor message.
type SensorPayload struct {
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

type sampleKey struct {
	asset primitive.ObjectID
	field string
}

// ConditionCache keeps the latest sample per asset sensor field and serves
// them to condition triggers. Samples older than maxAge are not served.
type ConditionCache struct {
	mu      sync.RWMutex
	samples map[sampleKey]models.ConditionSample
	topics  Topics
	maxAge  time.Duration
	clock   clock.Clock
	log     log.FieldLogger
}

// NewConditionCache creates an empty cache. A zero maxAge disables the
// staleness check.
func NewConditionCache(topics Topics, maxAge time.Duration, c clock.Clock, logger log.FieldLogger) *ConditionCache {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &ConditionCache{
		samples: make(map[sampleKey]models.ConditionSample),
		topics:  topics,
		maxAge:  maxAge,
		clock:   clock.OrSystem(c),
		log:     logger,
	}
}

// Update stores a sample unless a newer one is already cached.
func (c *ConditionCache) Update(sample models.ConditionSample) {
	key := sampleKey{sample.AssetID, sample.SensorField}
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.samples[key]; ok && prev.Timestamp.After(sample.Timestamp) {
		return
	}
	c.samples[key] = sample
}

// CurrentValue implements trigger.ConditionFeed.
func (c *ConditionCache) CurrentValue(_ context.Context, assetID primitive.ObjectID, sensorField string) (float64, bool, error) {
	c.mu.RLock()
	sample, ok := c.samples[sampleKey{assetID, sensorField}]
	c.mu.RUnlock()
	if !ok {
		return 0, false, nil
	}
	if c.maxAge > 0 && c.clock.Now().Sub(sample.Timestamp) > c.maxAge {
		return 0, false, nil
	}
	return sample.Value, true, nil
}

// HandleMessage is the MQTT callback for sensor topics.
func (c *ConditionCache) HandleMessage(_ mqtt.Client, msg mqtt.Message) {
	assetID, field, err := c.topics.parseAsset(msg.Topic(), "sensors")
	if err != nil {
		c.log.WithError(err).Warn("Ignoring sensor message")
		return
	}
	var payload SensorPayload
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		c.log.WithError(err).WithField("topic", msg.Topic()).Warn("Invalid sensor payload")
		return
	}
	if payload.Timestamp.IsZero() {
		payload.Timestamp = c.clock.Now()
	}
	c.Update(models.ConditionSample{
		AssetID:     assetID,
		SensorField: field,
		Value:       payload.Value,
		Timestamp:   payload.Timestamp,
	})
}
