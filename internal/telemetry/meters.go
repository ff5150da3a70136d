package telemetry

import (
	"context"
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-pm/internal/meter"
	"github.com/ukydev/fleet-pm/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MeterPayload is the JSON body of a meter message.
type MeterPayload struct {
	Value      float64   `json:"value"`
	Unit       string    `json:"unit"`
	RecordedBy string    `json:"recorded_by,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// MeterSink stores an ingested reading.
type MeterSink interface {
	Record(ctx context.Context, in meter.ReadingInput) (*models.MeterReading, error)
}

// MeterIngest turns meter messages into stored readings.
type MeterIngest struct {
	sink    MeterSink
	topics  Topics
	timeout time.Duration
	log     log.FieldLogger
}

// NewMeterIngest creates a meter ingest handler.
func NewMeterIngest(sink MeterSink, topics Topics, logger log.FieldLogger) *MeterIngest {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &MeterIngest{sink: sink, topics: topics, timeout: 10 * time.Second, log: logger}
}

// HandleMessage is the MQTT callback for meter topics.
func (m *MeterIngest) HandleMessage(_ mqtt.Client, msg mqtt.Message) {
	assetID, meterType, err := m.topics.parseAsset(msg.Topic(), "meters")
	if err != nil {
		m.log.WithError(err).Warn("Ignoring meter message")
		return
	}
	var payload MeterPayload
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		m.log.WithError(err).WithField("topic", msg.Topic()).Warn("Invalid meter payload")
		return
	}
	in := meter.ReadingInput{
		AssetID:   assetID,
		MeterType: meterType,
		Value:     payload.Value,
		Unit:      payload.Unit,
		At:        payload.Timestamp,
	}
	if payload.RecordedBy != "" {
		if id, err := primitive.ObjectIDFromHex(payload.RecordedBy); err == nil {
			in.RecordedByID = id
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	if _, err := m.sink.Record(ctx, in); err != nil {
		m.log.WithError(err).WithFields(log.Fields{
			"asset_id":   assetID.Hex(),
			"meter_type": meterType,
		}).Error("Failed to record meter reading")
	}
}
