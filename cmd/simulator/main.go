package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-pm/internal/telemetry"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const recordedBy = "simulator"

// AssetState is the simulated condition of one fleet vehicle.
type AssetState struct {
	AssetID     primitive.ObjectID
	Type        string // "ICE" or "EV"
	SpeedKmh    float64
	OdometerKm  float64
	EngineHours float64
	FuelPct     float64
	BatteryPct  float64
	CoolantC    float64
}

func newAssetState(id primitive.ObjectID, vtype string) *AssetState {
	return &AssetState{
		AssetID:    id,
		Type:       vtype,
		SpeedKmh:   30 + rand.Float64()*30,
		OdometerKm: float64(rand.Intn(50000)),
		FuelPct:    50 + rand.Float64()*50,
		BatteryPct: 50 + rand.Float64()*50,
		CoolantC:   80,
	}
}

// step advances the vehicle by one interval of driving.
func (s *AssetState) step(interval time.Duration) {
	s.SpeedKmh += (rand.Float64()*2 - 1) * 1.5
	if s.SpeedKmh < 15 {
		s.SpeedKmh = 15
	}
	if s.SpeedKmh > 90 {
		s.SpeedKmh = 90
	}

	hours := interval.Hours()
	km := s.SpeedKmh * hours
	s.OdometerKm += km
	s.EngineHours += hours

	if s.Type == "ICE" {
		s.FuelPct -= km * 0.4
		if s.FuelPct < 5 {
			s.FuelPct = 100
		}
	} else {
		s.BatteryPct -= km * 0.8
		if s.BatteryPct < 5 {
			s.BatteryPct = 100
		}
	}

	// drifts toward a speed dependent operating temperature
	target := 78 + 0.2*s.SpeedKmh
	s.CoolantC += (target-s.CoolantC)*0.3 + (rand.Float64()*2-1)*0.5
}

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type message struct {
	topic   string
	qos     byte
	payload interface{}
}

func (s *AssetState) messages(topics telemetry.Topics, at time.Time) []message {
	msgs := []message{
		{topics.Meter(s.AssetID, "odometer"), 1, telemetry.MeterPayload{Value: s.OdometerKm, Unit: "km", RecordedBy: recordedBy, Timestamp: at}},
		{topics.Meter(s.AssetID, "engine_hours"), 1, telemetry.MeterPayload{Value: s.EngineHours, Unit: "h", RecordedBy: recordedBy, Timestamp: at}},
		{topics.Sensor(s.AssetID, "coolant_temp"), 0, telemetry.SensorPayload{Value: s.CoolantC, Timestamp: at}},
	}
	if s.Type == "ICE" {
		msgs = append(msgs, message{topics.Sensor(s.AssetID, "fuel_level"), 0, telemetry.SensorPayload{Value: s.FuelPct, Timestamp: at}})
	} else {
		msgs = append(msgs, message{topics.Sensor(s.AssetID, "battery_level"), 0, telemetry.SensorPayload{Value: s.BatteryPct, Timestamp: at}})
	}
	return msgs
}

func publishState(client publisher, topics telemetry.Topics, s *AssetState, at time.Time) error {
	for _, m := range s.messages(topics, at) {
		data, err := json.Marshal(m.payload)
		if err != nil {
			return fmt.Errorf("failed to marshal %s: %w", m.topic, err)
		}
		token := client.Publish(m.topic, m.qos, false, data)
		if !token.WaitTimeout(5 * time.Second) {
			return fmt.Errorf("publish to %s timed out", m.topic)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish to %s: %w", m.topic, err)
		}
	}
	return nil
}

func simulateAsset(ctx context.Context, client publisher, topics telemetry.Topics, s *AssetState, interval time.Duration) {
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tick.C:
			s.step(interval)
			if err := publishState(client, topics, s, now.UTC()); err != nil {
				log.WithError(err).WithField("asset_id", s.AssetID.Hex()).Error("Failed to publish telemetry")
				continue
			}
			log.WithFields(log.Fields{
				"asset_id":    s.AssetID.Hex(),
				"odometer_km": s.OdometerKm,
			}).Debug("Published telemetry")
		}
	}
}

// parseAssetIDs reads a comma separated list of asset ids. An empty list
// yields fleetSize fresh ids.
func parseAssetIDs(raw string, fleetSize int) ([]primitive.ObjectID, error) {
	if strings.TrimSpace(raw) == "" {
		ids := make([]primitive.ObjectID, fleetSize)
		for i := range ids {
			ids[i] = primitive.NewObjectID()
		}
		return ids, nil
	}
	var ids []primitive.ObjectID
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := primitive.ObjectIDFromHex(part)
		if err != nil {
			return nil, fmt.Errorf("invalid asset id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found")
	}

	fleetSize := 10
	if val := os.Getenv("FLEET_SIZE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			fleetSize = n
		}
	}

	interval := 2 * time.Second
	if v := os.Getenv("SIM_TICK_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 {
			interval = time.Duration(n) * time.Second
		}
	}

	ids, err := parseAssetIDs(os.Getenv("SIM_ASSET_IDS"), fleetSize)
	if err != nil {
		log.WithError(err).Fatal("Invalid SIM_ASSET_IDS")
	}

	topics := telemetry.Topics{Prefix: os.Getenv("MQTT_TOPIC_PREFIX")}
	if topics.Prefix == "" {
		topics.Prefix = "fleet"
	}
	client, err := telemetry.Connect(os.Getenv("MQTT_BROKER"), "fleet-pm-simulator", log.StandardLogger())
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to MQTT broker")
	}
	defer client.Disconnect(250)

	log.WithFields(log.Fields{
		"fleet_size": len(ids),
		"prefix":     topics.Prefix,
		"interval":   interval,
	}).Info("Starting fleet simulation")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	for _, id := range ids {
		vtype := []string{"ICE", "EV"}[rand.Intn(2)]
		go simulateAsset(ctx, client, topics, newAssetState(id, vtype), interval)
	}

	<-ctx.Done()
	log.Info("Telemetry simulation stopped")
}
