package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-pm/internal/clock"
	"github.com/ukydev/fleet-pm/internal/meter"
	"github.com/ukydev/fleet-pm/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var now = time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func message(t *testing.T, topic string, body interface{}) mqtt.Message {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	return fakeMessage{topic: topic, payload: payload}
}

type fakeToken struct {
	done bool
	err  error
}

func (t fakeToken) Wait() bool                     { return t.done }
func (t fakeToken) WaitTimeout(time.Duration) bool { return t.done }
func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t fakeToken) Error() error { return t.err }

type fakePublishClient struct {
	token    fakeToken
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

func (c *fakePublishClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.topic, c.qos, c.retained = topic, qos, retained
	c.payload, _ = payload.([]byte)
	return c.token
}

// MockSink is a mock implementation of MeterSink
type MockSink struct {
	mock.Mock
}

func (m *MockSink) Record(ctx context.Context, in meter.ReadingInput) (*models.MeterReading, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MeterReading), args.Error(1)
}

func TestTopics(t *testing.T) {
	topics := Topics{Prefix: "plant1/"}
	asset := primitive.NewObjectID()

	assert.Equal(t, "plant1/assets/"+asset.Hex()+"/sensors/vibration", topics.Sensor(asset, "vibration"))
	assert.Equal(t, "plant1/assets/"+asset.Hex()+"/meters/hours", topics.Meter(asset, "hours"))
	assert.Equal(t, "plant1/assets/+/sensors/+", topics.SensorFilter())

	id, leaf, err := topics.parseAsset(topics.Meter(asset, "hours"), "meters")
	require.NoError(t, err)
	assert.Equal(t, asset, id)
	assert.Equal(t, "hours", leaf)

	for _, bad := range []string{
		"other/assets/" + asset.Hex() + "/meters/hours",
		"plant1/assets/" + asset.Hex() + "/sensors/temp",
		"plant1/assets/nothex/meters/hours",
		"plant1/assets/" + asset.Hex() + "/meters/",
	} {
		_, _, err := topics.parseAsset(bad, "meters")
		assert.Error(t, err, bad)
	}
}

func TestConditionCache(t *testing.T) {
	logger, hook := test.NewNullLogger()
	c := clock.NewManual(now)
	topics := Topics{Prefix: "pm"}
	cache := NewConditionCache(topics, 10*time.Minute, c, logger)
	asset := primitive.NewObjectID()
	ctx := context.Background()

	_, ok, err := cache.CurrentValue(ctx, asset, "coolant_temp")
	require.NoError(t, err)
	assert.False(t, ok)

	cache.HandleMessage(nil, message(t, topics.Sensor(asset, "coolant_temp"), SensorPayload{Value: 92.5, Timestamp: now.Add(-time.Minute)}))
	v, ok, err := cache.CurrentValue(ctx, asset, "coolant_temp")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 92.5, v)

	// Out-of-order samples do not overwrite newer ones.
	cache.HandleMessage(nil, message(t, topics.Sensor(asset, "coolant_temp"), SensorPayload{Value: 60, Timestamp: now.Add(-5 * time.Minute)}))
	v, _, _ = cache.CurrentValue(ctx, asset, "coolant_temp")
	assert.Equal(t, 92.5, v)

	c.Advance(15 * time.Minute)
	_, ok, err = cache.CurrentValue(ctx, asset, "coolant_temp")
	require.NoError(t, err)
	assert.False(t, ok)

	cache.HandleMessage(nil, fakeMessage{topic: topics.Sensor(asset, "coolant_temp"), payload: []byte("{")})
	cache.HandleMessage(nil, message(t, "pm/assets/zzz/sensors/x", SensorPayload{Value: 1}))
	require.Len(t, hook.AllEntries(), 2)
	assert.Equal(t, log.WarnLevel, hook.LastEntry().Level)
}

func TestConditionCache_MissingTimestampUsesClock(t *testing.T) {
	c := clock.NewManual(now)
	topics := Topics{Prefix: "pm"}
	cache := NewConditionCache(topics, time.Minute, c, nil)
	asset := primitive.NewObjectID()

	cache.HandleMessage(nil, message(t, topics.Sensor(asset, "rpm"), map[string]float64{"value": 1800}))
	v, ok, err := cache.CurrentValue(context.Background(), asset, "rpm")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1800.0, v)
}

func TestMeterIngest(t *testing.T) {
	logger, hook := test.NewNullLogger()
	sink := new(MockSink)
	topics := Topics{Prefix: "pm"}
	ingest := NewMeterIngest(sink, topics, logger)
	asset := primitive.NewObjectID()
	recorder := primitive.NewObjectID()

	sink.On("Record", mock.Anything, mock.MatchedBy(func(in meter.ReadingInput) bool {
		return in.AssetID == asset && in.MeterType == "hours" && in.Value == 1520 &&
			in.Unit == "h" && in.RecordedByID == recorder && in.At.Equal(now)
	})).Return(&models.MeterReading{}, nil).Once()

	ingest.HandleMessage(nil, message(t, topics.Meter(asset, "hours"), MeterPayload{Value: 1520, Unit: "h", RecordedBy: recorder.Hex(), Timestamp: now}))
	sink.AssertExpectations(t)
	assert.Empty(t, hook.AllEntries())
}

func TestMeterIngest_Errors(t *testing.T) {
	logger, hook := test.NewNullLogger()
	sink := new(MockSink)
	topics := Topics{Prefix: "pm"}
	ingest := NewMeterIngest(sink, topics, logger)
	asset := primitive.NewObjectID()

	sink.On("Record", mock.Anything, mock.Anything).Return(nil, errors.New("store down")).Once()
	ingest.HandleMessage(nil, message(t, topics.Meter(asset, "cycles"), MeterPayload{Value: 3}))
	assert.Equal(t, log.ErrorLevel, hook.LastEntry().Level)

	ingest.HandleMessage(nil, fakeMessage{topic: topics.Meter(asset, "cycles"), payload: []byte("nope")})
	assert.Equal(t, log.WarnLevel, hook.LastEntry().Level)
	sink.AssertNumberOfCalls(t, "Record", 1)
}

func TestNotificationPublisher(t *testing.T) {
	client := &fakePublishClient{token: fakeToken{done: true}}
	topics := Topics{Prefix: "pm"}
	pub := NewNotificationPublisher(client, topics)
	n := models.Notification{
		ID:       primitive.NewObjectID(),
		UserID:   primitive.NewObjectID(),
		Title:    "Preventive maintenance failed",
		Priority: models.PriorityHigh,
	}

	require.NoError(t, pub.Publish(context.Background(), n))
	assert.Equal(t, topics.Notification(n.UserID), client.topic)
	assert.Equal(t, byte(1), client.qos)
	assert.False(t, client.retained)

	var decoded models.Notification
	require.NoError(t, json.Unmarshal(client.payload, &decoded))
	assert.Equal(t, n.Title, decoded.Title)
}

func TestNotificationPublisher_Failures(t *testing.T) {
	topics := Topics{Prefix: "pm"}
	n := models.Notification{UserID: primitive.NewObjectID()}

	pub := NewNotificationPublisher(&fakePublishClient{token: fakeToken{done: false}}, topics)
	assert.ErrorContains(t, pub.Publish(context.Background(), n), "timed out")

	boom := errors.New("not connected")
	pub = NewNotificationPublisher(&fakePublishClient{token: fakeToken{done: true, err: boom}}, topics)
	assert.ErrorIs(t, pub.Publish(context.Background(), n), boom)
}

func TestConnect_BadBroker(t *testing.T) {
	if testing.Short() {
		t.Skip("dials the network")
	}
	_, err := Connect("tcp://127.0.0.1:1", "pm-test", nil)
	assert.Error(t, err)
}
