package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-pm/internal/auth"
	"github.com/ukydev/fleet-pm/internal/clock"
	"github.com/ukydev/fleet-pm/internal/config"
	"github.com/ukydev/fleet-pm/internal/db"
	"github.com/ukydev/fleet-pm/internal/engine"
	"github.com/ukydev/fleet-pm/internal/telemetry"
)

// tickRunner runs one evaluation pass.
type tickRunner interface {
	Tick(ctx context.Context, asOf time.Time) (*engine.TickReport, error)
}

// tickLoop ticks immediately and then every interval until ctx is done.
func tickLoop(ctx context.Context, r tickRunner, interval time.Duration, c clock.Clock, logger log.FieldLogger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for ctx.Err() == nil {
		if _, err := r.Tick(ctx, c.Now()); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.WithError(err).Error("PM tick failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func run(ctx context.Context, cfg config.Config, logger *log.Logger) error {
	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return err
	}

	client, err := db.ConnectMongo(cfg.MongoURI)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	store := db.NewMongoStore(client, cfg.MongoDB)
	idxCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = store.EnsureIndexes(idxCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to ensure indexes: %w", err)
	}

	clk := clock.System{}
	topics := telemetry.Topics{Prefix: cfg.TopicPrefix}
	mqttClient, err := telemetry.Connect(cfg.MQTTBroker, cfg.MQTTClientID, logger.WithField("component", "mqtt"))
	if err != nil {
		return err
	}
	defer mqttClient.Disconnect(250)

	links, err := auth.NewService(cfg.ActionLinkSecret, cfg.ActionLinkTTL, cfg.ActionBaseURL, clk)
	if err != nil {
		return err
	}

	cache := telemetry.NewConditionCache(topics, cfg.SensorMaxAge, clk, logger.WithField("component", "conditions"))
	eng := engine.New(engine.Deps{
		Store:     store,
		Assets:    db.NewMongoAssetRegistry(store),
		Directory: db.NewMongoUserCollection(store),
		Feed:      cache,
		Policy:    policy,
		Links:     links,
		Publisher: telemetry.NewNotificationPublisher(mqttClient, topics),
		Clock:     clk,
		Logger:    logger,
		Workers:   cfg.Workers,
	})
	ingest := telemetry.NewMeterIngest(eng.Meters, topics, logger.WithField("component", "meter_ingest"))
	if err := telemetry.Subscribe(mqttClient, topics, cache, ingest); err != nil {
		return err
	}

	logger.WithFields(log.Fields{
		"database":      cfg.MongoDB,
		"broker":        cfg.MQTTBroker,
		"topic_prefix":  cfg.TopicPrefix,
		"tick_interval": cfg.TickInterval.String(),
		"workers":       cfg.Workers,
	}).Info("PM runner started")
	tickLoop(ctx, eng, cfg.TickInterval, clk, logger)
	logger.Info("PM runner stopped")
	return nil
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found")
	}
	logger := log.StandardLogger()
	logger.SetFormatter(&log.JSONFormatter{})
	if lvl, err := log.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(lvl)
	}

	cfg, err := config.FromEnv(config.NewLoader(""))
	if err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("PM runner failed")
	}
}
