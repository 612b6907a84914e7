package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/orbitguard/orbitguard/config"
	"github.com/orbitguard/orbitguard/internal/broker/kafka"
	"github.com/orbitguard/orbitguard/internal/cache/rediscache"
	"github.com/orbitguard/orbitguard/internal/services/scans"
	"github.com/orbitguard/orbitguard/internal/storage/pgscan"
)

type scanAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     scanAPIOpts
	svc      *scans.Service
	consumer *kafka.Consumer
	closeDB  func()
}

func mustBootstrapScanAPI() *scanAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	httpAddr := cfg.OrbitGuard.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.OrbitGuard.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "scan-api"
	}
	topic := cfg.Kafka.AlertRaisedTopicName
	if topic == "" {
		topic = "alert.raised"
	}
	summaryTTL := time.Duration(cfg.OrbitGuard.SummaryTTLSeconds) * time.Second
	if summaryTTL <= 0 {
		summaryTTL = 10 * time.Minute
	}

	st := mustOpenPostgresWithRetry(postgresConnString(cfg), 60*time.Second)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)

	svc := scans.New(st, rc, summaryTTL)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	consumer := kafka.NewConsumer(brokers, topic, consumerGroup)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &scanAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: scanAPIOpts{
			httpAddr:      httpAddr,
			topic:         topic,
			consumerGroup: consumerGroup,
		},
		svc:      svc,
		consumer: consumer,
		closeDB:  st.Close,
	}
}

func postgresConnString(cfg *config.Config) string {
	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
}

// Postgres in docker compose may come up after the api container.
func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgscan.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgscan.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *scanAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *scanAPIApp) Run() error {
	return runScanAPI(a.ctx, a.opts, a.svc, a.consumer)
}
