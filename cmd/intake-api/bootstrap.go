package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/ParcelDesk/config"
	webhookapi "github.com/BearBump/ParcelDesk/internal/api/webhook_api"
	"github.com/BearBump/ParcelDesk/internal/broker/kafka"
	"github.com/BearBump/ParcelDesk/internal/cache/rediscache"
	"github.com/BearBump/ParcelDesk/internal/duty"
	"github.com/BearBump/ParcelDesk/internal/integrations/messenger"
	"github.com/BearBump/ParcelDesk/internal/integrations/messenger/cloudhttp"
	messengerfake "github.com/BearBump/ParcelDesk/internal/integrations/messenger/fake"
	"github.com/BearBump/ParcelDesk/internal/integrations/messenger/telegram"
	"github.com/BearBump/ParcelDesk/internal/integrations/vision"
	visionfake "github.com/BearBump/ParcelDesk/internal/integrations/vision/fake"
	"github.com/BearBump/ParcelDesk/internal/integrations/vision/openaivision"
	"github.com/BearBump/ParcelDesk/internal/metrics"
	"github.com/BearBump/ParcelDesk/internal/services/assembler"
	"github.com/BearBump/ParcelDesk/internal/services/correlator"
	"github.com/BearBump/ParcelDesk/internal/services/orders"
	"github.com/BearBump/ParcelDesk/internal/services/session"
	"github.com/BearBump/ParcelDesk/internal/storage/objstore"
	objstorefake "github.com/BearBump/ParcelDesk/internal/storage/objstore/fake"
	"github.com/BearBump/ParcelDesk/internal/storage/objstore/httpstore"
	"github.com/BearBump/ParcelDesk/internal/storage/pgorders"
)

type intakeAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     intakeAPIOpts
	api      *webhookapi.WebhookAPI
	svc      *orders.Service
	consumer *kafka.Consumer
	closeDB  func()
}

func mustBootstrapIntakeAPI() *intakeAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	httpAddr := cfg.ParcelDesk.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.ParcelDesk.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "intake-api"
	}
	createdTopic := cfg.Kafka.OrderCreatedTopicName
	if createdTopic == "" {
		createdTopic = "order.created"
	}
	reviewedTopic := cfg.Kafka.OrderReviewedTopicName
	if reviewedTopic == "" {
		reviewedTopic = "order.reviewed"
	}

	cacheTTL := secondsOr(cfg.ParcelDesk.OrderCacheTTLSeconds, 10*time.Minute)
	pairingWindow := secondsOr(cfg.ParcelDesk.PairingWindowSeconds, 5*time.Second)
	sessionTTL := secondsOr(cfg.ParcelDesk.SessionTTLSeconds, time.Hour)
	lockTimeout := secondsOr(cfg.ParcelDesk.LockTimeoutSeconds, 10*time.Second)
	stickyTTL := time.Duration(cfg.ParcelDesk.StickyNameTTLSeconds) * time.Second
	dedupTTL := secondsOr(cfg.ParcelDesk.DedupTTLSeconds, 24*time.Hour)
	unknownCooldown := secondsOr(cfg.ParcelDesk.UnknownSenderCooldownSeconds, time.Hour)
	noticeCooldown := secondsOr(cfg.ParcelDesk.ErrorNoticeCooldownSeconds, time.Minute)
	extractionTimeout := secondsOr(cfg.ParcelDesk.ExtractionTimeoutSeconds, 20*time.Second)

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st := mustOpenPostgresWithRetry(connString, 60*time.Second)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)
	dedup := rediscache.NewDedupFilter(redisAddr, dedupTTL)
	limiter := rediscache.NewRateLimiter(redisAddr)

	svc := orders.New(st, rc, cacheTTL, cfg.ParcelDesk.PackagePrefix)

	carrier := mustBuildCarrier(cfg)
	extractor := buildExtractor(cfg)
	store := buildObjectStore(cfg)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	producer := kafka.NewProducer(brokers)
	consumer := kafka.NewConsumer(brokers, reviewedTopic, consumerGroup)

	asm := assembler.New(svc, store, extractor, duty.DefaultTable()).
		WithProducer(producer, createdTopic).
		WithExtractionTimeout(extractionTimeout)

	sessions := session.NewStore(sessionTTL, lockTimeout)
	engine := correlator.NewEngine(sessions, carrier, asm, assembler.Summary).
		WithPairingWindow(pairingWindow).
		WithStickyNameTTL(stickyTTL).
		WithErrorNoticeCooldown(noticeCooldown)

	api := webhookapi.New(engine, dedup, st, svc, carrier).
		WithSecret(cfg.ParcelDesk.WebhookSecret).
		WithCooldownLimiter(limiter, unknownCooldown)

	metrics.RegisterDefault()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &intakeAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: intakeAPIOpts{
			httpAddr:      httpAddr,
			swaggerPath:   swaggerPath,
			topic:         reviewedTopic,
			consumerGroup: consumerGroup,
		},
		api:      api,
		svc:      svc,
		consumer: consumer,
		closeDB:  st.Close,
	}
}

func mustBuildCarrier(cfg *config.Config) messenger.Client {
	switch cfg.ParcelDesk.CarrierMode {
	case "", "cloud":
		if cfg.ParcelDesk.CarrierBaseURL == "" {
			panic("carrier_base_url is required for carrier_mode=cloud")
		}
		return cloudhttp.New(cfg.ParcelDesk.CarrierBaseURL, cfg.ParcelDesk.CarrierToken)
	case "telegram":
		c, err := telegram.New(cfg.ParcelDesk.CarrierToken)
		if err != nil {
			panic(fmt.Sprintf("telegram carrier: %v", err))
		}
		return c
	case "fake":
		return messengerfake.New()
	default:
		panic(fmt.Sprintf("unknown carrier_mode %q", cfg.ParcelDesk.CarrierMode))
	}
}

func buildExtractor(cfg *config.Config) vision.Extractor {
	if cfg.ParcelDesk.ExtractionAPIKey == "" {
		return visionfake.New()
	}
	return openaivision.New(cfg.ParcelDesk.ExtractionAPIKey, cfg.ParcelDesk.ExtractionBaseURL, cfg.ParcelDesk.ExtractionModel)
}

func buildObjectStore(cfg *config.Config) objstore.Uploader {
	if cfg.ParcelDesk.MediaStoreBaseURL == "" {
		return objstorefake.New()
	}
	return httpstore.New(cfg.ParcelDesk.MediaStoreBaseURL, cfg.ParcelDesk.MediaStoreToken)
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgorders.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgorders.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func secondsOr(v int, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return time.Duration(v) * time.Second
}

func (a *intakeAPIApp) Close() {
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

func (a *intakeAPIApp) Run() error {
	return runIntakeAPI(a.ctx, a.opts, a.api, a.svc, a.consumer)
}
