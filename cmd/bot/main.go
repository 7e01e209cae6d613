package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/maruthi2426/merge-bot/internal/auth"
	"github.com/maruthi2426/merge-bot/internal/config"
	"github.com/maruthi2426/merge-bot/internal/delivery"
	"github.com/maruthi2426/merge-bot/internal/dispatch"
	"github.com/maruthi2426/merge-bot/internal/ffmpeg"
	"github.com/maruthi2426/merge-bot/internal/health"
	"github.com/maruthi2426/merge-bot/internal/ingest"
	"github.com/maruthi2426/merge-bot/internal/jobs"
	"github.com/maruthi2426/merge-bot/internal/logx"
	"github.com/maruthi2426/merge-bot/internal/metrics"
	"github.com/maruthi2426/merge-bot/internal/pipeline"
	"github.com/maruthi2426/merge-bot/internal/session"
	"github.com/maruthi2426/merge-bot/internal/shortener"
	"github.com/maruthi2426/merge-bot/internal/storage"
	"github.com/maruthi2426/merge-bot/internal/telegram"
)

const outputContentType = "video/x-matroska"

// chat is the part of the Telegram client the handlers talk through.
type chat interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendMenu(chatID int64, text string) error
	EditText(chatID int64, messageID int, text string) error
	AnswerCallback(id, text string, alert bool) error
}

type housekeeper interface {
	Purge(ctx context.Context, user int64, keys []string, reason string) error
	ExpireOutput(ctx context.Context, user int64, key string, retention time.Duration) error
}

type ingester interface {
	Ingest(ctx context.Context, user int64, ref, name string) (storage.Object, error)
}

type merger interface {
	Run(ctx context.Context, snap session.Snapshot) (pipeline.Result, error)
}

type deliverer interface {
	Deliver(ctx context.Context, req delivery.Request) (delivery.Report, error)
}

type server struct {
	ctx      context.Context
	cfg      config.Config
	tg       chat
	jobs     housekeeper
	auth     *auth.Service
	sessions *session.Machine
	lanes    *dispatch.Dispatcher
	ingest   ingester
	pipe     merger
	deliver  deliverer

	merges sync.WaitGroup
}

func main() {
	logx.Setup(logx.FromEnv("bot"))
	log.Info().Msg("bot starting")

	cfg, err := config.Load("")
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bot, err := newBot(cfg.Telegram)
	if err != nil {
		log.Fatal().Err(err).Msg("telegram login")
	}
	bot.Debug = false
	log.Info().Str("username", bot.Self.UserName).Msg("bot authorized")

	s3c, err := storage.NewClient(ctx, storage.ClientConfig{
		Region:    cfg.Storage.Region,
		Endpoint:  cfg.Storage.Endpoint,
		PathStyle: cfg.Storage.PathStyle,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("s3 client")
	}
	bucket := storage.FromClient(s3c, cfg.Storage.Bucket)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	defer rdb.Close()
	asClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Addr})
	defer asClient.Close()

	authSvc := auth.NewService(auth.NewRedisStore(rdb, cfg.Redis.Prefix), cfg.Auth.MasterToken, cfg.AuthTTL())
	authSvc.Seed(ctx, cfg.Auth.Admins)

	tg := telegram.NewClient(bot, cfg.Telegram.LocalAPIEndpoint)
	sources := storage.NewUploader(s3c, bucket.Name(), cfg.PartSize(), storage.WithMetrics(m))
	outputs := storage.NewUploader(s3c, bucket.Name(), cfg.PartSize(),
		storage.WithContentType(outputContentType), storage.WithMetrics(m))

	runner := ffmpeg.NewRunner(cfg.Merge.Timeout)
	runner.ReadChunk = cfg.ReadChunk()
	runner.QueueDepth = cfg.Merge.QueueDepth
	runner.StderrLimit = cfg.Merge.StderrPreview
	builder := ffmpeg.NewBuilder(cfg.Merge.FFmpegBin, cfg.Merge.InputTimeout)

	var large delivery.LargeSender
	if ep := cfg.Telegram.LocalAPIEndpoint; ep != "" {
		ls, err := telegram.NewLargeSender(cfg.Telegram.Token, ep)
		if err != nil {
			log.Warn().Err(err).Str("endpoint", ep).Msg("large-file uploader disabled")
		} else {
			large = ls
		}
	}

	s := &server{
		ctx:      ctx,
		cfg:      cfg,
		tg:       tg,
		jobs:     jobs.NewClient(asClient),
		auth:     authSvc,
		sessions: session.NewMachine(),
		lanes:    dispatch.New(ctx),
		ingest:   ingest.New(tg, sources, cfg.Merge.IngestTimeout, m),
		pipe: pipeline.New(authSvc, bucket, builder, pipeline.FromRunner(runner), outputs,
			pipeline.Config{PresignTTL: cfg.Merge.PresignTTL}, m),
		deliver: delivery.New(tg, large, bucket,
			shortener.NewGPLinks(cfg.Auth.ShortenerBase, &http.Client{Timeout: shortener.DefaultTimeout}),
			authSvc, delivery.Config{LinkTTL: cfg.Delivery.LinkTTL, DirectLimit: cfg.UploadLimit()}, m),
	}

	if cfg.Health.Addr != "" {
		gin.SetMode(gin.ReleaseMode)
		router := health.NewRouter(map[string]health.Check{
			"redis":   func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			"storage": bucket.Ping,
		}, reg)
		go func() {
			if err := health.Serve(ctx, cfg.Health.Addr, router); err != nil {
				log.Error().Err(err).Msg("health server stopped")
			}
		}()
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)
	go func() {
		<-ctx.Done()
		bot.StopReceivingUpdates()
	}()

	for upd := range updates {
		switch {
		case upd.Message != nil:
			s.onMessage(upd.Message)
		case upd.CallbackQuery != nil:
			s.onCallback(upd.CallbackQuery)
		}
	}

	log.Info().Msg("draining")
	s.lanes.Wait()
	s.merges.Wait()
	log.Info().Msg("bot stopped")
}

// newBot logs in to the public Bot API, or to a self-hosted server when
// one is configured.
func newBot(c config.TelegramConfig) (*tgbotapi.BotAPI, error) {
	if c.LocalAPIEndpoint != "" {
		return tgbotapi.NewBotAPIWithAPIEndpoint(c.Token, c.LocalAPIEndpoint+"/bot%s/%s")
	}
	return tgbotapi.NewBotAPI(c.Token)
}
