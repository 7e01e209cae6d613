package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/maruthi2426/merge-bot/internal/config"
	"github.com/maruthi2426/merge-bot/internal/health"
	"github.com/maruthi2426/merge-bot/internal/jobs"
	"github.com/maruthi2426/merge-bot/internal/logx"
	"github.com/maruthi2426/merge-bot/internal/metrics"
	"github.com/maruthi2426/merge-bot/internal/storage"
)

func main() {
	logx.Setup(logx.FromEnv("worker"))

	c, err := config.Load("")
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s3c, err := storage.NewClient(ctx, storage.ClientConfig{
		Region:    c.Storage.Region,
		Endpoint:  c.Storage.Endpoint,
		PathStyle: c.Storage.PathStyle,
		AccessKey: c.Storage.AccessKey,
		SecretKey: c.Storage.SecretKey,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("s3 client")
	}
	bucket := storage.FromClient(s3c, c.Storage.Bucket)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	redisOpt := asynq.RedisClientOpt{Addr: c.Redis.Addr}
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: c.Worker.Concurrency,
		Queues:      map[string]int{"default": 1},
	})

	mux := asynq.NewServeMux()
	jobs.NewHandlers(bucket, m).Register(mux)

	abortTask, err := jobs.NewAbortStaleTask(jobs.AbortStalePayload{
		OlderThanSec: int64(c.Storage.StaleUploadAge.Seconds()),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("build abort-stale task")
	}
	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{})
	if _, err := scheduler.Register(c.Worker.AbortStale, abortTask, asynq.MaxRetry(1)); err != nil {
		log.Fatal().Err(err).Str("spec", c.Worker.AbortStale).Msg("schedule abort-stale")
	}

	if addr := c.Worker.HealthAddr; addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: c.Redis.Addr})
		defer rdb.Close()
		gin.SetMode(gin.ReleaseMode)
		router := health.NewRouter(map[string]health.Check{
			"redis":   func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			"storage": bucket.Ping,
		}, reg)
		go func() {
			if err := health.Serve(ctx, addr, router); err != nil {
				log.Error().Err(err).Msg("health server stopped")
			}
		}()
	}

	log.Info().Int("concurrency", c.Worker.Concurrency).Str("abort_stale", c.Worker.AbortStale).Msg("worker starting")
	if err := scheduler.Start(); err != nil {
		log.Fatal().Err(err).Msg("scheduler start")
	}
	if err := srv.Start(mux); err != nil {
		log.Fatal().Err(err).Msg("worker start")
	}

	<-ctx.Done()
	log.Info().Msg("worker stopping")
	scheduler.Shutdown()
	srv.Shutdown()
}
