// Package config loads the bot, worker and CLI settings from an optional TOML
// file and the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	DefaultRegion          = "us-east-1"
	DefaultRedisAddr       = "localhost:6379"
	DefaultRedisPrefix     = "mergebot:"
	DefaultFFmpegBin       = "ffmpeg"
	DefaultPartSizeMB      = 5
	DefaultReadChunkKB     = 512
	DefaultQueueDepth      = 8
	DefaultPresignTTL      = 3 * time.Hour
	DefaultLinkTTL         = time.Hour
	DefaultMergeTimeout    = 2 * time.Hour
	DefaultInputTimeout    = 60 * time.Second
	DefaultIngestTimeout   = 30 * time.Minute
	DefaultAuthHours       = 12
	DefaultStderrPreview   = 800
	DefaultUploadLimitMB   = 2000
	DefaultGPLinksBase     = "https://gplinks.in/api"
	DefaultHealthAddr      = ":8080"
	DefaultOutputRetention = 72 * time.Hour
	DefaultStaleUploadAge  = 24 * time.Hour
	DefaultConcurrency     = 2
	DefaultAbortStaleSpec  = "@every 1h"
)

type TelegramConfig struct {
	Token            string `toml:"token" validate:"required"`
	AllowedChat      int64  `toml:"allowed_chat"`
	LocalAPIEndpoint string `toml:"local_api_endpoint" validate:"omitempty,url"`
	UploadLimitMB    int    `toml:"upload_limit_mb" validate:"gte=0"`
}

type StorageConfig struct {
	Bucket          string        `toml:"bucket" validate:"required"`
	Region          string        `toml:"region" validate:"required"`
	Endpoint        string        `toml:"endpoint" validate:"omitempty,url"`
	PathStyle       bool          `toml:"path_style"`
	AccessKey       string        `toml:"access_key"`
	SecretKey       string        `toml:"secret_key" validate:"required_with=AccessKey"`
	PartSizeMB      int           `toml:"part_size_mb" validate:"gte=5,lte=5120"`
	OutputRetention time.Duration `toml:"output_retention" validate:"min=1m"`
	StaleUploadAge  time.Duration `toml:"stale_upload_age" validate:"min=1m"`
}

type RedisConfig struct {
	Addr   string `toml:"addr" validate:"required,hostname_port"`
	Prefix string `toml:"prefix"`
}

type MergeConfig struct {
	FFmpegBin     string        `toml:"ffmpeg_bin" validate:"required"`
	ReadChunkKB   int           `toml:"read_chunk_kb" validate:"gt=0"`
	QueueDepth    int           `toml:"queue_depth" validate:"gt=0"`
	PresignTTL    time.Duration `toml:"presign_ttl" validate:"min=1m"`
	Timeout       time.Duration `toml:"timeout" validate:"min=1s"`
	InputTimeout  time.Duration `toml:"input_timeout" validate:"min=0s"`
	IngestTimeout time.Duration `toml:"ingest_timeout" validate:"min=1s"`
	StderrPreview int           `toml:"stderr_preview" validate:"gt=0"`
}

type AuthConfig struct {
	Hours         int     `toml:"hours" validate:"gt=0"`
	MasterToken   string  `toml:"master_token"`
	ShortenerBase string  `toml:"shortener_base" validate:"required,url"`
	Admins        []int64 `toml:"admins"`
}

type DeliveryConfig struct {
	LinkTTL time.Duration `toml:"link_ttl" validate:"min=1m"`
}

type WorkerConfig struct {
	Concurrency int    `toml:"concurrency" validate:"gt=0"`
	AbortStale  string `toml:"abort_stale" validate:"required"` // asynq cron spec
	HealthAddr  string `toml:"health_addr"`
}

type HealthConfig struct {
	Addr string `toml:"addr"`
}

type Config struct {
	Telegram TelegramConfig `toml:"telegram"`
	Storage  StorageConfig  `toml:"storage"`
	Redis    RedisConfig    `toml:"redis"`
	Merge    MergeConfig    `toml:"merge"`
	Auth     AuthConfig     `toml:"auth"`
	Delivery DeliveryConfig `toml:"delivery"`
	Worker   WorkerConfig   `toml:"worker"`
	Health   HealthConfig   `toml:"health"`
}

// PartSize is the multipart part size in bytes.
func (c Config) PartSize() int64 { return int64(c.Storage.PartSizeMB) << 20 }

// ReadChunk is the merge output read size in bytes.
func (c Config) ReadChunk() int { return c.Merge.ReadChunkKB << 10 }

// UploadLimit is the largest output sent directly over the bot API, in bytes.
func (c Config) UploadLimit() int64 { return int64(c.Telegram.UploadLimitMB) << 20 }

// AuthTTL is how long an authorization lasts.
func (c Config) AuthTTL() time.Duration { return time.Duration(c.Auth.Hours) * time.Hour }

func defaults() Config {
	return Config{
		Telegram: TelegramConfig{
			UploadLimitMB: DefaultUploadLimitMB,
		},
		Storage: StorageConfig{
			Region:          DefaultRegion,
			PartSizeMB:      DefaultPartSizeMB,
			OutputRetention: DefaultOutputRetention,
			StaleUploadAge:  DefaultStaleUploadAge,
		},
		Redis: RedisConfig{
			Addr:   DefaultRedisAddr,
			Prefix: DefaultRedisPrefix,
		},
		Merge: MergeConfig{
			FFmpegBin:     DefaultFFmpegBin,
			ReadChunkKB:   DefaultReadChunkKB,
			QueueDepth:    DefaultQueueDepth,
			PresignTTL:    DefaultPresignTTL,
			Timeout:       DefaultMergeTimeout,
			InputTimeout:  DefaultInputTimeout,
			IngestTimeout: DefaultIngestTimeout,
			StderrPreview: DefaultStderrPreview,
		},
		Auth: AuthConfig{
			Hours:         DefaultAuthHours,
			ShortenerBase: DefaultGPLinksBase,
		},
		Delivery: DeliveryConfig{
			LinkTTL: DefaultLinkTTL,
		},
		Worker: WorkerConfig{
			Concurrency: DefaultConcurrency,
			AbortStale:  DefaultAbortStaleSpec,
		},
		Health: HealthConfig{
			Addr: DefaultHealthAddr,
		},
	}
}

// Load reads .env, then the TOML file at path (or CONFIG_PATH), then the
// environment, and validates the result. A missing file is not an error.
func Load(path string) (Config, error) {
	_ = godotenv.Load()
	cfg := defaults()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			if !os.IsNotExist(err) {
				return cfg, err
			}
		} else if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func applyEnv(c *Config) error {
	c.Telegram.Token = getenv("BOT_TOKEN", c.Telegram.Token)
	if v := strings.TrimSpace(os.Getenv("ALLOWED_CHAT")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("ALLOWED_CHAT: chat id must be an integer: %q", v)
		}
		c.Telegram.AllowedChat = id
	}
	c.Telegram.LocalAPIEndpoint = strings.TrimRight(getenv("TG_LOCAL_API_ENDPOINT", c.Telegram.LocalAPIEndpoint), "/")
	c.Telegram.UploadLimitMB = mustInt("TG_UPLOAD_LIMIT_MB", c.Telegram.UploadLimitMB)

	c.Storage.Bucket = getenv("S3_BUCKET", c.Storage.Bucket)
	c.Storage.Region = getenv("S3_REGION", c.Storage.Region)
	c.Storage.Endpoint = getenv("S3_ENDPOINT", c.Storage.Endpoint)
	c.Storage.PathStyle = mustBool("S3_PATH_STYLE", c.Storage.PathStyle)
	c.Storage.AccessKey = getenv("S3_ACCESS_KEY", c.Storage.AccessKey)
	c.Storage.SecretKey = getenv("S3_SECRET_KEY", c.Storage.SecretKey)
	c.Storage.PartSizeMB = mustInt("PART_SIZE_MB", c.Storage.PartSizeMB)
	c.Storage.OutputRetention = mustDuration("OUTPUT_RETENTION", c.Storage.OutputRetention)
	c.Storage.StaleUploadAge = mustDuration("STALE_UPLOAD_AGE", c.Storage.StaleUploadAge)

	c.Redis.Addr = getenv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Prefix = getenv("REDIS_PREFIX", c.Redis.Prefix)

	c.Merge.FFmpegBin = getenv("FFMPEG_BIN", c.Merge.FFmpegBin)
	c.Merge.ReadChunkKB = mustInt("READ_CHUNK_KB", c.Merge.ReadChunkKB)
	c.Merge.QueueDepth = mustInt("QUEUE_DEPTH", c.Merge.QueueDepth)
	c.Merge.PresignTTL = mustDuration("PRESIGN_TTL", c.Merge.PresignTTL)
	c.Merge.Timeout = mustDuration("MERGE_TIMEOUT", c.Merge.Timeout)
	c.Merge.InputTimeout = mustDuration("INPUT_TIMEOUT", c.Merge.InputTimeout)
	c.Merge.IngestTimeout = mustDuration("INGEST_TIMEOUT", c.Merge.IngestTimeout)
	c.Merge.StderrPreview = mustInt("STDERR_PREVIEW", c.Merge.StderrPreview)

	c.Auth.Hours = mustInt("AUTH_HOURS", c.Auth.Hours)
	c.Auth.MasterToken = getenv("MASTER_GPLINKS_API", c.Auth.MasterToken)
	c.Auth.ShortenerBase = strings.TrimRight(getenv("GPLINKS_BASE", c.Auth.ShortenerBase), "/")
	if v := os.Getenv("ADMINS"); v != "" {
		ids, err := ParseIDs(v)
		if err != nil {
			return fmt.Errorf("ADMINS: %w", err)
		}
		c.Auth.Admins = ids
	}

	c.Delivery.LinkTTL = mustDuration("LINK_TTL", c.Delivery.LinkTTL)
	c.Worker.Concurrency = mustInt("CONCURRENCY", c.Worker.Concurrency)
	c.Worker.AbortStale = getenv("ABORT_STALE_CRON", c.Worker.AbortStale)
	c.Worker.HealthAddr = getenv("WORKER_HEALTH_ADDR", c.Worker.HealthAddr)
	c.Health.Addr = getenv("HEALTH_ADDR", c.Health.Addr)
	return nil
}

// ParseIDs parses a comma separated list of numeric user ids.
// Blank entries are skipped.
func ParseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad id %q: %w", p, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func mustBool(k string, def bool) bool {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
	}
	return def
}

// mustDuration accepts Go durations ("90s", "3h") or plain seconds.
func mustDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}
