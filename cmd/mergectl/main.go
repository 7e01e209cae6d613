// Command mergectl administers authorizations and runs merges locally.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/maruthi2426/merge-bot/internal/auth"
	"github.com/maruthi2426/merge-bot/internal/config"
	"github.com/maruthi2426/merge-bot/internal/logx"
)

type app struct {
	redisAddr string
	prefix    string
	authHours int
	master    string

	// openStore connects to the authorization store; the func closes it.
	openStore func(ctx context.Context, a *app) (auth.Store, func() error, error)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(&app{openStore: openRedisStore}).ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "mergectl",
		Short:         "Administer the merge bot and run merges locally",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			lc := logx.FromEnv("mergectl")
			if os.Getenv("LOG_FORMAT") == "" {
				lc.Format = "console"
			}
			if os.Getenv("LOG_LEVEL") == "" {
				lc.Level = "warn"
			}
			logx.Setup(lc)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.redisAddr, "redis", envOr("REDIS_ADDR", config.DefaultRedisAddr), "redis address")
	f.StringVar(&a.prefix, "prefix", envOr("REDIS_PREFIX", config.DefaultRedisPrefix), "redis key prefix")
	f.IntVar(&a.authHours, "auth-hours", envInt("AUTH_HOURS", config.DefaultAuthHours), "authorization lifetime in hours")
	f.StringVar(&a.master, "master-token", os.Getenv("MASTER_GPLINKS_API"), "master shortener token")

	root.AddCommand(
		newAuthoriseCmd(a),
		newStatusCmd(a),
		newAdminsCmd(a),
		newPlanCmd(),
		newMergeCmd(),
	)
	return root
}

func openRedisStore(ctx context.Context, a *app) (auth.Store, func() error, error) {
	rdb := redis.NewClient(&redis.Options{Addr: a.redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis %s: %w", a.redisAddr, err)
	}
	log.Debug().Str("addr", a.redisAddr).Msg("redis connected")
	return auth.NewRedisStore(rdb, a.prefix), rdb.Close, nil
}

// withService opens the store, runs fn and closes the store.
func (a *app) withService(ctx context.Context, fn func(*auth.Service) error) error {
	store, closeFn, err := a.openStore(ctx, a)
	if err != nil {
		return err
	}
	defer func() { _ = closeFn() }()
	return fn(auth.NewService(store, a.master, time.Duration(a.authHours)*time.Hour))
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
