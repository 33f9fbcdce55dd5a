// Package bootstrap builds the adapters every binary needs from Config.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"wb_reviews/internal/adapters/notify"
	redisad "wb_reviews/internal/adapters/redis"
	"wb_reviews/internal/adapters/wb"
	"wb_reviews/internal/domain"
	"wb_reviews/internal/shared"
	"wb_reviews/internal/storage/sqlstore"
)

func OpenStore(ctx context.Context, cfg shared.Config) (*sqlstore.Store, error) {
	st, err := sqlstore.Open(ctx, cfg.StoreDriver, cfg.StoreDSN())
	if err != nil {
		return nil, err
	}
	log.Info().Str("driver", cfg.StoreDriver).Msg("database connection ok")
	return st, nil
}

func NewGateway(cfg shared.Config) (*wb.Client, error) {
	return wb.New(cfg.WBCardURL, cfg.WBFeedbacksURL, cfg.WBRPS)
}

// NewCache returns nil when Redis is unreachable; callers treat the cache as optional.
func NewCache(ctx context.Context, cfg shared.Config) (domain.Cache, func() error) {
	if cfg.RedisAddr == "" {
		return nil, func() error { return nil }
	}
	c := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx); err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable, caching disabled")
		c.Close()
		return nil, func() error { return nil }
	}
	return c, c.Close
}

// NewSink builds the configured notification sink. The returned func releases it.
func NewSink(cfg shared.Config) (domain.Sink, func() error, error) {
	nop := func() error { return nil }
	switch cfg.NotifySink {
	case "telegram":
		s, err := notify.NewTelegramSink(cfg.TelegramAPIURL, cfg.BotToken, cfg.ChatIDs)
		if err != nil {
			return nil, nop, err
		}
		return s, nop, nil
	case "amqp":
		s, err := notify.NewAMQPSink(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, nop, err
		}
		return s, s.Close, nil
	case "log":
		return notify.NewLogSink(log.Logger), nop, nil
	default:
		return nil, nop, fmt.Errorf("unknown NOTIFY_SINK %q", cfg.NotifySink)
	}
}
