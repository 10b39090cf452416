package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/physio-api/pkg/circuitbreaker"
	"github.com/jwalitptl/physio-api/pkg/messaging"
	"github.com/jwalitptl/physio-api/pkg/metrics"
)

type RedisBroker struct {
	client  *redis.Client
	cb      *circuitbreaker.CircuitBreaker
	logger  *zerolog.Logger
	metrics *metrics.Metrics
}

type Config struct {
	URL          string
	MaxRetries   int
	RetryBackoff time.Duration
	PoolSize     int
	MinIdleConns int
}

// NewOptions converts Config into go-redis client options.
func NewOptions(config Config) (*redis.Options, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Configure connection pooling
	opts.MaxRetries = config.MaxRetries
	opts.MinRetryBackoff = config.RetryBackoff
	opts.PoolSize = config.PoolSize
	opts.MinIdleConns = config.MinIdleConns
	return opts, nil
}

func NewRedisBroker(ctx context.Context, config Config, logger *zerolog.Logger, m *metrics.Metrics) (messaging.Broker, error) {
	opts, err := NewOptions(config)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisBroker{
		client: client,
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:                "redis-broker",
			MaxRequests:         1,
			Interval:            10 * time.Second,
			Timeout:             5 * time.Second,
			ConsecutiveFailures: 5,
		}),
		logger:  logger,
		metrics: m,
	}, nil
}

// Publish marshals message to JSON and publishes it on channel.
func (b *RedisBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	start := time.Now()
	err = b.cb.Execute(func() error {
		return b.client.Publish(ctx, channel, payload).Err()
	})
	b.observe("publish", start, err)
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}

	b.logger.Debug().Str("channel", channel).Int("bytes", len(payload)).Msg("Published message")
	return nil
}

func (b *RedisBroker) Ping(ctx context.Context) error {
	start := time.Now()
	err := b.client.Ping(ctx).Err()
	b.observe("ping", start, err)
	return err
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}

func (b *RedisBroker) observe(op string, start time.Time, err error) {
	if b.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	b.metrics.RedisOperations.WithLabelValues(op, status).Inc()
	b.metrics.RedisLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
