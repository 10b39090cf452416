package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/physio-api/internal/model"
	"github.com/jwalitptl/physio-api/internal/repository"
	"github.com/jwalitptl/physio-api/pkg/circuitbreaker"
	"github.com/jwalitptl/physio-api/pkg/logger"
	"github.com/jwalitptl/physio-api/pkg/messaging"
	"github.com/jwalitptl/physio-api/pkg/metrics"
)

// publishRetries is the number of in-process retries per event per poll.
const publishRetries = 2

type OutboxProcessorConfig struct {
	BatchSize     int
	PollInterval  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	// CleanupInterval and RetainProcessed control purging of processed rows.
	CleanupInterval time.Duration
	RetainProcessed time.Duration
}

type OutboxProcessor struct {
	tx      repository.Transactor
	repo    repository.OutboxRepository
	broker  messaging.Broker
	config  OutboxProcessorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewOutboxProcessor(
	tx repository.Transactor,
	repo repository.OutboxRepository,
	broker messaging.Broker,
	config OutboxProcessorConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *OutboxProcessor {
	if config.BatchSize <= 0 {
		panic("BatchSize must be greater than 0")
	}
	if config.PollInterval <= 0 {
		panic("PollInterval must be greater than 0")
	}
	if config.RetryAttempts <= 0 {
		panic("RetryAttempts must be greater than 0")
	}
	if config.RetryDelay <= 0 {
		panic("RetryDelay must be greater than 0")
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Hour
	}
	if config.RetainProcessed <= 0 {
		config.RetainProcessed = 24 * time.Hour
	}

	return &OutboxProcessor{
		tx:      tx,
		repo:    repo,
		broker:  broker,
		config:  config,
		logger:  logger.WithFields(map[string]interface{}{"component": "outbox_processor"}),
		metrics: metrics,
		now:     time.Now,
	}
}

// Start polls until ctx is cancelled.
func (p *OutboxProcessor) Start(ctx context.Context) {
	poll := time.NewTicker(p.config.PollInterval)
	defer poll.Stop()
	cleanup := time.NewTicker(p.config.CleanupInterval)
	defer cleanup.Stop()

	p.logger.Info("Starting outbox processor",
		"batch_size", p.config.BatchSize,
		"poll_interval", p.config.PollInterval.String())

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Shutting down outbox processor")
			return
		case <-poll.C:
			if err := p.processEvents(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error(err, "Failed to process events")
			}
		case <-cleanup.C:
			if err := p.cleanup(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error(err, "Failed to clean up processed events")
			}
		}
	}
}

// processEvents locks one batch and settles every event in it before the
// transaction commits.
func (p *OutboxProcessor) processEvents(ctx context.Context) error {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	err := p.tx.WithTx(ctx, func(ctx context.Context) error {
		events, err := p.repo.GetPendingEventsWithLock(ctx, p.config.BatchSize)
		if err != nil {
			return err
		}

		for _, event := range events {
			if err := p.processEvent(ctx, event); err != nil {
				return fmt.Errorf("failed to settle event %s: %w", event.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if pending, err := p.repo.CountPending(ctx); err == nil {
		p.metrics.OutboxQueueSize.Set(float64(pending))
	}
	return nil
}

// processEvent publishes one event and records the outcome. Only failures
// to record the outcome are returned.
func (p *OutboxProcessor) processEvent(ctx context.Context, event *model.OutboxEvent) error {
	publishErr := p.publish(ctx, event)
	if publishErr == nil {
		if err := p.repo.UpdateStatus(ctx, event.ID, model.OutboxStatusProcessed, nil, nil); err != nil {
			return err
		}
		p.metrics.OutboxEventsProcessed.Inc()
		p.metrics.OutboxEventLatency.WithLabelValues(event.EventType).Observe(p.now().Sub(event.CreatedAt).Seconds())
		return nil
	}

	p.metrics.OutboxEventsFailed.Inc()
	errMsg := publishErr.Error()

	if event.RetryCount+1 >= p.config.RetryAttempts {
		event.ErrorMessage = &errMsg
		if err := p.repo.MoveToDeadLetter(ctx, event); err != nil {
			return err
		}
		p.metrics.OutboxEventsDeadLetter.Inc()
		p.logger.Error(publishErr, "Event moved to dead letter",
			"event_id", event.ID.String(),
			"event_type", event.EventType,
			"retry_count", event.RetryCount+1)
		return nil
	}

	retryAt := p.now().Add(p.config.RetryDelay << event.RetryCount)
	p.logger.Warn("Event publish failed, scheduled for retry",
		"event_id", event.ID.String(),
		"event_type", event.EventType,
		"retry_at", retryAt,
		"error", errMsg)
	return p.repo.UpdateStatus(ctx, event.ID, model.OutboxStatusRetry, &errMsg, &retryAt)
}

func (p *OutboxProcessor) publish(ctx context.Context, event *model.OutboxEvent) error {
	msg := messaging.Message{
		ID:         event.ID.String(),
		Type:       event.EventType,
		Payload:    event.Payload,
		OccurredAt: event.CreatedAt,
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.config.RetryDelay
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, publishRetries), ctx)

	operation := func() error {
		err := p.broker.Publish(ctx, event.EventType, msg)
		if errors.Is(err, circuitbreaker.ErrOpen) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		p.metrics.OutboxRetries.WithLabelValues(event.EventType).Inc()
		p.logger.Debug("Retrying publish",
			"event_id", event.ID.String(),
			"wait", wait.String(),
			"error", err.Error())
	}

	return backoff.RetryNotify(operation, policy, notify)
}

func (p *OutboxProcessor) cleanup(ctx context.Context) error {
	cutoff := p.now().Add(-p.config.RetainProcessed)
	n, err := p.repo.DeleteProcessedBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if n > 0 {
		p.logger.Info("Purged processed outbox events", "count", n)
	}
	return nil
}
