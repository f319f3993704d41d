package workers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/groupspeak/internal/services"
	"github.com/yoockh/groupspeak/internal/utils"
)

const (
	DefaultEvaluationStream = "evaluation:stream"
	DefaultEvaluationGroup  = "evaluation-workers"
)

// streamClient is the part of the redis client the evaluation queue needs.
type streamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
}

// EvaluationQueue hands merged sessions to the worker pool through a redis stream.
type EvaluationQueue struct {
	Redis  streamClient
	Stream string
}

func NewEvaluationQueue(rdb streamClient, stream string) *EvaluationQueue {
	if stream == "" {
		stream = DefaultEvaluationStream
	}
	return &EvaluationQueue{Redis: rdb, Stream: stream}
}

func (q *EvaluationQueue) Dispatch(ctx context.Context, sessionID string) error {
	return q.enqueue(ctx, sessionID, 1)
}

func (q *EvaluationQueue) enqueue(ctx context.Context, sessionID string, attempt int) error {
	return q.Redis.XAdd(ctx, &redis.XAddArgs{
		Stream: q.Stream,
		Values: map[string]any{
			"session_id": sessionID,
			"attempt":    strconv.Itoa(attempt),
		},
	}).Err()
}

type EvaluationWorkerPool struct {
	Queue      *EvaluationQueue
	Evaluator  services.EvaluationService
	NumWorkers int

	Logger *logrus.Logger

	Group          string
	ConsumerPrefix string
	MaxAttempts    int
	RetryBackoff   time.Duration
}

func (p *EvaluationWorkerPool) Start(ctx context.Context) error {
	if p.Queue == nil || p.Queue.Redis == nil || p.Evaluator == nil {
		return errors.New("EvaluationWorkerPool missing dependency: Queue/Evaluator must be set")
	}
	if p.Group == "" {
		p.Group = DefaultEvaluationGroup
	}
	if p.ConsumerPrefix == "" {
		p.ConsumerPrefix = "eval"
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 3
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.RetryBackoff <= 0 {
		p.RetryBackoff = 5 * time.Second
	}
	if p.Logger == nil {
		p.Logger = logrus.New()
	}

	if err := p.Queue.Redis.XGroupCreateMkStream(ctx, p.Queue.Stream, p.Group, "0").Err(); err != nil && !isBusyGroup(err) {
		return fmt.Errorf("create consumer group %s on %s: %w", p.Group, p.Queue.Stream, err)
	}

	for i := 0; i < p.NumWorkers; i++ {
		consumer := p.ConsumerPrefix + "-" + strconv.Itoa(i+1)
		go p.runConsumer(ctx, consumer)
	}
	return nil
}

// isBusyGroup reports the reply Redis gives when the group already exists.
func isBusyGroup(err error) bool {
	return strings.HasPrefix(err.Error(), "BUSYGROUP")
}

func (p *EvaluationWorkerPool) runConsumer(ctx context.Context, consumer string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := p.Queue.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.Group,
			Consumer: consumer,
			Streams:  []string{p.Queue.Stream, ">"},
			Count:    1,
			Block:    5 * time.Second,
		}).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			p.Logger.WithError(err).WithField("consumer", consumer).Warn("evaluation stream read failed")
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				p.handleMsg(ctx, msg)
				_ = p.Queue.Redis.XAck(ctx, p.Queue.Stream, p.Group, msg.ID).Err()
			}
		}
	}
}

// handleMsg runs one evaluation. Retryable failures are re-enqueued with the
// attempt count bumped; the original message is always acked.
func (p *EvaluationWorkerPool) handleMsg(ctx context.Context, msg redis.XMessage) {
	sessionID, _ := msg.Values["session_id"].(string)
	if sessionID == "" {
		return
	}
	attempt := 1
	if s, ok := msg.Values["attempt"].(string); ok {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			attempt = n
		}
	}

	log := p.Logger.WithFields(logrus.Fields{
		"redis_id":   msg.ID,
		"session_id": sessionID,
		"attempt":    attempt,
	})

	start := time.Now()
	res, err := p.Evaluator.Evaluate(ctx, sessionID)
	switch {
	case err == nil:
		log.WithFields(logrus.Fields{"inserted": res.Inserted, "latency_ms": time.Since(start).Milliseconds()}).Info("evaluation done")
		return
	case utils.IsAlreadyHandled(err):
		log.Debug("evaluation already stored")
		return
	case !retryable(err):
		log.WithError(err).Error("evaluation failed")
		return
	case attempt >= p.MaxAttempts:
		log.WithError(err).Error("evaluation failed, giving up")
		return
	}

	log.WithError(err).Warn("evaluation failed, retrying")
	select {
	case <-ctx.Done():
		return
	case <-time.After(p.RetryBackoff * time.Duration(attempt)):
	}
	if err := p.Queue.enqueue(ctx, sessionID, attempt+1); err != nil {
		log.WithError(err).Error("failed to re-enqueue evaluation")
	}
}

func retryable(err error) bool {
	switch utils.CodeOf(err) {
	case utils.CodeUnavailable, utils.CodeTimeout, utils.CodeInternal, utils.CodeInvalidScoringResponse:
		return true
	default:
		return false
	}
}
