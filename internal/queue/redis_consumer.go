/**
 * Direct Redis Queue Consumer for the TextExtract Worker
 *
 * Compatible with the TypeScript RedisQueue implementation: job IDs are
 * pushed onto a LIST and job data lives in the "<queue>:data" HASH.
 */

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/textextract-worker/internal/logging"
	"github.com/adverant/nexus/textextract-worker/internal/processor"
)

var errNoJob = errors.New("no jobs available")

// RedisJobData represents a job from the Redis queue
type RedisJobData struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Payload    JobPayload `json:"payload"`
	CreatedAt  time.Time  `json:"createdAt"`
	Attempts   int        `json:"attempts"`
	MaxRetries int        `json:"maxRetries"`
}

// RedisConsumer handles job consumption from Redis queue
type RedisConsumer struct {
	client *redis.Client
	runner *runner
	config *RedisConsumerConfig
	logger *logging.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// RedisConsumerConfig holds consumer configuration
type RedisConsumerConfig struct {
	// Client is shared with the result cache; Stop does not close it
	Client            *redis.Client
	QueueName         string
	Concurrency       int
	Processor         processor.DocumentProcessorInterface
	ProcessingTimeout int64 // milliseconds
	Logger            *logging.Logger
}

// NewRedisConsumer creates a new Redis-based queue consumer
func NewRedisConsumer(cfg *RedisConsumerConfig) (*RedisConsumer, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	if cfg.QueueName == "" {
		cfg.QueueName = "textextract:jobs"
	}

	if cfg.Processor == nil {
		return nil, fmt.Errorf("processor is required")
	}

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("RedisConsumer")
	}

	if err := cfg.Client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	consumerCtx, cancel := context.WithCancel(context.Background())

	return &RedisConsumer{
		client: cfg.Client,
		runner: newRunner(cfg.Processor, cfg.ProcessingTimeout, logger),
		config: cfg,
		logger: logger,
		ctx:    consumerCtx,
		cancel: cancel,
	}, nil
}

// Start begins processing jobs from the queue
func (c *RedisConsumer) Start() error {
	c.logger.Info("Starting Redis queue consumer", "concurrency", c.config.Concurrency, "queue", c.config.QueueName)

	for i := 0; i < c.config.Concurrency; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}

	return nil
}

// Stop waits for in-flight jobs to finish
func (c *RedisConsumer) Stop() error {
	c.logger.Info("Stopping queue consumer")
	c.cancel()
	c.wg.Wait()
	return nil
}

func (c *RedisConsumer) worker(id int) {
	defer c.wg.Done()
	c.logger.Debug("Worker started", "worker", id)

	for {
		select {
		case <-c.ctx.Done():
			c.logger.Debug("Worker stopping", "worker", id)
			return
		default:
			if err := c.processNextJob(); err != nil {
				if !errors.Is(err, errNoJob) && c.ctx.Err() == nil {
					c.logger.Warn("Worker error", "worker", id, "error", err)
					time.Sleep(time.Second)
				}
			}
		}
	}
}

// processNextJob blocks up to 5 seconds for a job ID, then runs it
func (c *RedisConsumer) processNextJob() error {
	result, err := c.client.BRPop(c.ctx, 5*time.Second, c.config.QueueName).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || c.ctx.Err() != nil {
			return errNoJob
		}
		return fmt.Errorf("failed to fetch job: %w", err)
	}

	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}

	id := result[1]

	jobData, err := c.client.HGet(c.ctx, c.key("data"), id).Result()
	if err != nil {
		return fmt.Errorf("failed to get job data: %w", err)
	}

	var job RedisJobData
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		c.markFailed(id, map[string]interface{}{"error": err.Error()})
		return fmt.Errorf("failed to unmarshal job: %w", err)
	}
	if job.ID == "" {
		job.ID = id
	}
	if job.Payload.JobID == "" {
		job.Payload.JobID = id
	}
	jobID := job.Payload.JobID

	c.client.SAdd(c.ctx, c.key(StatusProcessing), jobID)
	c.publish(jobID, StatusProcessing)

	// in-flight jobs finish even when Stop cancels the consumer
	processResult, err := c.runner.run(context.WithoutCancel(c.ctx), &job.Payload)
	if err != nil {
		job.Attempts++
		if retryable(err) && job.Attempts < job.MaxRetries {
			if requeueErr := c.requeue(id, jobID, &job); requeueErr != nil {
				c.logger.Error("Requeue failed", "job", jobID, "error", requeueErr)
			} else {
				c.logger.Info("Job re-queued", "job", jobID, "attempt", job.Attempts, "maxRetries", job.MaxRetries)
				return nil
			}
		}
		metadata := failureMetadata(err)
		metadata["attempts"] = job.Attempts
		c.markFailed(jobID, metadata)
		return nil
	}

	c.markCompleted(jobID, processResult)
	return nil
}

// requeue stores the updated attempt count under the popped queue entry id
// and pushes that id back; jobID leaves the processing set
func (c *RedisConsumer) requeue(id, jobID string, job *RedisJobData) error {
	updated, err := json.Marshal(job)
	if err != nil {
		return err
	}
	ctx := context.WithoutCancel(c.ctx)
	if err := c.client.HSet(ctx, c.key("data"), id, updated).Err(); err != nil {
		return err
	}
	if err := c.client.SRem(ctx, c.key(StatusProcessing), jobID).Err(); err != nil {
		return err
	}
	return c.client.LPush(ctx, c.config.QueueName, id).Err()
}

func (c *RedisConsumer) markCompleted(jobID string, result *processor.ProcessResult) {
	ctx := context.WithoutCancel(c.ctx)
	c.client.SRem(ctx, c.key(StatusProcessing), jobID)
	c.client.SAdd(ctx, c.key(StatusCompleted), jobID)
	if data, err := json.Marshal(result); err == nil {
		c.client.HSet(ctx, c.key("results"), jobID, data)
	}
	c.publish(jobID, StatusCompleted)
}

func (c *RedisConsumer) markFailed(jobID string, details map[string]interface{}) {
	ctx := context.WithoutCancel(c.ctx)
	c.client.SRem(ctx, c.key(StatusProcessing), jobID)
	c.client.SAdd(ctx, c.key(StatusFailed), jobID)
	if data, err := json.Marshal(details); err == nil {
		c.client.HSet(ctx, c.key("errors"), jobID, data)
	}
	c.publish(jobID, StatusFailed)
}

// publish emits a job event for WebSocket streaming
func (c *RedisConsumer) publish(jobID, status string) {
	event := map[string]interface{}{
		"event":     fmt.Sprintf("job:%s", status),
		"jobId":     jobID,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	eventData, _ := json.Marshal(event)
	c.client.Publish(context.WithoutCancel(c.ctx), c.key("events"), eventData)
}

func (c *RedisConsumer) key(suffix string) string {
	return jobKey(c.config.QueueName, suffix)
}

// GetStats returns queue statistics
func (c *RedisConsumer) GetStats(ctx context.Context) (map[string]int64, error) {
	waiting, err := c.client.LLen(ctx, c.config.QueueName).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read queue length: %w", err)
	}
	processing, _ := c.client.SCard(ctx, c.key(StatusProcessing)).Result()
	completed, _ := c.client.SCard(ctx, c.key(StatusCompleted)).Result()
	failed, _ := c.client.SCard(ctx, c.key(StatusFailed)).Result()

	return map[string]int64{
		"waiting":    waiting,
		"processing": processing,
		"completed":  completed,
		"failed":     failed,
	}, nil
}
