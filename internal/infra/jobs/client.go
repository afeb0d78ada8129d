package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/openlearn/admin-api/internal/config"
	"github.com/openlearn/admin-api/pkg/domain/audit"
	"github.com/openlearn/admin-api/pkg/logger"
)

// enqueuer is the subset of *asynq.Client used by Client.
type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Client manages enqueueing background jobs using Asynq.
type Client struct {
	client   enqueuer
	maxRetry int
	logger   *logger.Logger
}

// ClientConfig contains configuration for the job client.
type ClientConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	MaxRetry      int
}

// ClientConfigFrom builds a ClientConfig from application config.
func ClientConfigFrom(redis config.RedisConfig, queue config.QueueConfig) ClientConfig {
	return ClientConfig{
		RedisAddr:     redis.Addr(),
		RedisPassword: redis.Password,
		RedisDB:       redis.DB,
		MaxRetry:      queue.MaxRetry,
	}
}

// NewClient creates a new job client for enqueueing tasks.
func NewClient(cfg ClientConfig, log *logger.Logger) (*Client, error) {
	if cfg.RedisAddr == "" {
		return nil, errors.New("redis address is required")
	}
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return newClient(client, cfg.MaxRetry, log), nil
}

func newClient(e enqueuer, maxRetry int, log *logger.Logger) *Client {
	if maxRetry < 0 {
		maxRetry = 0
	}
	return &Client{
		client:   e,
		maxRetry: maxRetry,
		logger:   log.With("component", "job_client"),
	}
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// Append enqueues an audit entry for asynchronous persistence.
// It implements audit.Recorder.
func (c *Client) Append(ctx context.Context, entry *audit.Entry) error {
	task, err := NewAuditAppendTask(entry, c.maxRetry)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			// Already queued under this entry id.
			return nil
		}
		c.logger.Error("failed to enqueue audit entry",
			"id", entry.ID(),
			"operation_id", entry.OperationID(),
			"error", err,
		)
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	c.logger.Debug("audit entry queued",
		"task_id", info.ID,
		"operation_id", entry.OperationID(),
		"queue", info.Queue,
	)
	return nil
}
