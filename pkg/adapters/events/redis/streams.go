package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aescanero/taskrun/pkg/workflow"
)

// StreamsRelay publishes lifecycle events to Redis Streams, one stream per
// run, so observers outside the process can follow runs. Only events are
// relayed; no workflow state is persisted.
type StreamsRelay struct {
	client       *redis.Client
	logger       *zap.Logger
	streamPrefix string
	maxLen       int64
}

// NewStreamsRelay creates a relay writing to streams under the given prefix.
// Streams are capped at maxLen entries (approximate trimming).
func NewStreamsRelay(client *redis.Client, streamPrefix string, maxLen int64, logger *zap.Logger) *StreamsRelay {
	return &StreamsRelay{
		client:       client,
		logger:       logger,
		streamPrefix: streamPrefix,
		maxLen:       maxLen,
	}
}

// Observer returns an event handler bound to the run's stream. Attach it to
// a run at submission time.
func (r *StreamsRelay) Observer(runID string) workflow.EventHandler {
	streamKey := r.streamKey(runID)

	return func(event workflow.Event) {
		data, err := json.Marshal(event)
		if err != nil {
			r.logger.Error("failed to marshal event",
				zap.String("stream", streamKey),
				zap.Error(err))
			return
		}

		args := &redis.XAddArgs{
			Stream: streamKey,
			MaxLen: r.maxLen,
			Approx: true,
			Values: map[string]interface{}{
				"data": string(data),
			},
		}
		if err := r.client.XAdd(context.Background(), args).Err(); err != nil {
			r.logger.Error("failed to relay event",
				zap.String("stream", streamKey),
				zap.String("task_id", event.TaskID),
				zap.Error(err))
			return
		}

		r.logger.Debug("event relayed",
			zap.String("stream", streamKey),
			zap.String("type", string(event.Type)),
			zap.String("task_id", event.TaskID))
	}
}

// streamKey returns the Redis stream key for a run.
func (r *StreamsRelay) streamKey(runID string) string {
	return fmt.Sprintf("%s:%s", r.streamPrefix, runID)
}
