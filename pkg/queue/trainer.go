package queue

import (
	"context"
	"fmt"

	"emoseum/pkg/domain"
)

// QueueTrainer satisfies the Trainer capability by dispatching through the
// Redis stream instead of calling the fine-tune service inline. The queue
// consumer performs the actual submission and drives the completion callback.
type QueueTrainer struct {
	q *RedisTrainingQueue
}

// NewQueueTrainer wraps a training queue as a Trainer.
func NewQueueTrainer(q *RedisTrainingQueue) *QueueTrainer {
	return &QueueTrainer{q: q}
}

// SubmitTrainingJob enqueues a training job and returns its id.
func (t *QueueTrainer) SubmitTrainingJob(ctx context.Context, userID, datasetRef string) (string, error) {
	job, err := t.q.Enqueue(ctx, userID, datasetRef)
	if err != nil {
		return "", fmt.Errorf("enqueue training job: %w", domain.ErrServiceUnavailable)
	}
	return job.ID, nil
}
