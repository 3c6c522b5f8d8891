package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestQueue(t *testing.T, maxRetries int) *RedisTrainingQueue {
	t.Helper()
	mr := miniredis.RunT(t)
	q, err := NewRedisTrainingQueue(Config{
		Addr:       mr.Addr(),
		Stream:     "test:training",
		Group:      "trainers",
		Consumer:   "test",
		MaxRetries: maxRetries,
		Block:      50 * time.Millisecond,
		RetryDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewRedisTrainingQueue: %v", err)
	}
	return q
}

func waitForStatus(t *testing.T, q *RedisTrainingQueue, jobID, want string) TrainingJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, ok, err := q.GetJob(context.Background(), jobID)
		if err != nil {
			t.Fatalf("GetJob: %v", err)
		}
		if ok && job.Status == want {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	job, _, _ := q.GetJob(context.Background(), jobID)
	t.Fatalf("job %s never reached %s, last seen %+v", jobID, want, job)
	return TrainingJob{}
}

func TestEnqueueWritesStatus(t *testing.T) {
	q := newTestQueue(t, 3)
	job, err := q.Enqueue(context.Background(), "u1", "datasets/u1/abc")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if job.ID == "" || job.Status != StatusQueued {
		t.Fatalf("job = %+v", job)
	}

	got, ok, err := q.GetJob(context.Background(), job.ID)
	if err != nil || !ok {
		t.Fatalf("GetJob: ok=%v err=%v", ok, err)
	}
	if got.UserID != "u1" || got.DatasetRef != "datasets/u1/abc" || got.Attempts != 0 {
		t.Errorf("stored job = %+v", got)
	}
}

func TestEnqueueValidation(t *testing.T) {
	q := newTestQueue(t, 3)
	if _, err := q.Enqueue(context.Background(), "", "ref"); err == nil {
		t.Error("expected error for missing user id")
	}
	if _, err := q.Enqueue(context.Background(), "u1", "  "); err == nil {
		t.Error("expected error for missing dataset ref")
	}
}

func TestGetJobMissing(t *testing.T) {
	q := newTestQueue(t, 3)
	_, ok, err := q.GetJob(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if ok {
		t.Error("missing job reported present")
	}
}

func TestConsumeMarksDone(t *testing.T) {
	q := newTestQueue(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var handled atomic.Int64
	q.Start(ctx, 1, func(ctx context.Context, job TrainingJob) error {
		handled.Add(1)
		return nil
	})
	// the consumer group is created at the stream tail; enqueue after Start
	time.Sleep(50 * time.Millisecond)

	job, err := q.Enqueue(ctx, "u1", "datasets/u1/abc")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	done := waitForStatus(t, q, job.ID, StatusDone)
	if done.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", done.Attempts)
	}
	if n := handled.Load(); n != 1 {
		t.Errorf("handled = %d, want 1", n)
	}
}

func TestConsumeRetriesThenFails(t *testing.T) {
	q := newTestQueue(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var handled atomic.Int64
	q.Start(ctx, 1, func(ctx context.Context, job TrainingJob) error {
		handled.Add(1)
		return errors.New("trainer unreachable")
	})
	time.Sleep(50 * time.Millisecond)

	job, err := q.Enqueue(ctx, "u1", "datasets/u1/abc")
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	failed := waitForStatus(t, q, job.ID, StatusFailed)
	if failed.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", failed.Attempts)
	}
	if failed.ErrorMessage != "trainer unreachable" {
		t.Errorf("error = %q", failed.ErrorMessage)
	}
	if n := handled.Load(); n != 2 {
		t.Errorf("handled = %d, want 2", n)
	}
}
