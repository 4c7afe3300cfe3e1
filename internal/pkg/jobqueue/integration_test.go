package jobqueue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesEnqueuedJob(t *testing.T) {
	client := newIsolatedRedisClient(t)
	q := NewQueue(client, 2)

	var handled atomic.Int32
	q.Handle(JobTypeReconcileCourse, func(_ context.Context, job *Job) error {
		payload, err := ReconcileCourseJobPayloadFromMap(job.Payload)
		if err != nil || payload.CourseID != 7 {
			return Permanent(errors.New("bad payload"))
		}
		handled.Add(1)
		return nil
	})
	q.Start()
	t.Cleanup(q.Stop)

	ctx := context.Background()
	job, err := q.EnqueueJob(ctx, JobTypeReconcileCourse, ReconcileCourseJobPayload{CourseID: 7}.ToMap())
	require.NoError(t, err)

	require.True(t, WaitForCondition(func() bool { return handled.Load() == 1 }, 5*time.Second))
	require.True(t, WaitForCondition(func() bool {
		stats, err := q.GetJobStats(ctx)
		return err == nil && stats[JobStatusCompleted] == 1
	}, 5*time.Second))

	_, err = q.GetJob(ctx, job.ID)
	assert.Error(t, err, "completed jobs are removed")
	size, err := q.GetProcessingSize(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestQueueKeepsPermanentlyFailedJob(t *testing.T) {
	client := newIsolatedRedisClient(t)
	q := NewQueue(client, 1)
	q.Handle(JobTypePaymentReceipt, func(context.Context, *Job) error {
		return Permanent(errors.New("payment 1 not found"))
	})
	q.Start()
	t.Cleanup(q.Stop)

	ctx := context.Background()
	job, err := q.EnqueueJob(ctx, JobTypePaymentReceipt, PaymentReceiptJobPayload{PaymentID: 1}.ToMap())
	require.NoError(t, err)

	require.True(t, WaitForCondition(func() bool {
		stored, err := q.GetJob(ctx, job.ID)
		return err == nil && stored.Status == JobStatusFailed
	}, 5*time.Second))
	stored, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "payment 1 not found", stored.ErrorMsg)
}

func TestRecoverStuckJobs(t *testing.T) {
	client := newIsolatedRedisClient(t)
	q := NewQueue(client, 1)
	ctx := context.Background()

	job, err := q.EnqueueJob(ctx, JobTypeReconcileAll, map[string]interface{}{})
	require.NoError(t, err)
	moved, err := q.dequeueJob(ctx)
	require.NoError(t, err)
	moved.MarkAsProcessing()
	q.updateJob(ctx, moved)

	n, err := q.recoverStuck(ctx, time.Minute, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = q.recoverStuck(ctx, time.Minute, time.Now().Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, stored.Status)
	pending, err := q.GetQueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)
}
