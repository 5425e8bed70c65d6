package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightnest/cleanops/jobs"
)

type fakeQueue struct {
	enqueued []string
	closed   int
}

func (f *fakeQueue) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.enqueued = append(f.enqueued, task.Type())
	return &asynq.TaskInfo{ID: "1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

func (f *fakeQueue) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return &asynq.QueueInfo{Queue: queue, Pending: 2, Retry: 1}, nil
}

func (f *fakeQueue) Close() error {
	f.closed++
	return nil
}

func TestTrigger(t *testing.T) {
	q := &fakeQueue{}
	c := &JobsCLI{client: q, inspector: q}

	info, err := c.Trigger(context.Background(), jobs.TaskInvoicesOverdue)
	require.NoError(t, err)
	assert.Equal(t, jobs.TaskInvoicesOverdue, info.Type)

	_, err = c.Trigger(context.Background(), "mail:invoice")
	assert.ErrorContains(t, err, "unsupported job")
	assert.Equal(t, []string{jobs.TaskInvoicesOverdue}, q.enqueued)

	require.NoError(t, c.Close())
	assert.Equal(t, 2, q.closed)
}

func TestInspectQueue(t *testing.T) {
	q := &fakeQueue{}
	stats, err := (&JobsCLI{client: q, inspector: q}).InspectQueue()
	require.NoError(t, err)

	var buf bytes.Buffer
	stats.Print(&buf)
	assert.Equal(t, "queue default: pending=2 active=0 scheduled=0 retry=1 archived=0\n", buf.String())
}
