package coordinator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-boxblur/pkg/common"
	"go-boxblur/pkg/queue"
)

type fakeDecoder struct {
	bad map[string]bool
}

func (d fakeDecoder) Decode(path string) (*common.ImageTask, error) {
	if d.bad[path] {
		return nil, fmt.Errorf("%w: %s", common.ErrDecode, path)
	}
	return common.NewImageTask(0, "", make([]byte, 3*3*3), 3, 3, 3), nil
}

type brokenGeometryDecoder struct{}

func (brokenGeometryDecoder) Decode(path string) (*common.ImageTask, error) {
	return common.NewImageTask(0, "", make([]byte, 5), 3, 3, 3), nil
}

// cancellingDecoder calls cancel once it has decoded `after` sources.
type cancellingDecoder struct {
	after  int
	cancel context.CancelFunc
	calls  int
}

func (d *cancellingDecoder) Decode(path string) (*common.ImageTask, error) {
	d.calls++
	if d.calls == d.after {
		d.cancel()
	}
	return common.NewImageTask(0, "", make([]byte, 3*3*3), 3, 3, 3), nil
}

type failingSink struct{}

func (failingSink) PushJob(context.Context, *common.JobMessage) error {
	return errors.New("queue unavailable")
}

func drainJobs(t *testing.T, q *queue.LocalQueue) []*common.JobMessage {
	t.Helper()
	var jobs []*common.JobMessage
	for q.PendingJobs() > 0 {
		job, err := q.PopJob(context.Background())
		require.NoError(t, err)
		jobs = append(jobs, job)
	}
	return jobs
}

func TestRunQueuesEveryDecodedImage(t *testing.T) {
	q := queue.NewLocalQueue()
	paths := []string{"images/image1.jpg", "images/image2.jpg", "images/image3.jpg"}

	summary := NewCoordinator(fakeDecoder{}, q).Run(context.Background(), paths)

	assert.Equal(t, 3, summary.Attempted)
	assert.Equal(t, 3, summary.Produced)
	assert.Empty(t, summary.Failures)

	jobs := drainJobs(t, q)
	require.Len(t, jobs, 3)
	for i, job := range jobs {
		assert.Equal(t, common.JobTypeImage, job.Type)
		assert.Equal(t, i, job.Task.Index)
		assert.Equal(t, paths[i], job.Task.Source)
	}
}

func TestRunSkipsDecodeFailures(t *testing.T) {
	q := queue.NewLocalQueue()
	paths := []string{"a.jpg", "missing.jpg", "c.jpg", "d.jpg"}

	summary := NewCoordinator(fakeDecoder{bad: map[string]bool{"missing.jpg": true}}, q).Run(context.Background(), paths)

	assert.Equal(t, 3, summary.Produced)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "decode", summary.Failures[0].Stage)
	assert.Equal(t, "missing.jpg", summary.Failures[0].Path)
	assert.ErrorIs(t, summary.Failures[0], common.ErrDecode)

	jobs := drainJobs(t, q)
	require.Len(t, jobs, 3)
	assert.Equal(t, []int{0, 2, 3}, []int{jobs[0].Task.Index, jobs[1].Task.Index, jobs[2].Task.Index})
}

func TestRunRejectsInvalidGeometry(t *testing.T) {
	q := queue.NewLocalQueue()
	summary := NewCoordinator(brokenGeometryDecoder{}, q).Run(context.Background(), []string{"x.png"})

	assert.Zero(t, summary.Produced)
	require.Len(t, summary.Failures, 1)
	assert.ErrorIs(t, summary.Failures[0], common.ErrInvalidGeometry)
	assert.Zero(t, q.PendingJobs())
}

func TestRunRecordsEnqueueFailures(t *testing.T) {
	summary := NewCoordinator(fakeDecoder{}, failingSink{}).Run(context.Background(), []string{"a.jpg"})

	assert.Zero(t, summary.Produced)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "enqueue", summary.Failures[0].Stage)
}

func TestSignalCompletePushesOneSentinelPerWorker(t *testing.T) {
	q := queue.NewLocalQueue()
	require.NoError(t, SignalComplete(context.Background(), q, 4))

	jobs := drainJobs(t, q)
	require.Len(t, jobs, 4)
	for _, job := range jobs {
		assert.Equal(t, common.JobTypeComplete, job.Type)
		assert.Nil(t, job.Task)
	}

	assert.Error(t, SignalComplete(context.Background(), failingSink{}, 1))
}

func TestRunStopsLoadingOnCancel(t *testing.T) {
	q := queue.NewLocalQueue()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dec := &cancellingDecoder{after: 2, cancel: cancel}
	summary := NewCoordinator(dec, q).Run(ctx, []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg"})

	assert.Equal(t, 2, dec.calls)
	assert.Equal(t, 2, summary.Attempted)
	assert.Equal(t, 2, summary.Produced)
	assert.Empty(t, summary.Failures)
	assert.Equal(t, 2, q.PendingJobs())
}
