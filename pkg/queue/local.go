package queue

import (
	"context"

	"go-boxblur/pkg/common"
)

// LocalQueue pairs the in-process job and result handoff queues used by a
// single pipeline run. It exposes the same job/result methods as RedisQueue
// so coordinator, workers and assembler do not care which one they get.
type LocalQueue struct {
	jobs    *HandoffQueue[*common.JobMessage]
	results *HandoffQueue[*common.ResultTask]
}

func NewLocalQueue() *LocalQueue {
	return &LocalQueue{
		jobs:    NewHandoffQueue[*common.JobMessage](),
		results: NewHandoffQueue[*common.ResultTask](),
	}
}

func (q *LocalQueue) PushJob(_ context.Context, job *common.JobMessage) error {
	q.jobs.Push(job)
	return nil
}

func (q *LocalQueue) PopJob(ctx context.Context) (*common.JobMessage, error) {
	return q.jobs.PopContext(ctx)
}

func (q *LocalQueue) TryPopJob() (*common.JobMessage, bool) {
	return q.jobs.TryPop()
}

func (q *LocalQueue) PushResult(_ context.Context, res *common.ResultTask) error {
	q.results.Push(res)
	return nil
}

func (q *LocalQueue) PopResult(ctx context.Context) (*common.ResultTask, error) {
	return q.results.PopContext(ctx)
}

// TryPopResult is used for the final drain, after every worker has exited.
func (q *LocalQueue) TryPopResult() (*common.ResultTask, bool) {
	return q.results.TryPop()
}

func (q *LocalQueue) PendingJobs() int {
	return q.jobs.Len()
}

func (q *LocalQueue) PendingResults() int {
	return q.results.Len()
}
