package sqs

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/nimbuslocal/nimbus/internal/arn"
	"github.com/nimbuslocal/nimbus/internal/ident"
)

// moveTask is an asynchronous redrive of a queue's pending messages. The
// status and counters are guarded by the registry lock; the cancel flag is
// atomic so a cancel takes effect on the worker's next tick.
type moveTask struct {
	taskHandle     string
	sourceArn      string
	destinationArn string
	status         string
	messagesMoved  int64
	messagesToMove int64
	maxPerSecond   *int32
	startedAt      int64
	cancel         atomic.Bool
}

// StartMessageMoveTask records a move task and hands its worker to the
// background pool. Only one task per source may be running or cancelling.
func (r *Registry) StartMessageMoveTask(in *StartMessageMoveTaskInput) (*StartMessageMoveTaskOutput, error) {
	sourceName := arn.Resource(in.SourceArn)

	r.mu.Lock()
	defer r.mu.Unlock()

	source, ok := r.queues[sourceName]
	if !ok {
		return nil, errResourceNotFound("Source queue does not exist")
	}

	if in.DestinationArn != "" {
		if _, ok := r.queues[arn.Resource(in.DestinationArn)]; !ok {
			return nil, errResourceNotFound("Destination queue does not exist")
		}
	}

	for _, task := range r.moveTasks {
		if task.sourceArn == in.SourceArn && (task.status == "RUNNING" || task.status == "CANCELLING") {
			return nil, errInvalidParameterValue("An active move task already exists for this source queue")
		}
	}

	task := &moveTask{
		taskHandle:     ident.New(),
		sourceArn:      in.SourceArn,
		destinationArn: in.DestinationArn,
		status:         "RUNNING",
		messagesToMove: int64(source.queue.PendingCount()),
		maxPerSecond:   in.MaxNumberOfMessagesPerSecond,
		startedAt:      ident.NowMillis(),
	}
	r.moveTasks = append(r.moveTasks, task)

	r.pool.Submit(&moveJob{registry: r, task: task})

	return &StartMessageMoveTaskOutput{TaskHandle: task.taskHandle}, nil
}

func (r *Registry) CancelMessageMoveTask(in *CancelMessageMoveTaskInput) (*CancelMessageMoveTaskOutput, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, task := range r.moveTasks {
		if task.taskHandle != in.TaskHandle {
			continue
		}
		if task.status != "RUNNING" {
			return nil, errResourceNotFound("Task is not running")
		}
		task.cancel.Store(true)
		return &CancelMessageMoveTaskOutput{ApproximateNumberOfMessagesMoved: task.messagesMoved}, nil
	}
	return nil, errResourceNotFound("Task not found")
}

func (r *Registry) ListMessageMoveTasks(in *ListMessageMoveTasksInput) (*ListMessageMoveTasksOutput, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	max := 10
	if in.MaxResults != nil && int(*in.MaxResults) < max {
		max = int(*in.MaxResults)
	}

	out := &ListMessageMoveTasksOutput{Results: []MessageMoveTaskEntry{}}
	for _, task := range r.moveTasks {
		if task.sourceArn != in.SourceArn || len(out.Results) >= max {
			continue
		}
		out.Results = append(out.Results, MessageMoveTaskEntry{
			TaskHandle:                        task.taskHandle,
			Status:                            task.status,
			SourceArn:                         task.sourceArn,
			DestinationArn:                    task.destinationArn,
			ApproximateNumberOfMessagesMoved:  task.messagesMoved,
			ApproximateNumberOfMessagesToMove: task.messagesToMove,
			MaxNumberOfMessagesPerSecond:      task.maxPerSecond,
			StartedTimestamp:                  task.startedAt,
		})
	}
	return out, nil
}

// moveJob is the background worker for one move task. Each tick acquires
// the registry lock, moves one message, releases the lock and sleeps
// 1000/rate ms (10 ms when no rate is set).
type moveJob struct {
	registry *Registry
	task     *moveTask
}

func (j *moveJob) ID() string {
	return "message-move-" + j.task.taskHandle
}

func (j *moveJob) Execute(ctx context.Context) error {
	delay := 10 * time.Millisecond
	if j.task.maxPerSecond != nil && *j.task.maxPerSecond > 0 {
		delay = time.Duration(1000 / *j.task.maxPerSecond) * time.Millisecond
	}

	for {
		if done := j.tick(); done {
			return nil
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			j.registry.mu.Lock()
			j.task.status = "CANCELLED"
			j.registry.mu.Unlock()
			return nil
		}
	}
}

// tick moves one message under the registry lock. Returns true when the
// task has reached a terminal state.
func (j *moveJob) tick() bool {
	r := j.registry
	r.mu.Lock()
	defer r.mu.Unlock()

	if j.task.cancel.Load() {
		j.task.status = "CANCELLED"
		return true
	}

	sourceName := arn.Resource(j.task.sourceArn)
	source, ok := r.queues[sourceName]
	if !ok {
		j.task.status = "FAILED"
		return true
	}

	msg := source.queue.popPending()
	if msg == nil {
		j.task.status = "COMPLETED"
		return true
	}

	// With no explicit destination, a redriven message returns to the
	// queue it was originally redriven out of.
	destName := sourceName
	if j.task.destinationArn != "" {
		destName = arn.Resource(j.task.destinationArn)
	} else if msg.OriginArn != "" {
		if _, ok := r.queues[arn.Resource(msg.OriginArn)]; ok {
			destName = arn.Resource(msg.OriginArn)
		}
	}

	if dest, ok := r.queues[destName]; ok {
		dest.queue.appendPending(msg)
		dest.notify.Notify()
	}
	j.task.messagesMoved++
	return false
}
