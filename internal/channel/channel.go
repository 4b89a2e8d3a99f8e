// Package channel defines the uniform contract every delivery channel
// (push, email, sms) implements, and the bounded worker pool that runs each
// one — the Channel Workers of the Delivery Orchestrator.
package channel

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/socialpulse/notifyhub/internal/domain"
	"github.com/socialpulse/notifyhub/internal/retry"
)

// Sender is the opaque contract every channel implementation satisfies: push,
// email, and sms are interchangeable from the orchestrator's point of view.
type Sender interface {
	Channel() domain.Channel
	Send(ctx context.Context, target string, n *domain.NotificationHistory) error
}

// Task is one unit of work submitted to a channel's worker pool.
type Task struct {
	Target       string
	Notification *domain.NotificationHistory
	Result       chan<- error
}

// Pool is a bounded worker pool plus bounded queue for one channel, per
// spec: default 32 workers, 1024-deep queue, backpressure (a rejected
// Submit) rather than unbounded growth when the queue is full.
type Pool struct {
	sender  Sender
	tasks   chan Task
	workers int
	wg      sync.WaitGroup

	sendTimeout time.Duration
	retryCfg    retry.Config
}

// NewPool starts a Pool with workers goroutines reading from a queue of
// depth queueSize. Each send is retried per retryCfg, classified by
// retry.IsRetryable so a permanently-invalid address fails fast instead of
// burning through every retry attempt.
func NewPool(sender Sender, workers, queueSize int, sendTimeout time.Duration, retryCfg retry.Config) *Pool {
	p := &Pool{
		sender:      sender,
		tasks:       make(chan Task, queueSize),
		workers:     workers,
		sendTimeout: sendTimeout,
		retryCfg:    retryCfg,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for task := range p.tasks {
		ctx, cancel := context.WithTimeout(context.Background(), p.sendTimeout)
		err := retry.Do(ctx, p.retryCfg, string(p.sender.Channel())+"-send", func() error {
			return p.sender.Send(ctx, task.Target, task.Notification)
		})
		cancel()

		if err != nil {
			slog.Error("channel send failed",
				"channel", p.sender.Channel(), "worker", id,
				"notification_id", task.Notification.NotificationID, "error", err)
		}
		if task.Result != nil {
			task.Result <- err
		}
	}
}

// Submit enqueues task, returning false immediately (backpressure) if the
// queue is full rather than blocking the caller indefinitely.
func (p *Pool) Submit(task Task) bool {
	select {
	case p.tasks <- task:
		return true
	default:
		return false
	}
}

// Close stops accepting new work and waits for in-flight sends to finish.
func (p *Pool) Close() {
	close(p.tasks)
	p.wg.Wait()
}
