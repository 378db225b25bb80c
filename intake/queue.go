// Package intake is the pending-connection queue: a bounded,
// multi-producer/multi-consumer buffer of accepted-but-not-yet-running
// connections, drained by a fixed pool of workers that each drive one
// session end to end.
package intake

import (
	"errors"
	"sync/atomic"

	"github.com/guacgw/gateway/tunnel"
)

// ErrQueueFull is returned by Enqueue when the pending buffer is at
// capacity; the request is rejected rather than blocking the caller.
var ErrQueueFull = errors.New("intake: queue full")

// Runner drives one accepted connection to completion: decrypting its
// token, merging arguments, dialing guacd, handshaking, and relaying.
// It reports whether the session ever reached the relaying phase; that
// bool is what resolves the caller's completion signal.
type Runner interface {
	Run(id int64, client tunnel.ClientSocket, query map[string]string) (reachedRelay bool)
}

// Request is one accepted connection awaiting a worker. Completion is
// resolved exactly once, whether the session is dispatched, rejected
// for lack of capacity, or the queue is stopped while the request is
// still pending.
type Request struct {
	Client     tunnel.ClientSocket
	Query      map[string]string
	Completion chan<- bool
}

// Queue is the shared resource described by the concurrency model: safe
// under concurrent Enqueue and worker dequeue, with a single atomically
// incremented id counter handed out process-wide.
type Queue struct {
	pending chan *Request
	runner  Runner
	nextID  atomic.Int64
	done    chan struct{}
}

// NewQueue starts a queue with room for capacity pending requests and
// workers concurrent sessions. Workers run until Stop is called.
func NewQueue(capacity, workers int, runner Runner) *Queue {
	q := &Queue{
		pending: make(chan *Request, capacity),
		runner:  runner,
		done:    make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		go q.work()
	}
	return q
}

// Enqueue offers req to the queue without blocking the caller. If the
// queue is full, the request is rejected in place: a clean WebSocket
// close with an internal-server-error status, and completion resolved
// false.
func (q *Queue) Enqueue(req *Request) error {
	select {
	case q.pending <- req:
		return nil
	default:
		_ = req.Client.Close(tunnel.CloseInternalServerErr, "intake queue full")
		req.Completion <- false
		return ErrQueueFull
	}
}

// Len reports the current queue depth.
func (q *Queue) Len() int {
	return len(q.pending)
}

func (q *Queue) work() {
	for {
		select {
		case req := <-q.pending:
			id := q.nextID.Add(1)
			req.Completion <- q.runner.Run(id, req.Client, req.Query)
		case <-q.done:
			return
		}
	}
}

// Stop halts worker dispatch and resolves the completion of every
// request still sitting in the buffer, unrun, to false — so a caller
// blocked waiting on Completion is never left hanging by a shutdown
// race between Enqueue and the workers exiting. Sessions already
// dispatched to a worker are untouched; unblocking them is the
// process-level cancellation signal's job, not the queue's.
func (q *Queue) Stop() {
	close(q.done)
	for {
		select {
		case req := <-q.pending:
			_ = req.Client.Close(tunnel.CloseInternalServerErr, "gateway shutting down")
			req.Completion <- false
		default:
			return
		}
	}
}
