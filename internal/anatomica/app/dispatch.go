package app

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aelkhatib/anatomica/internal/anatomica/telegram"
)

// workerQueueSize bounds the per-conversation backlog. A full queue blocks
// the poll loop, which is the desired backpressure.
const workerQueueSize = 16

type job struct {
	ctx context.Context
	upd telegram.Update
}

// dispatcher fans updates out to one worker goroutine per conversation, so
// interactions from the same chat are handled in arrival order while
// different chats proceed independently.
//
// Worker channels are never closed: Dispatch may still be sending on one
// while Close runs. Shutdown instead marks the dispatcher closed (no new
// jobs are accepted), waits for every accepted job to be handled, then
// releases the workers through the done channel.
type dispatcher struct {
	handle func(ctx context.Context, upd telegram.Update)

	mu      sync.Mutex
	workers map[int64]chan job
	closed  bool

	// jobs counts accepted-but-not-yet-handled jobs; workerWG counts
	// running workers.
	jobs     sync.WaitGroup
	workerWG sync.WaitGroup
	done     chan struct{}
}

func newDispatcher(handle func(ctx context.Context, upd telegram.Update)) *dispatcher {
	return &dispatcher{
		handle:  handle,
		workers: make(map[int64]chan job),
		done:    make(chan struct{}),
	}
}

// Dispatch queues the update on its conversation's worker, starting the
// worker on first use. Updates without a conversation are handled inline.
func (d *dispatcher) Dispatch(ctx context.Context, upd telegram.Update) {
	chatID, ok := conversationID(upd)
	if !ok {
		d.handle(ctx, upd)
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		slog.Warn("dropping update received after shutdown", "chat_id", chatID)
		return
	}
	ch, ok := d.workers[chatID]
	if !ok {
		ch = make(chan job, workerQueueSize)
		d.workers[chatID] = ch
		d.workerWG.Add(1)
		go d.run(ch)
	}
	// Accepted under the lock: Close will wait for this job even when the
	// send below still has to queue it.
	d.jobs.Add(1)
	d.mu.Unlock()

	ch <- job{ctx: ctx, upd: upd}
}

func (d *dispatcher) run(ch chan job) {
	defer d.workerWG.Done()
	for {
		select {
		case j := <-ch:
			d.handle(j.ctx, j.upd)
			d.jobs.Done()
		case <-d.done:
			// Closed only after the job count drained, so the queue is
			// empty by the time this fires.
			return
		}
	}
}

// Close stops accepting updates, waits for every accepted job to be
// handled, then stops the workers.
func (d *dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.jobs.Wait()
	close(d.done)
	d.workerWG.Wait()
}

// conversationID extracts the chat an update belongs to.
func conversationID(upd telegram.Update) (int64, bool) {
	switch {
	case upd.Message != nil && upd.Message.Chat != nil:
		return upd.Message.Chat.ID, true
	case upd.CallbackQuery != nil && upd.CallbackQuery.Message != nil && upd.CallbackQuery.Message.Chat != nil:
		return upd.CallbackQuery.Message.Chat.ID, true
	default:
		return 0, false
	}
}
