package grain

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/xraph/grain/events"
	"github.com/xraph/grain/routing"
	"github.com/xraph/grain/types"
)

// Turn is one unit of work against a single entity. The runtime guarantees
// exactly one turn executes per key at a time; within a turn the snapshot is
// a private clone that cannot race with other callers.
//
// A turn that returns a non-nil state commits: the runtime persists a new
// snapshot at version+1 and appends the returned events to the entity's
// tenant stream. A turn returning (nil, nil, nil) is a read. A turn
// returning an error leaves the entity untouched.
//
// snap is nil when the entity has never been created.
type Turn func(ctx context.Context, snap *types.Snapshot) (state json.RawMessage, evts []events.DomainEvent, err error)

type turnResult struct {
	snap *types.Snapshot
	err  error
}

type command struct {
	ctx   context.Context
	turn  Turn
	reply chan turnResult
}

// worker owns all access to one entity. It loads the snapshot lazily on the
// first command and caches it for the life of the worker.
type worker struct {
	key     string
	rt      *Runtime
	mailbox chan *command
	quit    chan struct{}
	done    chan struct{}

	// closed is guarded by rt.workersMu.
	closed bool

	// Owned by the worker goroutine.
	snap   *types.Snapshot
	loaded bool
}

// Execute runs a turn against the entity at key. Commands for the same key
// execute serially in arrival order; commands for different keys run in
// parallel. The context governs admission and waiting only: once admitted,
// the turn runs to completion even if the caller gives up.
func (r *Runtime) Execute(ctx context.Context, key string, turn Turn) (*types.Snapshot, error) {
	cmd := &command{
		ctx:   ctx,
		turn:  turn,
		reply: make(chan turnResult, 1),
	}

	if err := r.submit(key, cmd); err != nil {
		return nil, err
	}

	select {
	case res := <-cmd.reply:
		return res.snap, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Read returns the current snapshot without mutating the entity. It executes
// as a turn, so a read submitted after a command observes that command's
// effects.
func (r *Runtime) Read(ctx context.Context, key string) (*types.Snapshot, error) {
	return r.Execute(ctx, key, func(_ context.Context, snap *types.Snapshot) (json.RawMessage, []events.DomainEvent, error) {
		if snap == nil {
			return nil, nil, ErrNotFound
		}
		return nil, nil, nil
	})
}

// submit enqueues a command on the key's worker, spawning one if needed.
// Enqueueing happens under the directory lock, which is the same lock idle
// teardown takes before declaring the mailbox empty, so an admitted command
// is never orphaned.
func (r *Runtime) submit(key string, cmd *command) error {
	if r.isClosed() {
		return ErrRuntimeClosed
	}

	r.workersMu.Lock()
	defer r.workersMu.Unlock()

	w := r.workers[key]
	if w == nil || w.closed {
		w = &worker{
			key:     key,
			rt:      r,
			mailbox: make(chan *command, r.mailboxSize),
			quit:    make(chan struct{}),
			done:    make(chan struct{}),
		}
		r.workers[key] = w
		go w.loop()
	}

	select {
	case w.mailbox <- cmd:
		return nil
	default:
		return ErrMailboxFull
	}
}

// drain signals the worker to finish its mailbox and waits for it to exit.
func (w *worker) drain() {
	close(w.quit)
	<-w.done
}

func (w *worker) loop() {
	idle := time.NewTimer(w.rt.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case cmd := <-w.mailbox:
			w.handle(cmd)
			idle.Reset(w.rt.idleTimeout)

		case <-w.quit:
			for {
				select {
				case cmd := <-w.mailbox:
					w.handle(cmd)
				default:
					close(w.done)
					return
				}
			}

		case <-idle.C:
			w.rt.workersMu.Lock()
			if len(w.mailbox) > 0 {
				w.rt.workersMu.Unlock()
				idle.Reset(w.rt.idleTimeout)
				continue
			}
			w.closed = true
			if w.rt.workers[w.key] == w {
				delete(w.rt.workers, w.key)
			}
			w.rt.workersMu.Unlock()

			if w.loaded {
				w.rt.plugins.EmitEntityDeactivated(context.Background(), w.key)
			}
			close(w.done)
			return
		}
	}
}

// handle runs one command. Persistence uses a context detached from the
// caller's so an abandoned caller cannot cancel a half-committed turn.
func (w *worker) handle(cmd *command) {
	ctx := context.WithoutCancel(cmd.ctx)
	start := time.Now()

	if !w.loaded {
		snap, err := w.rt.store.GetSnapshot(ctx, w.key)
		if err != nil && !errors.Is(err, ErrNotFound) {
			cmd.reply <- turnResult{err: err}
			return
		}
		w.snap = snap
		w.loaded = true

		var version int64
		if snap != nil {
			version = snap.Version
		}
		w.rt.plugins.EmitEntityActivated(ctx, w.key, version)
	}

	state, evts, err := cmd.turn(cmd.ctx, w.snap.Clone())
	if err != nil {
		w.rt.plugins.EmitCommandRejected(ctx, w.key, err)
		cmd.reply <- turnResult{err: err}
		return
	}

	if state == nil {
		cmd.reply <- turnResult{snap: w.snap.Clone()}
		return
	}

	next := &types.Snapshot{
		Key:            w.key,
		Version:        1,
		State:          state,
		LastModifiedAt: time.Now(),
	}
	if w.snap != nil {
		next.Version = w.snap.Version + 1
		next.Archived = w.snap.Archived
	}

	if err := w.rt.store.PutSnapshot(ctx, next); err != nil {
		w.rt.plugins.EmitCommandRejected(ctx, w.key, err)
		cmd.reply <- turnResult{err: err}
		return
	}
	w.snap = next
	w.rt.plugins.EmitSnapshotPersisted(ctx, w.key, next.Version)

	if len(evts) > 0 {
		w.appendAndPublish(ctx, evts)
	}

	w.rt.plugins.EmitCommandApplied(ctx, w.key, next.Version, time.Since(start))
	cmd.reply <- turnResult{snap: next.Clone()}
}

// appendAndPublish writes committed events to the audit trail and hands them
// to the publisher. The snapshot is already durable at this point; an append
// failure is logged and the command still succeeds.
func (w *worker) appendAndPublish(ctx context.Context, evts []events.DomainEvent) {
	k, err := routing.Parse(w.key)
	if err != nil {
		w.rt.logger.Warn("skipping event publish for non-routing key",
			"key", w.key,
			"error", err,
		)
		return
	}

	stream := events.Stream{
		Namespace:      k.EntityKind,
		OrganizationID: k.OrganizationID,
	}

	if err := w.rt.store.AppendEvents(ctx, stream, evts); err != nil {
		w.rt.logger.Error("failed to append events to audit trail",
			"stream", stream.String(),
			"count", len(evts),
			"error", err,
		)
		return
	}

	w.rt.publisher.enqueue(stream, evts)
	w.rt.plugins.EmitEventsPublished(ctx, stream.String(), len(evts))
}
