// Package coordinator owns the primary strand (spec.md §5): a single
// goroutine through which every diff in the system is applied to the
// cluster and fanned out, in order, to all interested observers —
// persistence, connected peer actors, the supervisor. No other goroutine
// mutates the cluster.
package coordinator

import (
	"context"

	"github.com/svmk2808/syncspirit/internal/errs"
	"github.com/svmk2808/syncspirit/internal/model"
	"github.com/svmk2808/syncspirit/internal/model/diff"
	"github.com/svmk2808/syncspirit/internal/slog"
)

// Committer is what the persistence actor exposes beyond its Visitor
// methods: the per-diff commit decision (forced vs. threshold, spec.md
// §4.3). Observers that don't persist simply aren't Committers.
type Committer interface {
	Commit(d diff.ForceCommit) error
}

type applyReq struct {
	d     diff.Diff
	reply chan error
}

type observerReq struct {
	add    diff.Visitor
	remove diff.Visitor
	done   chan struct{}
}

// Coordinator brokers diff broadcast (spec.md §2 OVERVIEW table). Apply
// requests and observer changes are serialized through Run's loop, so
// observers see diffs in a single global order.
type Coordinator struct {
	cluster *model.Cluster
	log     slog.Log

	applies   chan applyReq
	observerC chan observerReq
	observers []diff.Visitor
}

func New(cluster *model.Cluster, log slog.Log) *Coordinator {
	return &Coordinator{
		cluster:   cluster,
		log:       log,
		applies:   make(chan applyReq, 64),
		observerC: make(chan observerReq),
	}
}

// Cluster exposes the model for read-only queries; mutation stays behind
// Apply.
func (c *Coordinator) Cluster() *model.Cluster { return c.cluster }

// Run is the primary strand. It returns when ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-c.applies:
			req.reply <- c.apply(req.d)
		case req := <-c.observerC:
			if req.add != nil {
				c.observers = append(c.observers, req.add)
			}
			if req.remove != nil {
				for i, o := range c.observers {
					if o == req.remove {
						c.observers = append(c.observers[:i], c.observers[i+1:]...)
						break
					}
				}
			}
			close(req.done)
		}
	}
}

// Apply submits d to the strand and waits for the result. Callers on the
// strand itself must use apply directly (observers reacting to a diff never
// re-enter Apply; they return new diffs to their own goroutines instead).
func (c *Coordinator) Apply(ctx context.Context, d diff.Diff) error {
	req := applyReq{d: d, reply: make(chan error, 1)}
	select {
	case c.applies <- req:
	case <-ctx.Done():
		return errs.New(errs.KindCancelled, "coordinator.Apply", ctx.Err())
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return errs.New(errs.KindCancelled, "coordinator.Apply", ctx.Err())
	}
}

func (c *Coordinator) apply(d diff.Diff) error {
	if err := d.Apply(c.cluster); err != nil {
		if nonRecoverable(err) {
			c.cluster.Taint()
			c.log.Error("cluster tainted", slog.Err(err))
		}
		return err
	}
	if c.cluster.Tainted() {
		// Observers stop writing on taint (spec.md GLOSSARY "Taint");
		// the apply above succeeded in memory, but nothing downstream
		// may act on it.
		return nil
	}
	for _, o := range c.observers {
		if err := d.Visit(o); err != nil {
			if errs.KindOf(err) == errs.KindDBError {
				c.cluster.Taint()
				c.log.Error("cluster tainted by observer", slog.Err(err))
				return err
			}
			c.log.Warn("observer failed", slog.Err(err))
		}
		if committer, ok := o.(Committer); ok {
			if fc, ok := d.(diff.ForceCommit); ok {
				if err := committer.Commit(fc); err != nil {
					c.cluster.Taint()
					return err
				}
			}
		}
	}
	return nil
}

// AddObserver registers v for every subsequently applied diff.
func (c *Coordinator) AddObserver(ctx context.Context, v diff.Visitor) {
	c.changeObservers(ctx, observerReq{add: v, done: make(chan struct{})})
}

// RemoveObserver unregisters v; diffs already in flight may still reach it.
func (c *Coordinator) RemoveObserver(ctx context.Context, v diff.Visitor) {
	c.changeObservers(ctx, observerReq{remove: v, done: make(chan struct{})})
}

func (c *Coordinator) changeObservers(ctx context.Context, req observerReq) {
	select {
	case c.observerC <- req:
	case <-ctx.Done():
		return
	}
	select {
	case <-req.done:
	case <-ctx.Done():
	}
}

// nonRecoverable decides whether a failed apply taints the cluster
// (spec.md §4.2, §7: DB errors taint; protocol-level rejections of a
// single peer's input, and per-file I/O failures, do not).
func nonRecoverable(err error) bool {
	return errs.KindOf(err) == errs.KindDBError
}
