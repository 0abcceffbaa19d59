package db

import (
	"context"
	"database/sql"
	"errors"
)

type TxFn func(ctx context.Context, tx *sql.Tx) error

type job struct {
	ctx context.Context
	fn  TxFn
	ch  chan error
}

// Worker owns every write transaction. Jobs run one at a time on a single
// goroutine, so "read tail / check uniqueness, then write" sequences never
// interleave.
type Worker struct {
	db   *sql.DB
	jobs chan job
	done chan struct{}
}

func NewWorker(db *sql.DB) *Worker {
	w := &Worker{
		db:   db,
		jobs: make(chan job, 256),
		done: make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Worker) Close() {
	close(w.jobs)
	<-w.done
}

// Do runs fn inside a write transaction. The ctx passed to fn carries the
// transaction (see TxFrom). A Do issued from inside another Do joins the
// outer transaction instead of queueing behind it.
func (w *Worker) Do(ctx context.Context, fn TxFn) error {
	if tx, ok := TxFrom(ctx); ok {
		return fn(ctx, tx)
	}

	ch := make(chan error, 1)
	j := job{ctx: ctx, fn: fn, ch: ch}

	// Enqueue; bail out if the caller's context expires while the buffer is full.
	select {
	case w.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	}

	// The worker still finishes a job whose caller gave up; the result lands
	// in the buffered ch and is discarded.
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer close(w.done)

	for j := range w.jobs {
		err := w.run(j)
		// Lock contention gets exactly one retry.
		if err != nil && IsTransient(err) && j.ctx.Err() == nil {
			err = w.run(j)
		}
		j.ch <- err
	}
}

func (w *Worker) run(j job) error {
	tx, err := w.db.BeginTx(j.ctx, nil)
	if err != nil {
		return err
	}

	if err := j.fn(WithTx(j.ctx, tx), tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, rbErr)
		}
		return err
	}

	return tx.Commit()
}
