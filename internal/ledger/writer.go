package ledger

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"

	"github.com/bitcoin-sv/wallet-ledger/internal/ledger/store"
)

// JobCallback is invoked on the dispatcher goroutine once a job's commit (or
// rollback) has completed. A nil error means the batch is durable.
type JobCallback func(err error)

type writeJob struct {
	name     string
	execute  func(tx *sql.Tx) error
	callback JobCallback
}

// WriteDispatcher owns all write access to the backing store. Jobs are
// committed one at a time, strictly in submission order; a failing job is
// rolled back and reported through its callback without stopping the queue.
type WriteDispatcher struct {
	db       *sql.DB
	jobs     chan writeJob
	logger   *slog.Logger
	capacity int
	wg       sync.WaitGroup
	stopOnce sync.Once
}

const writeQueueCapacityDefault = 100

func WithQueueCapacity(n int) func(*WriteDispatcher) {
	return func(d *WriteDispatcher) {
		d.capacity = n
	}
}

func NewWriteDispatcher(db *sql.DB, logger *slog.Logger, opts ...func(*WriteDispatcher)) *WriteDispatcher {
	d := &WriteDispatcher{
		db:       db,
		logger:   logger.With(slog.String("module", "write-dispatcher")),
		capacity: writeQueueCapacityDefault,
	}

	for _, opt := range opts {
		opt(d)
	}

	d.jobs = make(chan writeJob, d.capacity)
	d.wg.Add(1)
	go d.run()

	return d
}

// Enqueue submits a job. Once submitted it cannot be withdrawn; the callback
// fires even if every waiter has moved on.
func (d *WriteDispatcher) Enqueue(name string, execute func(tx *sql.Tx) error, callback JobCallback) {
	d.jobs <- writeJob{name: name, execute: execute, callback: callback}
}

// GracefulStop drains the queued jobs and stops the worker.
func (d *WriteDispatcher) GracefulStop() {
	d.stopOnce.Do(func() {
		close(d.jobs)
	})
	d.wg.Wait()
}

func (d *WriteDispatcher) run() {
	defer d.wg.Done()

	for job := range d.jobs {
		err := d.commit(job)
		if err != nil {
			d.logger.Warn("Write job failed",
				slog.String("job", job.name),
				slog.String("err", err.Error()))
		}
		if job.callback != nil {
			job.callback(err)
		}
	}
}

func (d *WriteDispatcher) commit(job writeJob) error {
	tx, err := d.db.Begin()
	if err != nil {
		return store.WrapError(err)
	}

	if err = job.execute(tx); err != nil {
		_ = tx.Rollback()
		return store.WrapError(err)
	}

	if err = tx.Commit(); err != nil {
		_ = tx.Rollback()
		return store.WrapError(err)
	}

	return nil
}

// SynchronousWriter turns the asynchronous queue into a request/response
// call: pass Callback() to the table operation and block on Wait. Abandoning
// the wait does not withdraw the job; it still commits and completes.
type SynchronousWriter struct {
	done chan error
}

func NewSynchronousWriter() *SynchronousWriter {
	// Buffered so an abandoned wait never blocks the dispatcher.
	return &SynchronousWriter{done: make(chan error, 1)}
}

func (w *SynchronousWriter) Callback() JobCallback {
	return func(err error) {
		w.done <- err
	}
}

func (w *SynchronousWriter) Wait(ctx context.Context) error {
	select {
	case err := <-w.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
