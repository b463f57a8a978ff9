package ledger

import (
	"sync"
)

// KeyExportFunc produces the export form of one key instance. It is called
// off the UI thread and may be slow (hardware devices, encryption).
type KeyExportFunc func(keyInstanceID int64) (string, error)

type KeyExportResult struct {
	KeyInstanceID int64
	Value         string
}

// KeyExporter runs a per-key export in the background, checking a shared
// done/cancelled flag between items. Cancellation is cooperative: it takes
// effect after the item in progress, never preemptively. A cancelled run
// never invokes the completion callback.
type KeyExporter struct {
	mu        sync.Mutex
	done      bool
	cancelled bool
	wg        sync.WaitGroup
}

func NewKeyExporter() *KeyExporter {
	return &KeyExporter{}
}

func (e *KeyExporter) Start(keyInstanceIDs []int64, export KeyExportFunc,
	onComplete func(results []KeyExportResult, err error)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		results := make([]KeyExportResult, 0, len(keyInstanceIDs))
		for _, keyInstanceID := range keyInstanceIDs {
			if e.stopped() {
				return
			}
			value, err := export(keyInstanceID)
			if err != nil {
				e.markDone()
				if !e.isCancelled() {
					onComplete(nil, err)
				}
				return
			}
			results = append(results, KeyExportResult{KeyInstanceID: keyInstanceID, Value: value})
		}

		e.markDone()
		if !e.isCancelled() {
			onComplete(results, nil)
		}
	}()
}

// Cancel requests the run stop after the current item. It has no effect on
// a run that already completed.
func (e *KeyExporter) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.done {
		e.cancelled = true
	}
}

// Wait blocks until the background run has exited.
func (e *KeyExporter) Wait() {
	e.wg.Wait()
}

func (e *KeyExporter) stopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.done || e.cancelled
}

func (e *KeyExporter) isCancelled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelled
}

func (e *KeyExporter) markDone() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.done = true
}
