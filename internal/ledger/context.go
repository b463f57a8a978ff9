package ledger

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/bitcoin-sv/wallet-ledger/internal/ledger/store"
)

// DBContext ties a backing store to its single write dispatcher. All entity
// tables for one wallet share the same context: reads go straight to the
// store handle, writes are funnelled through the dispatcher.
type DBContext struct {
	store  *store.Store
	writer *WriteDispatcher
	logger *slog.Logger
	now    func() time.Time
}

func WithNow(nowFunc func() time.Time) func(*DBContext) {
	return func(c *DBContext) {
		c.now = nowFunc
	}
}

func NewDBContext(s *store.Store, logger *slog.Logger, opts ...func(*DBContext)) *DBContext {
	c := &DBContext{
		store:  s,
		logger: logger,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.writer = NewWriteDispatcher(s.DB(), logger)

	return c
}

func (c *DBContext) DB() *sql.DB {
	return c.store.DB()
}

func (c *DBContext) Writer() *WriteDispatcher {
	return c.writer
}

// Close stops the dispatcher after draining pending jobs, then closes the
// store.
func (c *DBContext) Close() error {
	c.writer.GracefulStop()
	return c.store.Close()
}

func (c *DBContext) timestamp() int64 {
	return c.now().Unix()
}
