package store

import (
	"errors"

	"github.com/cockroachdb/pebble"

	"chainkv/config"
	"chainkv/logs"
)

type pebbleBackend struct {
	db *pebble.DB
}

// pebbleLogAdapter 把 pebble 内部日志接到 logs 包。
type pebbleLogAdapter struct{}

func (pebbleLogAdapter) Infof(format string, args ...interface{})  { logs.Verbose(format, args...) }
func (pebbleLogAdapter) Errorf(format string, args ...interface{}) { logs.Error(format, args...) }
func (pebbleLogAdapter) Fatalf(format string, args ...interface{}) { logs.Error(format, args...) }

func newPebbleBackend(path string, cfg *config.DatabaseConfig, readOnly bool) (kvBackend, error) {
	opts := &pebble.Options{
		ReadOnly: readOnly,
		// 本引擎只是 overlay，单条写不要 WAL，持久性由 Flush 负责。
		DisableWAL:   true,
		MaxOpenFiles: cfg.MaxOpenFiles,
		BytesPerSync: cfg.BytesPerSync,
		Logger:       pebbleLogAdapter{},
	}
	if cfg.Threads > 0 {
		n := cfg.Threads
		opts.MaxConcurrentCompactions = func() int { return n }
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, err
	}
	return &pebbleBackend{db: db}, nil
}

func (s *pebbleBackend) Get(key []byte) ([]byte, bool, error) {
	v, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer closer.Close()
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

type pebbleBatch struct {
	b *pebble.Batch
}

func (b *pebbleBatch) Put(key, value []byte) {
	_ = b.b.Set(key, value, nil)
}

func (b *pebbleBatch) Delete(key []byte) {
	_ = b.b.Delete(key, nil)
}

func (b *pebbleBatch) DeleteRange(start, end []byte) {
	_ = b.b.DeleteRange(start, end, nil)
}

func (b *pebbleBatch) Count() int { return int(b.b.Count()) }

func (s *pebbleBackend) NewBatch() Batch {
	return &pebbleBatch{b: s.db.NewBatch()}
}

func (s *pebbleBackend) Write(b Batch) error {
	pb := b.(*pebbleBatch)
	defer pb.b.Close()
	return s.db.Apply(pb.b, pebble.NoSync)
}

type pebbleCursor struct {
	it *pebble.Iterator
}

func (c *pebbleCursor) Seek(key []byte) bool { return c.it.SeekGE(key) }
func (c *pebbleCursor) Next() bool           { return c.it.Next() }
func (c *pebbleCursor) Prev() bool           { return c.it.Prev() }
func (c *pebbleCursor) Valid() bool          { return c.it.Valid() }
func (c *pebbleCursor) Key() []byte          { return c.it.Key() }

func (c *pebbleCursor) Value() []byte {
	v := c.it.Value()
	if v == nil {
		return []byte{}
	}
	return v
}

func (c *pebbleCursor) Err() error   { return c.it.Error() }
func (c *pebbleCursor) Close() error { return c.it.Close() }

func (s *pebbleBackend) NewCursor() (Cursor, error) {
	it, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	return &pebbleCursor{it: it}, nil
}

func (s *pebbleBackend) Flush(wait bool) error {
	if wait {
		return s.db.Flush()
	}
	_, err := s.db.AsyncFlush()
	return err
}

func (s *pebbleBackend) Close() error { return s.db.Close() }
